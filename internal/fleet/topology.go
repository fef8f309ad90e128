package fleet

import "sort"

// Node is the scheduling leaf: a single NUMA bin on a physical machine.
type Node struct {
	Resources

	Index int
	PM    *PM
}

// TypeFit returns how many more node slices of the flavour this node holds.
func (n *Node) TypeFit(t *Type) int {
	return n.cachedTypeFit(t, func() int {
		fitCPU := n.AvailableCPU / t.CPU
		fitMemory := n.AvailableMemory / t.Memory

		if fitCPU < fitMemory {
			return fitCPU
		}
		return fitMemory
	})
}

// PM is a physical machine within a rack. It owns its NUMA nodes and
// tracks, per placement group, how many VMs call this PM home.
type PM struct {
	Resources

	Index int
	Rack  *Rack
	Nodes []*Node

	VMsByGroup map[int]int
}

// TypeFit approximates how many more whole VMs of the flavour this PM can
// host. Each VM needs t.Nodes distinct nodes, so the per-node fits are
// sorted ascending and every t.Nodes-th entry is summed: the smallest
// node of each would-be node tuple bounds that tuple's capacity.
func (p *PM) TypeFit(t *Type) int {
	return p.cachedTypeFit(t, func() int {
		byNode := make([]int, len(p.Nodes))
		for i, node := range p.Nodes {
			byNode[i] = node.TypeFit(t)
		}

		sort.Ints(byNode)

		count := 0
		for i := 0; i < len(byNode); i += t.Nodes {
			count += byNode[i]
		}

		return count
	})
}

// Rack is a mid-level failure boundary within a domain.
type Rack struct {
	Resources

	Index  int
	Domain *Domain
	PMs    []*PM
}

// TypeFit sums the fits of the rack's physical machines.
func (r *Rack) TypeFit(t *Type) int {
	return r.cachedTypeFit(t, func() int {
		count := 0
		for _, pm := range r.PMs {
			count += pm.TypeFit(t)
		}
		return count
	})
}

// Domain is the top-level failure boundary of the fleet.
type Domain struct {
	Resources

	Index int
	Racks []*Rack
}

// TypeFit sums the fits of the domain's racks.
func (d *Domain) TypeFit(t *Type) int {
	return d.cachedTypeFit(t, func() int {
		count := 0
		for _, rack := range d.Racks {
			count += rack.TypeFit(t)
		}
		return count
	})
}

// Fleet is the fixed four-level topology built once at session start.
// Every PM carries the same node layout given by the per-node cpu/memory
// templates. The structure is never mutated after construction; only the
// resource availabilities change.
type Fleet struct {
	Domains []*Domain
}

// NewFleet builds the Domain > Rack > PM > Node tree. Indices are 1-based
// within each parent, matching the wire format.
func NewFleet(domains, racksPerDomain, pmsPerRack int, nodeCPU, nodeMemory []int) *Fleet {
	pmCPU := 0
	pmMemory := 0
	for i := range nodeCPU {
		pmCPU += nodeCPU[i]
		pmMemory += nodeMemory[i]
	}

	f := &Fleet{Domains: make([]*Domain, domains)}

	for d := 0; d < domains; d++ {
		dom := &Domain{
			Resources: NewResources(racksPerDomain*pmsPerRack*pmCPU, racksPerDomain*pmsPerRack*pmMemory),
			Index:     d + 1,
			Racks:     make([]*Rack, racksPerDomain),
		}

		for r := 0; r < racksPerDomain; r++ {
			rack := &Rack{
				Resources: NewResources(pmsPerRack*pmCPU, pmsPerRack*pmMemory),
				Index:     r + 1,
				Domain:    dom,
				PMs:       make([]*PM, pmsPerRack),
			}

			for p := 0; p < pmsPerRack; p++ {
				pm := &PM{
					Resources:  NewResources(pmCPU, pmMemory),
					Index:      p + 1,
					Rack:       rack,
					Nodes:      make([]*Node, len(nodeCPU)),
					VMsByGroup: make(map[int]int),
				}

				for n := range nodeCPU {
					pm.Nodes[n] = &Node{
						Resources: NewResources(nodeCPU[n], nodeMemory[n]),
						Index:     n + 1,
						PM:        pm,
					}
				}

				rack.PMs[p] = pm
			}

			dom.Racks[r] = rack
		}

		f.Domains[d] = dom
	}

	return f
}

// Racks returns every rack of the fleet in (domain, rack) index order.
func (f *Fleet) Racks() []*Rack {
	var racks []*Rack
	for _, dom := range f.Domains {
		racks = append(racks, dom.Racks...)
	}
	return racks
}
