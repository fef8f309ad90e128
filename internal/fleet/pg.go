package fleet

import "fmt"

// Affinity is the strength of a domain or rack affinity rule.
type Affinity int

const (
	AffinityNone Affinity = iota
	AffinitySoft
	AffinityHard
)

// ParseAffinity maps a wire code (0/1/2) to an Affinity.
func ParseAffinity(code int) (Affinity, error) {
	switch code {
	case 0:
		return AffinityNone, nil
	case 1:
		return AffinitySoft, nil
	case 2:
		return AffinityHard, nil
	default:
		return AffinityNone, fmt.Errorf("%w: affinity code %d", ErrInvalidArgument, code)
	}
}

// String returns the affinity name for logs.
func (a Affinity) String() string {
	switch a {
	case AffinitySoft:
		return "SOFT"
	case AffinityHard:
		return "HARD"
	default:
		return "NONE"
	}
}

// PlacementGroup bundles the constraints shared by a set of VMs, plus
// derived state recomputed from the currently placed members.
type PlacementGroup struct {
	Index int

	// HardRackAntiAffinityPartitions > 0 means members carry partition
	// ids and two members of different partitions must not share a rack.
	HardRackAntiAffinityPartitions int

	// SoftPMAntiAffinity caps how many members should share one PM
	// before a penalty is taken.
	SoftPMAntiAffinity int

	DomainAffinity Affinity
	RackAffinity   Affinity

	VMs []*VM

	// Derived state, valid after RefreshDerived.
	TargetDomain           *Domain
	DomainAffinityPossible bool

	TargetRack           *Rack
	RackAffinityPossible bool

	SoftPMAntiAffinityPossible bool

	// PartitionRacks maps a partition id to the racks currently hosting
	// members of that partition.
	PartitionRacks map[int]map[*Rack]struct{}
}

// NewPlacementGroup creates a group. A partition count of one or less
// disables partitioned anti-affinity entirely.
func NewPlacementGroup(index, hardPartitions, softPMAntiAffinity int, domainAffinity, rackAffinity Affinity) *PlacementGroup {
	if hardPartitions <= 1 {
		hardPartitions = 0
	}

	return &PlacementGroup{
		Index:                          index,
		HardRackAntiAffinityPartitions: hardPartitions,
		SoftPMAntiAffinity:             softPMAntiAffinity,
		DomainAffinity:                 domainAffinity,
		RackAffinity:                   rackAffinity,
		DomainAffinityPossible:         true,
		RackAffinityPossible:           true,
		SoftPMAntiAffinityPossible:     softPMAntiAffinity > 0,
		PartitionRacks:                 make(map[int]map[*Rack]struct{}),
	}
}

// RefreshDerived recomputes the target domain/rack, the soft-affinity
// feasibility flags and the partition-to-racks mapping from the placed
// members. Once a SOFT domain or rack affinity is confirmed violated the
// weaker soft PM anti-affinity objective is abandoned as well.
func (pg *PlacementGroup) RefreshDerived() {
	pg.TargetDomain = nil
	pg.DomainAffinityPossible = true

	pg.TargetRack = nil
	pg.RackAffinityPossible = true

	pg.PartitionRacks = make(map[int]map[*Rack]struct{})

	for _, vm := range pg.VMs {
		if !vm.IsPlaced() {
			continue
		}

		rack := vm.Nodes[0].PM.Rack
		domain := rack.Domain

		if pg.DomainAffinity != AffinityNone && pg.DomainAffinityPossible {
			if pg.TargetDomain == nil {
				pg.TargetDomain = domain
			} else if pg.TargetDomain != domain {
				pg.DomainAffinityPossible = false
			}
		}

		if pg.RackAffinity != AffinityNone && pg.RackAffinityPossible {
			if pg.TargetRack == nil {
				pg.TargetRack = rack
			} else if pg.TargetRack != rack {
				pg.RackAffinityPossible = false
			}
		}

		if pg.HardRackAntiAffinityPartitions > 0 {
			racks := pg.PartitionRacks[vm.Partition]
			if racks == nil {
				racks = make(map[*Rack]struct{})
				pg.PartitionRacks[vm.Partition] = racks
			}
			racks[rack] = struct{}{}
		}
	}

	if (pg.DomainAffinity == AffinitySoft && !pg.DomainAffinityPossible) ||
		(pg.RackAffinity == AffinitySoft && !pg.RackAffinityPossible) {
		pg.DomainAffinityPossible = false
		pg.RackAffinityPossible = false
		pg.SoftPMAntiAffinityPossible = false
	} else {
		pg.SoftPMAntiAffinityPossible = pg.SoftPMAntiAffinity > 0
	}
}

// AddVM registers a member.
func (pg *PlacementGroup) AddVM(vm *VM) {
	pg.VMs = append(pg.VMs, vm)
}

// RemoveVM unregisters a member.
func (pg *PlacementGroup) RemoveVM(vm *VM) {
	for i, member := range pg.VMs {
		if member == vm {
			pg.VMs = append(pg.VMs[:i], pg.VMs[i+1:]...)
			return
		}
	}
}
