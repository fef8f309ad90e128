package scheduler

import (
	"sort"

	"github.com/fleetforge/fleetforge/internal/fleet"
)

// rackGroups produces the ordered rack groups feasibility is attempted
// on, one affinity case at a time. Any group that places successfully
// satisfies every hard constraint; group order runs from the most to the
// least desirable, ending in a catch-all where the soft rules allow one.
func (s *Scheduler) rackGroups(pg *fleet.PlacementGroup, batchSize int, t *fleet.Type) [][]*fleet.Rack {
	pg.RefreshDerived()

	var groups [][]*fleet.Rack

	switch {
	case pg.RackAffinity == fleet.AffinityHard:
		if pg.TargetRack != nil {
			return [][]*fleet.Rack{{pg.TargetRack}}
		}

		// The whole batch must land on one rack, so only racks that can
		// still take the full batch are worth trying.
		for _, rack := range s.fleet.Racks() {
			if rack.TypeFit(t) >= batchSize {
				groups = append(groups, []*fleet.Rack{rack})
			}
		}
		sortGroupsByLeadLoad(groups, 0)

	case pg.DomainAffinity == fleet.AffinityHard &&
		(pg.RackAffinity == fleet.AffinityNone || !pg.RackAffinityPossible):
		if pg.TargetDomain != nil {
			return [][]*fleet.Rack{sortedByLoad(pg.TargetDomain.Racks)}
		}

		groups = s.domainGroups(batchSize, t)
		sortGroupsByLeadLoad(groups, 0)

	case pg.DomainAffinity == fleet.AffinityHard:
		// Rack affinity is SOFT and still attainable: pin the target
		// rack first, then fall back to the domain's racks.
		prefix := 0
		if pg.TargetRack != nil {
			groups = append(groups, []*fleet.Rack{pg.TargetRack})
			prefix++
		}

		if pg.TargetDomain != nil {
			groups = append(groups, sortedByLoad(pg.TargetDomain.Racks))
		} else {
			groups = append(groups, s.domainGroups(batchSize, t)...)
		}
		sortGroupsByLeadLoad(groups, prefix)

	case pg.DomainAffinity == fleet.AffinitySoft && pg.DomainAffinityPossible &&
		pg.RackAffinity == fleet.AffinitySoft && pg.RackAffinityPossible:
		prefix := 0
		if pg.TargetRack != nil {
			groups = append(groups, []*fleet.Rack{pg.TargetRack})
			prefix++
		}
		if pg.TargetDomain != nil {
			groups = append(groups, sortedByLoad(pg.TargetDomain.Racks))
			prefix++
		}

		for _, dom := range s.fleet.Domains {
			if dom == pg.TargetDomain {
				continue
			}
			groups = append(groups, sortedByLoad(dom.Racks))
		}
		sortGroupsByLeadLoad(groups, prefix)

		groups = append(groups, sortedByLoad(s.fleet.Racks()))

	case pg.DomainAffinity == fleet.AffinitySoft && pg.DomainAffinityPossible:
		prefix := 0
		if pg.TargetDomain != nil {
			groups = append(groups, sortedByLoad(pg.TargetDomain.Racks))
			prefix++
		}

		for _, dom := range s.fleet.Domains {
			if dom == pg.TargetDomain {
				continue
			}
			groups = append(groups, sortedByLoad(dom.Racks))
		}
		sortGroupsByLeadLoad(groups, prefix)

		groups = append(groups, sortedByLoad(s.fleet.Racks()))

	default:
		groups = append(groups, sortedByLoad(s.fleet.Racks()))
	}

	return groups
}

// domainGroups returns one load-sorted group per domain that can still
// take the whole batch.
func (s *Scheduler) domainGroups(batchSize int, t *fleet.Type) [][]*fleet.Rack {
	var groups [][]*fleet.Rack

	for _, dom := range s.fleet.Domains {
		if dom.TypeFit(t) < batchSize {
			continue
		}
		groups = append(groups, sortedByLoad(dom.Racks))
	}

	return groups
}

// sortedByLoad returns a copy of racks sorted ascending by load. The
// sort is stable so equally loaded racks keep their index order.
func sortedByLoad(racks []*fleet.Rack) []*fleet.Rack {
	sorted := append([]*fleet.Rack(nil), racks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Load() < sorted[j].Load()
	})
	return sorted
}

// sortGroupsByLeadLoad orders groups[from:] by the load of each group's
// first rack, leaving any pinned prefix untouched.
func sortGroupsByLeadLoad(groups [][]*fleet.Rack, from int) {
	tail := groups[from:]
	sort.SliceStable(tail, func(i, j int) bool {
		return tail[i][0].Load() < tail[j][0].Load()
	})
}
