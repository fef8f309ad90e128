// Package scheduler implements batch VM placement over the fleet
// topology: candidate enumeration, feasibility search and plan scoring.
package scheduler

import (
	"sort"

	"go.uber.org/zap"

	"github.com/fleetforge/fleetforge/internal/fleet"
)

// Scheduler searches the fleet for the cheapest feasible placement of a
// batch of VMs. It mutates fleet state only transiently during the
// search; every trial is rolled back before the next one starts, and
// the winning plan is returned uncommitted.
type Scheduler struct {
	fleet  *fleet.Fleet
	logger *zap.Logger
}

// New creates a Scheduler over the given fleet.
func New(f *fleet.Fleet, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		fleet:  f,
		logger: logger.With(zap.String("component", "scheduler")),
	}
}

// Plan is one feasible placement of a whole batch: the chosen node
// tuple per VM index, and the penalty the plan was scored with.
type Plan struct {
	Placements map[int][]*fleet.Node
	Penalty    float64
}

// Schedule finds the lowest-penalty placement for the batch. All VMs
// belong to pg and share the flavour t. The fleet is left exactly as it
// was found; committing the plan is the caller's job. Returns
// fleet.ErrResourceExhausted when no rack group yields a feasible plan.
func (s *Scheduler) Schedule(pg *fleet.PlacementGroup, vms []*fleet.VM, t *fleet.Type) (*Plan, error) {
	groups := s.rackGroups(pg, len(vms), t)

	s.logger.Debug("Starting placement search",
		zap.Int("group", pg.Index),
		zap.Int("batch_size", len(vms)),
		zap.Int("type", t.Index),
		zap.Int("candidate_groups", len(groups)),
	)

	var best *Plan

	for _, racks := range groups {
		plan := s.planForGroup(pg, vms, t, racks)
		unplaceAll(vms)

		if plan == nil {
			continue
		}
		if best == nil || plan.Penalty < best.Penalty {
			best = plan
		}
	}

	if best == nil {
		s.logger.Warn("No feasible placement",
			zap.Int("group", pg.Index),
			zap.Int("batch_size", len(vms)),
			zap.Int("type", t.Index),
		)
		return nil, fleet.ErrResourceExhausted
	}

	s.logger.Debug("Placement search finished",
		zap.Int("group", pg.Index),
		zap.Float64("penalty", best.Penalty),
	)

	return best, nil
}

// planForGroup attempts to place the whole batch inside one rack group.
// The batch is split by partition and each partition is placed
// independently; VMs stay placed between partitions so later partitions
// see the load of earlier ones. Returns nil when any partition cannot
// be placed, leaving any partial placements for the caller to roll back.
func (s *Scheduler) planForGroup(pg *fleet.PlacementGroup, vms []*fleet.VM, t *fleet.Type, racks []*fleet.Rack) *Plan {
	byPartition := make(map[int][]*fleet.VM)
	for _, vm := range vms {
		byPartition[vm.Partition] = append(byPartition[vm.Partition], vm)
	}

	partitions := make([]int, 0, len(byPartition))
	for part := range byPartition {
		partitions = append(partitions, part)
	}
	sort.Ints(partitions)

	plan := &Plan{Placements: make(map[int][]*fleet.Node)}

	for _, part := range partitions {
		partVMs := byPartition[part]

		pg.RefreshDerived()

		start, extras, ok := s.startRacks(pg, part, racks)
		if !ok {
			return nil
		}

		placements, penalty, placed := s.placePartition(pg, partVMs, t, start, extras)
		if !placed {
			return nil
		}

		for idx, nodes := range placements {
			plan.Placements[idx] = nodes
		}
		plan.Penalty += penalty
	}

	plan.Penalty += meanLoad(racks)

	return plan
}

// placePartition runs the two-pass force loop with rack expansion: try
// the current rack set without forcing, then with the soft PM rule
// suspended, growing the set one overflow rack at a time until either a
// pass succeeds or the extras run dry.
func (s *Scheduler) placePartition(pg *fleet.PlacementGroup, vms []*fleet.VM, t *fleet.Type, start, extras []*fleet.Rack) (map[int][]*fleet.Node, float64, bool) {
	for _, force := range []bool{false, true} {
		current := append([]*fleet.Rack(nil), start...)
		remaining := append([]*fleet.Rack(nil), extras...)

		for {
			placements, penalty, ok := s.tryPlace(pg, vms, t, current, force)
			if ok {
				return placements, penalty, true
			}

			if len(remaining) == 0 {
				break
			}
			current = append(current, remaining[0])
			remaining = remaining[1:]
		}
	}

	return nil, 0, false
}

// startRacks picks the racks feasibility starts on for one partition of
// the batch, plus the overflow racks expansion may pull in, in order.
// ok is false when the partition has no rack to even start on.
func (s *Scheduler) startRacks(pg *fleet.PlacementGroup, partition int, group []*fleet.Rack) (start, extras []*fleet.Rack, ok bool) {
	switch {
	case partition > 0:
		// Racks hosting other partitions are off limits entirely. The
		// partition's own racks go first, most loaded first, so members
		// pack onto racks the partition already occupies.
		invalid := make(map[*fleet.Rack]struct{})
		for part, racks := range pg.PartitionRacks {
			if part == partition {
				continue
			}
			for rack := range racks {
				invalid[rack] = struct{}{}
			}
		}

		own := pg.PartitionRacks[partition]

		for _, rack := range group {
			if _, bad := invalid[rack]; bad {
				continue
			}
			if _, mine := own[rack]; mine {
				start = append(start, rack)
			} else {
				extras = append(extras, rack)
			}
		}

		sort.SliceStable(start, func(i, j int) bool {
			if start[i].Load() != start[j].Load() {
				return start[i].Load() > start[j].Load()
			}
			if start[i].Domain.Index != start[j].Domain.Index {
				return start[i].Domain.Index < start[j].Domain.Index
			}
			return start[i].Index < start[j].Index
		})

		if len(start) == 0 {
			if len(extras) == 0 {
				return nil, nil, false
			}
			start = extras[:1]
			extras = extras[1:]
		}

		return start, extras, true

	case pg.RackAffinity == fleet.AffinitySoft && pg.RackAffinityPossible:
		// Pin a single rack and let expansion widen only if it must:
		// the established target rack when the group holds it, else
		// the least loaded rack of the group.
		sorted := sortedByLoad(group)

		if pg.TargetRack != nil && containsRack(group, pg.TargetRack) {
			return []*fleet.Rack{pg.TargetRack}, withoutRack(sorted, pg.TargetRack), true
		}

		return sorted[:1], sorted[1:], true

	default:
		return sortedByLoad(group), nil, true
	}
}

// tryPlace attempts to fit every VM of the partition onto the given
// racks and scores the result. On success the VMs are left placed so
// the caller's next partition sees them; on failure everything this
// call placed is rolled back.
func (s *Scheduler) tryPlace(pg *fleet.PlacementGroup, vms []*fleet.VM, t *fleet.Type, racks []*fleet.Rack, force bool) (map[int][]*fleet.Node, float64, bool) {
	totalCPU := 0
	totalMemory := 0
	for _, rack := range racks {
		totalCPU += rack.AvailableCPU
		totalMemory += rack.AvailableMemory
	}
	if totalCPU < len(vms)*t.TotalCPU() || totalMemory < len(vms)*t.TotalMemory() {
		return nil, 0, false
	}

	placements := make(map[int][]*fleet.Node)

	s.placeEach(pg, vms, t, racks, false, placements)
	if force {
		s.placeEach(pg, vms, t, racks, true, placements)
	}

	for _, vm := range vms {
		if !vm.IsPlaced() {
			for _, placed := range vms {
				if placed.IsPlaced() {
					placed.Unplace()
				}
			}
			return nil, 0, false
		}
	}

	pg.RefreshDerived()

	penalty := 0.0

	if pg.SoftPMAntiAffinity > 0 && pg.SoftPMAntiAffinityPossible {
		for _, vm := range vms {
			if vm.HomePM().VMsByGroup[pg.Index] > pg.SoftPMAntiAffinity {
				penalty++
			}
		}
	}

	if pg.DomainAffinity == fleet.AffinitySoft && !pg.DomainAffinityPossible {
		penalty += 1000
	}
	if pg.RackAffinity == fleet.AffinitySoft && !pg.RackAffinityPossible {
		penalty += 1000
	}

	return placements, penalty, true
}

// placeEach makes one pass over the still-unplaced VMs. With force set
// the soft PM anti-affinity cap stops filtering candidate PMs.
func (s *Scheduler) placeEach(pg *fleet.PlacementGroup, vms []*fleet.VM, t *fleet.Type, racks []*fleet.Rack, force bool, placements map[int][]*fleet.Node) {
	for _, vm := range vms {
		if vm.IsPlaced() {
			continue
		}

		candidates := append([]*fleet.Rack(nil), racks...)
		sort.SliceStable(candidates, func(i, j int) bool {
			fi, fj := candidates[i].TypeFit(t), candidates[j].TypeFit(t)
			if fi != fj {
				return fi > fj
			}
			return candidates[i].Load() < candidates[j].Load()
		})

		for _, rack := range candidates {
			if !rack.HasResourcesFor(t) {
				continue
			}

			nodes := s.nodesOnRack(pg, rack, t, force)
			if nodes == nil {
				continue
			}

			placements[vm.Index] = nodes
			vm.Place(nodes)
			break
		}
	}
}

// nodesOnRack finds a node tuple for one VM on the rack, or nil. PMs
// are scanned in index order; within a PM the emptiest nodes are taken
// first.
func (s *Scheduler) nodesOnRack(pg *fleet.PlacementGroup, rack *fleet.Rack, t *fleet.Type, force bool) []*fleet.Node {
	for _, pm := range rack.PMs {
		if !pm.HasResourcesFor(t) {
			continue
		}

		if !force && pg.SoftPMAntiAffinity > 0 && pg.SoftPMAntiAffinityPossible &&
			pm.VMsByGroup[pg.Index] >= pg.SoftPMAntiAffinity {
			continue
		}

		nodes := append([]*fleet.Node(nil), pm.Nodes...)
		sort.SliceStable(nodes, func(i, j int) bool {
			return nodes[i].TypeFit(t) > nodes[j].TypeFit(t)
		})

		var chosen []*fleet.Node
		for _, node := range nodes {
			if !node.HasResources(t.CPU, t.Memory) {
				continue
			}
			chosen = append(chosen, node)
			if len(chosen) == t.Nodes {
				return chosen
			}
		}
	}

	return nil
}

// meanLoad returns the average load of the racks, or zero for an empty
// set.
func meanLoad(racks []*fleet.Rack) float64 {
	if len(racks) == 0 {
		return 0
	}

	sum := 0.0
	for _, rack := range racks {
		sum += rack.Load()
	}
	return sum / float64(len(racks))
}

// unplaceAll rolls back every placed VM of the batch.
func unplaceAll(vms []*fleet.VM) {
	for _, vm := range vms {
		if vm.IsPlaced() {
			vm.Unplace()
		}
	}
}

func containsRack(racks []*fleet.Rack, target *fleet.Rack) bool {
	for _, rack := range racks {
		if rack == target {
			return true
		}
	}
	return false
}

func withoutRack(racks []*fleet.Rack, target *fleet.Rack) []*fleet.Rack {
	out := make([]*fleet.Rack, 0, len(racks))
	for _, rack := range racks {
		if rack != target {
			out = append(out, rack)
		}
	}
	return out
}
