// Package engine hosts the session state of the placement engine: the
// fleet, the type catalogue, the placement group and VM registries, and
// the batch coordinator that drives the scheduler and commits its plans.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetforge/fleetforge/internal/fleet"
	"github.com/fleetforge/fleetforge/internal/journal"
	"github.com/fleetforge/fleetforge/internal/scheduler"
)

// Config holds the engine configuration.
type Config struct {
	// WallClockBudget is the hard budget for the whole session. Creation
	// requests arriving after it has elapsed are refused terminally.
	WallClockBudget time.Duration `mapstructure:"wall_clock_budget"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		WallClockBudget: 14 * time.Second,
	}
}

// Engine is a single placement session. It is not safe for concurrent
// use; requests are strictly sequential.
type Engine struct {
	sessionID string

	fleet  *fleet.Fleet
	types  map[int]*fleet.Type
	groups map[int]*fleet.PlacementGroup
	vms    map[int]*fleet.VM

	sched   *scheduler.Scheduler
	journal journal.Journal
	logger  *zap.Logger

	started    time.Time
	budget     time.Duration
	terminated bool

	stats Stats
}

// Stats is a snapshot of session counters.
type Stats struct {
	SessionID string
	Groups    int
	PlacedVMs int
	Requests  int
	Uptime    time.Duration
}

// PlacementDecision is one committed VM placement, 1-based at every
// level, ready for the wire.
type PlacementDecision struct {
	VMIndex int
	Domain  int
	Rack    int
	PM      int
	Nodes   []int
}

// New creates an engine session over the fleet and type catalogue. The
// budget clock starts immediately.
func New(f *fleet.Fleet, types []*fleet.Type, cfg Config, jnl journal.Journal, logger *zap.Logger) *Engine {
	byIndex := make(map[int]*fleet.Type, len(types))
	for _, t := range types {
		byIndex[t.Index] = t
	}

	e := &Engine{
		sessionID: uuid.NewString(),
		fleet:     f,
		types:     byIndex,
		groups:    make(map[int]*fleet.PlacementGroup),
		vms:       make(map[int]*fleet.VM),
		sched:     scheduler.New(f, logger),
		journal:   jnl,
		logger:    logger.With(zap.String("component", "engine")),
		started:   time.Now(),
		budget:    cfg.WallClockBudget,
	}

	e.logger.Info("Session started",
		zap.String("session_id", e.sessionID),
		zap.Int("domains", len(f.Domains)),
		zap.Int("types", len(types)),
		zap.Duration("budget", cfg.WallClockBudget),
	)

	return e
}

// CreateGroup registers a placement group.
func (e *Engine) CreateGroup(index, hardPartitions, softPMAntiAffinity int, domainAffinity, rackAffinity fleet.Affinity) error {
	if e.terminated {
		return fleet.ErrSessionClosed
	}
	if _, exists := e.groups[index]; exists {
		return fmt.Errorf("%w: placement group %d", fleet.ErrAlreadyExists, index)
	}

	pg := fleet.NewPlacementGroup(index, hardPartitions, softPMAntiAffinity, domainAffinity, rackAffinity)
	e.groups[index] = pg
	e.stats.Groups++
	e.stats.Requests++

	e.logger.Debug("Placement group created",
		zap.Int("group", index),
		zap.Int("hard_partitions", pg.HardRackAntiAffinityPartitions),
		zap.Int("soft_pm_anti_affinity", softPMAntiAffinity),
		zap.String("domain_affinity", domainAffinity.String()),
		zap.String("rack_affinity", rackAffinity.String()),
	)

	return nil
}

// CreateVMs places a batch of VMs atomically: either every VM of the
// batch is committed and its decision returned in input index order, or
// the session terminates. The wall-clock budget is checked once, on
// entry; a batch that starts in time is allowed to finish.
func (e *Engine) CreateVMs(ctx context.Context, indices []int, typeIndex, groupIndex, partition int) ([]PlacementDecision, error) {
	if e.terminated {
		return nil, fleet.ErrSessionClosed
	}
	if time.Since(e.started) >= e.budget {
		e.terminated = true
		e.logger.Warn("Wall-clock budget exhausted",
			zap.Duration("elapsed", time.Since(e.started)),
			zap.Duration("budget", e.budget),
		)
		return nil, fleet.ErrBudgetExceeded
	}
	e.stats.Requests++

	t, ok := e.types[typeIndex]
	if !ok {
		return nil, fmt.Errorf("%w: type %d", fleet.ErrNotFound, typeIndex)
	}
	pg, ok := e.groups[groupIndex]
	if !ok {
		return nil, fmt.Errorf("%w: placement group %d", fleet.ErrNotFound, groupIndex)
	}
	for _, idx := range indices {
		if _, exists := e.vms[idx]; exists {
			return nil, fmt.Errorf("%w: vm %d", fleet.ErrAlreadyExists, idx)
		}
	}

	if pg.HardRackAntiAffinityPartitions == 0 {
		partition = 0
	}

	vms := make([]*fleet.VM, len(indices))
	for i, idx := range indices {
		part := partition
		if partition == -1 {
			part = i + 1
		}
		vms[i] = &fleet.VM{
			Index:     idx,
			Type:      t,
			Group:     pg,
			Partition: part,
		}
		pg.AddVM(vms[i])
		e.vms[idx] = vms[i]
	}

	plan, err := e.sched.Schedule(pg, vms, t)
	if err != nil {
		for _, vm := range vms {
			pg.RemoveVM(vm)
			delete(e.vms, vm.Index)
		}
		e.terminated = true
		return nil, err
	}

	decisions := make([]PlacementDecision, len(vms))
	for i, vm := range vms {
		vm.Place(plan.Placements[vm.Index])
		decisions[i] = decisionFor(vm)
	}
	pg.RefreshDerived()
	e.stats.PlacedVMs += len(vms)

	entries := journalEntries(decisions, e.stats.Requests, groupIndex, typeIndex, plan.Penalty)
	if err := e.journal.RecordPlacements(ctx, e.sessionID, entries); err != nil {
		e.logger.Warn("Journal write failed", zap.Error(err))
	}

	e.logger.Debug("Batch committed",
		zap.Int("group", groupIndex),
		zap.Int("type", typeIndex),
		zap.Int("batch_size", len(vms)),
		zap.Float64("penalty", plan.Penalty),
	)

	return decisions, nil
}

// DeleteVMs releases a batch of VMs and unregisters them.
func (e *Engine) DeleteVMs(ctx context.Context, indices []int) error {
	if e.terminated {
		return fleet.ErrSessionClosed
	}
	e.stats.Requests++

	for _, idx := range indices {
		vm, ok := e.vms[idx]
		if !ok {
			return fmt.Errorf("%w: vm %d", fleet.ErrNotFound, idx)
		}

		vm.Unplace()
		vm.Group.RemoveVM(vm)
		delete(e.vms, idx)
		e.stats.PlacedVMs--
	}

	if err := e.journal.RecordDeletions(ctx, e.sessionID, indices); err != nil {
		e.logger.Warn("Journal write failed", zap.Error(err))
	}

	e.logger.Debug("Batch deleted", zap.Int("batch_size", len(indices)))

	return nil
}

// Terminate ends the session cleanly. Further requests are refused.
func (e *Engine) Terminate() {
	if e.terminated {
		return
	}
	e.terminated = true

	e.logger.Info("Session terminated",
		zap.String("session_id", e.sessionID),
		zap.Duration("uptime", time.Since(e.started)),
		zap.Int("placed_vms", e.stats.PlacedVMs),
	)
}

// Terminated reports whether the session has ended, cleanly or not.
func (e *Engine) Terminated() bool {
	return e.terminated
}

// Stats returns a snapshot of the session counters.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.SessionID = e.sessionID
	s.Uptime = time.Since(e.started)
	return s
}

func decisionFor(vm *fleet.VM) PlacementDecision {
	pm := vm.HomePM()

	nodes := make([]int, len(vm.Nodes))
	for i, node := range vm.Nodes {
		nodes[i] = node.Index
	}

	return PlacementDecision{
		VMIndex: vm.Index,
		Domain:  pm.Rack.Domain.Index,
		Rack:    pm.Rack.Index,
		PM:      pm.Index,
		Nodes:   nodes,
	}
}

func journalEntries(decisions []PlacementDecision, seq, groupIndex, typeIndex int, penalty float64) []journal.Placement {
	entries := make([]journal.Placement, len(decisions))
	for i, d := range decisions {
		entries[i] = journal.Placement{
			Seq:     seq,
			VMIndex: d.VMIndex,
			Group:   groupIndex,
			Type:    typeIndex,
			Domain:  d.Domain,
			Rack:    d.Rack,
			PM:      d.PM,
			Nodes:   d.Nodes,
			Penalty: penalty,
		}
	}
	return entries
}
