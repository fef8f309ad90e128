package protocol

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fleetforge/fleetforge/internal/engine"
	"github.com/fleetforge/fleetforge/internal/fleet"
)

// RunSession drives the engine from a request stream until a terminate
// request, a terminal failure or end of input. On an infeasible batch
// or an exhausted budget it writes the failure sentinel and returns the
// engine error; clean termination returns nil.
func RunSession(ctx context.Context, eng *engine.Engine, r *Reader, w *Writer, logger *zap.Logger) error {
	defer w.Flush()

	logger = logger.With(zap.String("component", "session"))

	for {
		req, err := r.Next()
		if err != nil {
			return err
		}

		switch req.Kind {
		case KindCreateGroup:
			err := eng.CreateGroup(req.GroupIndex, req.HardPartitions, req.SoftPMAntiAffinity, req.DomainAffinity, req.RackAffinity)
			if err != nil {
				return err
			}

		case KindCreateVMs:
			decisions, err := eng.CreateVMs(ctx, req.VMIndices, req.TypeIndex, req.GroupIndex, req.Partition)
			if errors.Is(err, fleet.ErrResourceExhausted) || errors.Is(err, fleet.ErrBudgetExceeded) {
				if werr := w.WriteFailure(); werr != nil {
					return werr
				}
				return err
			}
			if err != nil {
				return err
			}

			for _, d := range decisions {
				if err := w.WriteDecision(d.Domain, d.Rack, d.PM, d.Nodes); err != nil {
					return err
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}

		case KindDeleteVMs:
			if err := eng.DeleteVMs(ctx, req.VMIndices); err != nil {
				return err
			}

		case KindTerminate:
			eng.Terminate()

			stats := eng.Stats()
			logger.Info("Session complete",
				zap.Int("requests", stats.Requests),
				zap.Int("placed_vms", stats.PlacedVMs),
				zap.Duration("uptime", stats.Uptime),
			)
			return nil
		}
	}
}
