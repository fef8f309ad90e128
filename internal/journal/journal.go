// Package journal records committed placement decisions to an external
// store so a session's history can be audited after the fact. The
// engine treats journal failures as non-fatal; a placement stands even
// when its record could not be written.
package journal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fleetforge/fleetforge/internal/config"
)

// Placement is one journaled VM placement. Seq is the session-local
// request sequence number; Penalty is the score of the committed plan
// the placement belongs to.
type Placement struct {
	Seq     int     `json:"seq"`
	VMIndex int     `json:"vm_index"`
	Group   int     `json:"group"`
	Type    int     `json:"type"`
	Domain  int     `json:"domain"`
	Rack    int     `json:"rack"`
	PM      int     `json:"pm"`
	Nodes   []int   `json:"nodes"`
	Penalty float64 `json:"penalty"`
}

// Journal persists placement history for a session.
type Journal interface {
	// RecordPlacements appends one entry per committed VM of a batch.
	RecordPlacements(ctx context.Context, sessionID string, placements []Placement) error

	// RecordDeletions appends a deletion marker per removed VM index.
	RecordDeletions(ctx context.Context, sessionID string, vmIndices []int) error

	// Close releases the backend connection, if any.
	Close() error
}

// New creates the journal backend named by the configuration.
func New(ctx context.Context, cfg config.JournalConfig, logger *zap.Logger) (Journal, error) {
	switch cfg.Backend {
	case "", "none":
		return Nop{}, nil
	case "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(cfg.Redis, logger)
	case "postgres":
		return NewPostgres(ctx, cfg.Database, logger)
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Backend)
	}
}

// Nop is a journal that records nothing.
type Nop struct{}

func (Nop) RecordPlacements(context.Context, string, []Placement) error { return nil }
func (Nop) RecordDeletions(context.Context, string, []int) error        { return nil }
func (Nop) Close() error                                                { return nil }
