package journal

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/fleetforge/fleetforge/internal/config"
)

func TestMemory_RecordsPerSession(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.RecordPlacements(ctx, "a", []Placement{
		{VMIndex: 1, Group: 1, Type: 1, Domain: 1, Rack: 1, PM: 1, Nodes: []int{1}},
		{VMIndex: 2, Group: 1, Type: 1, Domain: 1, Rack: 2, PM: 1, Nodes: []int{1}},
	})
	if err != nil {
		t.Fatalf("RecordPlacements failed: %v", err)
	}
	if err := m.RecordDeletions(ctx, "a", []int{1}); err != nil {
		t.Fatalf("RecordDeletions failed: %v", err)
	}

	if got := m.Placements("a"); len(got) != 2 || got[1].Rack != 2 {
		t.Errorf("Unexpected placements: %+v", got)
	}
	if got := m.Deletions("a"); len(got) != 1 || got[0] != 1 {
		t.Errorf("Unexpected deletions: %+v", got)
	}

	// Sessions are isolated.
	if got := m.Placements("b"); len(got) != 0 {
		t.Errorf("Expected empty history for session b, got %+v", got)
	}
}

func TestNew_BackendSelection(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ctx := context.Background()

	jnl, err := New(ctx, config.JournalConfig{Backend: "none"}, logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := jnl.(Nop); !ok {
		t.Errorf("Expected Nop backend, got %T", jnl)
	}

	jnl, err = New(ctx, config.JournalConfig{Backend: "memory"}, logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := jnl.(*Memory); !ok {
		t.Errorf("Expected Memory backend, got %T", jnl)
	}

	if _, err := New(ctx, config.JournalConfig{Backend: "bogus"}, logger); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
