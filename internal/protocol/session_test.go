package protocol

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fleetforge/fleetforge/internal/engine"
	"github.com/fleetforge/fleetforge/internal/fleet"
	"github.com/fleetforge/fleetforge/internal/journal"
)

// runStream drives a full session from an input stream and returns the
// output and the session error.
func runStream(t *testing.T, in string) (string, error) {
	t.Helper()

	logger, _ := zap.NewDevelopment()

	reader := NewReader(strings.NewReader(in))
	header, err := reader.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}

	f := fleet.NewFleet(header.Domains, header.RacksPerDomain, header.PMsPerRack, header.NodeCPU, header.NodeMemory)
	eng := engine.New(f, header.Types, engine.Config{WallClockBudget: 14 * time.Second}, journal.Nop{}, logger)

	var sb strings.Builder
	writer := NewWriter(&sb)

	err = RunSession(context.Background(), eng, reader, writer, logger)
	return sb.String(), err
}

func TestRunSession_BasicFit(t *testing.T) {
	out, err := runStream(t, `
		1 1 1 2  4 8 4 8
		1  1 2 4
		1 1 0 0 0 0
		2 1 1 1 -1 1
		4
	`)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}

	if out != "1 1 1 1\n" {
		t.Errorf("Expected %q, got %q", "1 1 1 1\n", out)
	}
}

func TestRunSession_CapacityExhaustionEmitsSentinel(t *testing.T) {
	out, err := runStream(t, `
		1 1 1 2  4 8 4 8
		1  1 2 4
		1 1 0 0 0 0
		2 1 1 1 -1 1
		2 1 1 1 -1 2
		2 1 1 1 -1 3
		2 1 1 1 -1 4
		2 1 1 1 -1 5
	`)
	if !errors.Is(err, fleet.ErrResourceExhausted) {
		t.Fatalf("Expected ErrResourceExhausted, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 {
		t.Fatalf("Expected 5 output lines, got %d: %q", len(lines), out)
	}
	if lines[4] != "-1" {
		t.Errorf("Expected trailing sentinel, got %q", lines[4])
	}
}

func TestRunSession_DeleteFreesSlot(t *testing.T) {
	out, err := runStream(t, `
		1 1 1 2  4 8 4 8
		1  1 2 4
		1 1 0 0 0 0
		2 1 1 1 -1 1
		3 1 1
		2 1 1 1 -1 2
		4
	`)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}

	if out != "1 1 1 1\n1 1 1 1\n" {
		t.Errorf("Expected two identical placements, got %q", out)
	}
}

func TestRunSession_PartitionedBatchSplitsRacks(t *testing.T) {
	out, err := runStream(t, `
		2 2 1 1  8 8
		1  1 1 1
		1 1 2 0 0 0
		2 2 1 1 -1 1 2
		4
	`)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 output lines, got %d: %q", len(lines), out)
	}
	if lines[0] == lines[1] {
		t.Errorf("Expected members on distinct racks, both at %q", lines[0])
	}
}

func TestRunSession_Deterministic(t *testing.T) {
	in := `
		2 3 2 2  8 16 8 16
		2  1 2 4  2 4 8
		1 1 0 0 1 1
		1 2 3 1 0 0
		2 4 1 1 0 1 2 3 4
		2 3 2 2 -1 5 6 7
		3 2 2 3
		2 2 1 1 0 8 9
		4
	`

	first, err := runStream(t, in)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		again, err := runStream(t, in)
		if err != nil {
			t.Fatalf("Repeat session failed: %v", err)
		}
		if again != first {
			t.Fatalf("Expected identical output across runs:\n%q\n%q", first, again)
		}
	}
}
