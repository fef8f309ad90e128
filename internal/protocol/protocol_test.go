package protocol

import (
	"strings"
	"testing"

	"github.com/fleetforge/fleetforge/internal/fleet"
)

func TestReader_Header(t *testing.T) {
	in := "2 3 4 2  4 8 4 8  1  1 2 4"
	r := NewReader(strings.NewReader(in))

	h, err := r.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}

	if h.Domains != 2 || h.RacksPerDomain != 3 || h.PMsPerRack != 4 {
		t.Errorf("Expected topology 2/3/4, got %d/%d/%d", h.Domains, h.RacksPerDomain, h.PMsPerRack)
	}
	if len(h.NodeCPU) != 2 || h.NodeCPU[0] != 4 || h.NodeMemory[1] != 8 {
		t.Errorf("Unexpected node templates: %v / %v", h.NodeCPU, h.NodeMemory)
	}
	if len(h.Types) != 1 {
		t.Fatalf("Expected 1 type, got %d", len(h.Types))
	}
	typ := h.Types[0]
	if typ.Index != 1 || typ.Nodes != 1 || typ.CPU != 2 || typ.Memory != 4 {
		t.Errorf("Unexpected type: %+v", typ)
	}
}

func TestReader_CreateGroupRequest(t *testing.T) {
	r := NewReader(strings.NewReader("1 7 2 3 1 2"))

	req, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	if req.Kind != KindCreateGroup {
		t.Fatalf("Expected kind %d, got %d", KindCreateGroup, req.Kind)
	}
	if req.GroupIndex != 7 || req.HardPartitions != 2 || req.SoftPMAntiAffinity != 3 {
		t.Errorf("Unexpected request: %+v", req)
	}
	if req.DomainAffinity != fleet.AffinitySoft || req.RackAffinity != fleet.AffinityHard {
		t.Errorf("Unexpected affinities: %v / %v", req.DomainAffinity, req.RackAffinity)
	}
}

func TestReader_CreateVMsRequest(t *testing.T) {
	r := NewReader(strings.NewReader("2 3 1 7 -1 10 11 12"))

	req, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	if req.Kind != KindCreateVMs {
		t.Fatalf("Expected kind %d, got %d", KindCreateVMs, req.Kind)
	}
	if req.TypeIndex != 1 || req.GroupIndex != 7 || req.Partition != -1 {
		t.Errorf("Unexpected request: %+v", req)
	}
	if len(req.VMIndices) != 3 || req.VMIndices[0] != 10 || req.VMIndices[2] != 12 {
		t.Errorf("Unexpected VM indices: %v", req.VMIndices)
	}
}

func TestReader_DeleteAndTerminate(t *testing.T) {
	r := NewReader(strings.NewReader("3 2 5 6\n4"))

	req, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if req.Kind != KindDeleteVMs || len(req.VMIndices) != 2 || req.VMIndices[1] != 6 {
		t.Errorf("Unexpected delete request: %+v", req)
	}

	req, err = r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if req.Kind != KindTerminate {
		t.Errorf("Expected terminate, got kind %d", req.Kind)
	}
}

func TestReader_InvalidKind(t *testing.T) {
	r := NewReader(strings.NewReader("9"))

	if _, err := r.Next(); err == nil {
		t.Fatal("Expected error for unknown request kind")
	}
}

func TestWriter_Output(t *testing.T) {
	var sb strings.Builder
	w := NewWriter(&sb)

	if err := w.WriteDecision(1, 2, 3, []int{4, 5}); err != nil {
		t.Fatalf("WriteDecision failed: %v", err)
	}
	if err := w.WriteFailure(); err != nil {
		t.Fatalf("WriteFailure failed: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	want := "1 2 3 4 5\n-1\n"
	if sb.String() != want {
		t.Errorf("Expected %q, got %q", want, sb.String())
	}
}
