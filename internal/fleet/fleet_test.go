package fleet

import "testing"

func testType(index, nodes, cpu, memory int) *Type {
	return &Type{Index: index, Nodes: nodes, CPU: cpu, Memory: memory}
}

func TestNewFleet_Shape(t *testing.T) {
	f := NewFleet(2, 3, 4, []int{8, 8}, []int{16, 16})

	if len(f.Domains) != 2 {
		t.Fatalf("Expected 2 domains, got %d", len(f.Domains))
	}

	dom := f.Domains[1]
	if dom.Index != 2 {
		t.Errorf("Expected domain index 2, got %d", dom.Index)
	}
	if len(dom.Racks) != 3 {
		t.Fatalf("Expected 3 racks per domain, got %d", len(dom.Racks))
	}

	rack := dom.Racks[0]
	if len(rack.PMs) != 4 {
		t.Fatalf("Expected 4 PMs per rack, got %d", len(rack.PMs))
	}

	pm := rack.PMs[3]
	if pm.Index != 4 {
		t.Errorf("Expected PM index 4, got %d", pm.Index)
	}
	if len(pm.Nodes) != 2 {
		t.Fatalf("Expected 2 nodes per PM, got %d", len(pm.Nodes))
	}

	// Totals aggregate upward.
	if pm.TotalCPU != 16 || pm.TotalMemory != 32 {
		t.Errorf("Expected PM totals (16, 32), got (%d, %d)", pm.TotalCPU, pm.TotalMemory)
	}
	if rack.TotalCPU != 64 || rack.TotalMemory != 128 {
		t.Errorf("Expected rack totals (64, 128), got (%d, %d)", rack.TotalCPU, rack.TotalMemory)
	}
	if dom.TotalCPU != 192 || dom.TotalMemory != 384 {
		t.Errorf("Expected domain totals (192, 384), got (%d, %d)", dom.TotalCPU, dom.TotalMemory)
	}

	if racks := f.Racks(); len(racks) != 6 {
		t.Errorf("Expected 6 racks fleet-wide, got %d", len(racks))
	}
}

func TestNodeTypeFit(t *testing.T) {
	f := NewFleet(1, 1, 1, []int{4}, []int{8})
	node := f.Domains[0].Racks[0].PMs[0].Nodes[0]

	// cpu allows 2, memory allows 2
	if fit := node.TypeFit(testType(1, 1, 2, 4)); fit != 2 {
		t.Errorf("Expected fit 2, got %d", fit)
	}

	// memory is the binding dimension
	if fit := node.TypeFit(testType(2, 1, 1, 8)); fit != 1 {
		t.Errorf("Expected fit 1, got %d", fit)
	}
}

func TestPMTypeFit_MultiNodeType(t *testing.T) {
	f := NewFleet(1, 1, 1, []int{4, 4, 4, 4}, []int{8, 8, 8, 8})
	pm := f.Domains[0].Racks[0].PMs[0]

	// A 2-node flavour: four nodes each fitting 2 slices pair up into
	// two tuples of capacity 2 each.
	if fit := pm.TypeFit(testType(1, 2, 2, 4)); fit != 4 {
		t.Errorf("Expected fit 4, got %d", fit)
	}
}

func TestTypeFit_InvalidatedByClaim(t *testing.T) {
	f := NewFleet(1, 1, 1, []int{4}, []int{8})
	pm := f.Domains[0].Racks[0].PMs[0]
	node := pm.Nodes[0]
	typ := testType(1, 1, 2, 4)

	if fit := node.TypeFit(typ); fit != 2 {
		t.Fatalf("Expected fit 2, got %d", fit)
	}

	node.Claim(typ)
	if fit := node.TypeFit(typ); fit != 1 {
		t.Errorf("Expected fit 1 after claim, got %d", fit)
	}

	node.Release(typ)
	if fit := node.TypeFit(typ); fit != 2 {
		t.Errorf("Expected fit 2 after release, got %d", fit)
	}
}

func TestResources_Load(t *testing.T) {
	r := NewResources(10, 10)

	if load := r.Load(); load != 0 {
		t.Errorf("Expected zero load, got %f", load)
	}

	// Claim 2 cpu, 4 memory: memory dominates.
	r.Claim(testType(1, 1, 2, 4))
	if load := r.Load(); load != 0.4 {
		t.Errorf("Expected load 0.4, got %f", load)
	}
}

func TestVM_PlaceUnplaceRoundTrip(t *testing.T) {
	f := NewFleet(1, 1, 1, []int{4, 4}, []int{8, 8})
	pm := f.Domains[0].Racks[0].PMs[0]
	rack := pm.Rack
	dom := rack.Domain

	typ := testType(1, 2, 2, 4)
	pg := NewPlacementGroup(1, 0, 0, AffinityNone, AffinityNone)
	vm := &VM{Index: 1, Type: typ, Group: pg}
	pg.AddVM(vm)

	beforeCPU := dom.AvailableCPU
	beforeMemory := dom.AvailableMemory

	vm.Place([]*Node{pm.Nodes[0], pm.Nodes[1]})

	if !vm.IsPlaced() {
		t.Fatal("Expected VM to be placed")
	}
	if vm.HomePM() != pm {
		t.Error("Expected home PM to be the placement PM")
	}
	if pm.VMsByGroup[pg.Index] != 1 {
		t.Errorf("Expected group count 1, got %d", pm.VMsByGroup[pg.Index])
	}

	// Each of the two nodes is charged one slice at every level.
	if dom.AvailableCPU != beforeCPU-4 || dom.AvailableMemory != beforeMemory-8 {
		t.Errorf("Expected domain avail (%d, %d), got (%d, %d)",
			beforeCPU-4, beforeMemory-8, dom.AvailableCPU, dom.AvailableMemory)
	}
	if pm.Nodes[0].AvailableCPU != 2 || pm.Nodes[0].AvailableMemory != 4 {
		t.Errorf("Expected node avail (2, 4), got (%d, %d)",
			pm.Nodes[0].AvailableCPU, pm.Nodes[0].AvailableMemory)
	}

	vm.Unplace()

	if vm.IsPlaced() {
		t.Fatal("Expected VM to be unplaced")
	}
	if pm.VMsByGroup[pg.Index] != 0 {
		t.Errorf("Expected group count 0, got %d", pm.VMsByGroup[pg.Index])
	}
	if dom.AvailableCPU != beforeCPU || dom.AvailableMemory != beforeMemory {
		t.Errorf("Expected domain avail restored to (%d, %d), got (%d, %d)",
			beforeCPU, beforeMemory, dom.AvailableCPU, dom.AvailableMemory)
	}
	if rack.AvailableCPU != rack.TotalCPU || pm.AvailableCPU != pm.TotalCPU {
		t.Error("Expected rack and PM availability fully restored")
	}
}
