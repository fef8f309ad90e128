package fleet

// VM is a virtual machine. Nodes is empty while the VM is unplaced;
// otherwise it holds exactly Type.Nodes nodes, all on one PM. The first
// node's PM is the VM's home PM and carries the group count for it.
type VM struct {
	Index     int
	Type      *Type
	Group     *PlacementGroup
	Partition int

	Nodes []*Node
}

// Place charges the VM onto the given nodes, claiming resources on all
// four topology levels per node. The caller has already verified the
// placement: the nodes share a PM, are Type.Nodes many and have capacity.
func (vm *VM) Place(nodes []*Node) {
	vm.Nodes = nodes

	for _, node := range nodes {
		node.Claim(vm.Type)
		node.PM.Claim(vm.Type)
		node.PM.Rack.Claim(vm.Type)
		node.PM.Rack.Domain.Claim(vm.Type)
	}

	vm.Nodes[0].PM.VMsByGroup[vm.Group.Index]++
}

// Unplace is the exact inverse of Place.
func (vm *VM) Unplace() {
	for _, node := range vm.Nodes {
		node.Release(vm.Type)
		node.PM.Release(vm.Type)
		node.PM.Rack.Release(vm.Type)
		node.PM.Rack.Domain.Release(vm.Type)
	}

	vm.Nodes[0].PM.VMsByGroup[vm.Group.Index]--

	vm.Nodes = nil
}

// IsPlaced reports whether the VM currently occupies nodes.
func (vm *VM) IsPlaced() bool {
	return len(vm.Nodes) > 0
}

// HomePM returns the PM attributed with this VM, or nil if unplaced.
func (vm *VM) HomePM() *PM {
	if !vm.IsPlaced() {
		return nil
	}
	return vm.Nodes[0].PM
}
