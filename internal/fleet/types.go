package fleet

// Type is a VM flavour: how many NUMA nodes a VM occupies and the
// cpu/memory cost of each node slice. All nodes of one VM are co-located
// on a single physical machine.
type Type struct {
	Index  int
	Nodes  int
	CPU    int
	Memory int
}

// TotalCPU returns the PM-level CPU demand of one VM of this flavour.
func (t *Type) TotalCPU() int {
	return t.Nodes * t.CPU
}

// TotalMemory returns the PM-level memory demand of one VM of this flavour.
func (t *Type) TotalMemory() int {
	return t.Nodes * t.Memory
}
