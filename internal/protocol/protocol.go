// Package protocol implements the whitespace-delimited integer wire
// format: the topology and type header, the four request kinds, and the
// placement decision output.
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/fleetforge/fleetforge/internal/fleet"
)

// Request kinds, as they appear as the leading integer of a record.
const (
	KindCreateGroup = 1
	KindCreateVMs   = 2
	KindDeleteVMs   = 3
	KindTerminate   = 4
)

// Header is the parsed session preamble: topology shape, per-PM node
// templates and the type catalogue.
type Header struct {
	Domains        int
	RacksPerDomain int
	PMsPerRack     int

	NodeCPU    []int
	NodeMemory []int

	Types []*fleet.Type
}

// Request is one parsed request record. Only the fields of the matching
// kind are populated.
type Request struct {
	Kind int

	// KindCreateGroup (GroupIndex is also set for KindCreateVMs)
	GroupIndex         int
	HardPartitions     int
	SoftPMAntiAffinity int
	DomainAffinity     fleet.Affinity
	RackAffinity       fleet.Affinity

	// KindCreateVMs (VMIndices is also set for KindDeleteVMs)
	TypeIndex int
	Partition int
	VMIndices []int
}

// Reader parses the wire format token by token.
type Reader struct {
	sc *bufio.Scanner
}

// NewReader creates a Reader over the stream.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)
	return &Reader{sc: sc}
}

func (r *Reader) int() (int, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return 0, err
		}
		return 0, io.ErrUnexpectedEOF
	}
	return strconv.Atoi(r.sc.Text())
}

// ReadHeader parses the session preamble.
func (r *Reader) ReadHeader() (*Header, error) {
	h := &Header{}

	var err error
	if h.Domains, err = r.int(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if h.RacksPerDomain, err = r.int(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if h.PMsPerRack, err = r.int(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	nodes, err := r.int()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	h.NodeCPU = make([]int, nodes)
	h.NodeMemory = make([]int, nodes)
	for i := 0; i < nodes; i++ {
		if h.NodeCPU[i], err = r.int(); err != nil {
			return nil, fmt.Errorf("failed to read node template %d: %w", i+1, err)
		}
		if h.NodeMemory[i], err = r.int(); err != nil {
			return nil, fmt.Errorf("failed to read node template %d: %w", i+1, err)
		}
	}

	types, err := r.int()
	if err != nil {
		return nil, fmt.Errorf("failed to read type count: %w", err)
	}

	h.Types = make([]*fleet.Type, types)
	for i := 0; i < types; i++ {
		t := &fleet.Type{Index: i + 1}
		if t.Nodes, err = r.int(); err != nil {
			return nil, fmt.Errorf("failed to read type %d: %w", i+1, err)
		}
		if t.CPU, err = r.int(); err != nil {
			return nil, fmt.Errorf("failed to read type %d: %w", i+1, err)
		}
		if t.Memory, err = r.int(); err != nil {
			return nil, fmt.Errorf("failed to read type %d: %w", i+1, err)
		}
		h.Types[i] = t
	}

	return h, nil
}

// Next parses one request record.
func (r *Reader) Next() (*Request, error) {
	kind, err := r.int()
	if err != nil {
		return nil, fmt.Errorf("failed to read request kind: %w", err)
	}

	req := &Request{Kind: kind}

	switch kind {
	case KindCreateGroup:
		if req.GroupIndex, err = r.int(); err != nil {
			return nil, fmt.Errorf("failed to read create-group request: %w", err)
		}
		if req.HardPartitions, err = r.int(); err != nil {
			return nil, fmt.Errorf("failed to read create-group request: %w", err)
		}
		if req.SoftPMAntiAffinity, err = r.int(); err != nil {
			return nil, fmt.Errorf("failed to read create-group request: %w", err)
		}

		domA, err := r.int()
		if err != nil {
			return nil, fmt.Errorf("failed to read create-group request: %w", err)
		}
		if req.DomainAffinity, err = fleet.ParseAffinity(domA); err != nil {
			return nil, err
		}

		rackA, err := r.int()
		if err != nil {
			return nil, fmt.Errorf("failed to read create-group request: %w", err)
		}
		if req.RackAffinity, err = fleet.ParseAffinity(rackA); err != nil {
			return nil, err
		}

	case KindCreateVMs:
		count, err := r.int()
		if err != nil {
			return nil, fmt.Errorf("failed to read create-vms request: %w", err)
		}
		if req.TypeIndex, err = r.int(); err != nil {
			return nil, fmt.Errorf("failed to read create-vms request: %w", err)
		}
		if req.GroupIndex, err = r.int(); err != nil {
			return nil, fmt.Errorf("failed to read create-vms request: %w", err)
		}
		if req.Partition, err = r.int(); err != nil {
			return nil, fmt.Errorf("failed to read create-vms request: %w", err)
		}

		req.VMIndices = make([]int, count)
		for i := 0; i < count; i++ {
			if req.VMIndices[i], err = r.int(); err != nil {
				return nil, fmt.Errorf("failed to read create-vms request: %w", err)
			}
		}

	case KindDeleteVMs:
		count, err := r.int()
		if err != nil {
			return nil, fmt.Errorf("failed to read delete-vms request: %w", err)
		}

		req.VMIndices = make([]int, count)
		for i := 0; i < count; i++ {
			if req.VMIndices[i], err = r.int(); err != nil {
				return nil, fmt.Errorf("failed to read delete-vms request: %w", err)
			}
		}

	case KindTerminate:
		// No payload.

	default:
		return nil, fmt.Errorf("%w: request kind %d", fleet.ErrInvalidArgument, kind)
	}

	return req, nil
}

// Writer emits placement decisions and the failure sentinel.
type Writer struct {
	w *bufio.Writer
}

// NewWriter creates a Writer over the stream.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteDecision emits one placement line: domain rack pm node indices.
func (w *Writer) WriteDecision(domain, rack, pm int, nodes []int) error {
	if _, err := fmt.Fprintf(w.w, "%d %d %d", domain, rack, pm); err != nil {
		return err
	}
	for _, node := range nodes {
		if _, err := fmt.Fprintf(w.w, " %d", node); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w.w)
	return err
}

// WriteFailure emits the terminal failure sentinel.
func (w *Writer) WriteFailure() error {
	_, err := fmt.Fprintln(w.w, -1)
	return err
}

// Flush flushes buffered output.
func (w *Writer) Flush() error {
	return w.w.Flush()
}
