package journal

import (
	"context"
	"sync"
)

// Memory is an in-memory journal, used in tests and for sessions that
// want history without an external store.
type Memory struct {
	mu      sync.Mutex
	placed  map[string][]Placement
	deleted map[string][]int
}

// NewMemory creates an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{
		placed:  make(map[string][]Placement),
		deleted: make(map[string][]int),
	}
}

// RecordPlacements appends the batch to the session's history.
func (m *Memory) RecordPlacements(_ context.Context, sessionID string, placements []Placement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.placed[sessionID] = append(m.placed[sessionID], placements...)
	return nil
}

// RecordDeletions appends the deleted indices to the session's history.
func (m *Memory) RecordDeletions(_ context.Context, sessionID string, vmIndices []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleted[sessionID] = append(m.deleted[sessionID], vmIndices...)
	return nil
}

// Placements returns the recorded placements for a session.
func (m *Memory) Placements(sessionID string) []Placement {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Placement(nil), m.placed[sessionID]...)
}

// Deletions returns the recorded deletions for a session.
func (m *Memory) Deletions(sessionID string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]int(nil), m.deleted[sessionID]...)
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
