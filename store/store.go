package store

import (
	"sync"

	"github.com/latticeflow/dflow/varid"
)

// Store is the in-memory mapping VarId → Cell for one partition
// (§4.B). Concurrent lookups share a read lock on the map; all
// further serialization happens per-cell inside the
// Cell itself, or, in this implementation, by routing every mutating
// operation through the owning partition's single command loop (see
// package partition).
type Store struct {
	mu    sync.RWMutex
	cells map[varid.ID]*Cell
}

// New returns an empty store.
func New() *Store {
	return &Store{cells: make(map[varid.ID]*Cell)}
}

// Get returns the cell at id, if any.
func (s *Store) Get(id varid.ID) (*Cell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cells[id]
	return c, ok
}

// CreateIfAbsent inserts cell at id unless a cell already exists
// there, in which case the existing cell is returned unchanged. This
// is the insert-if-absent simplification §4.D explicitly allows for
// declare, and is also what handoff restoration (§6) needs.
func (s *Store) CreateIfAbsent(id varid.ID, cell *Cell) (actual *Cell, inserted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.cells[id]; ok {
		return existing, false
	}
	s.cells[id] = cell
	return cell, true
}

// Restore inserts a cell reconstructed from a handoff Snapshot,
// insert-if-absent, per §6 "Persisted state". It does not wake
// waiters: a freshly restored cell has none yet.
func (s *Store) Restore(id varid.ID, snap Snapshot) (actual *Cell, inserted bool) {
	c := NewCell()
	c.Bound = snap.Bound
	c.Value = snap.Value
	c.Next = snap.Next
	c.Type = snap.Type
	c.HasType = snap.HasType
	return s.CreateIfAbsent(id, c)
}

// Len reports the number of cells currently held. Mainly useful for
// tests and diagnostics.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells)
}
