// Package store holds the per-partition mapping from variable
// identifiers to cells, and the waiter queue encapsulated in each
// cell (§3, §4.B, §4.C). It knows nothing about lattices beyond the
// registry it is handed for threshold evaluation, and nothing about
// routing or the alias protocol: those live in exec and partition.
package store

import (
	"container/list"
	"sync"

	"github.com/latticeflow/dflow/lattice"
	"github.com/latticeflow/dflow/varid"
)

// Value is whatever a cell currently holds: the lattice bottom, an
// opaque concrete value, or an unresolved alias marker. Per the §9
// design note this replaces the source's single polymorphic field
// with a small tagged union.
type Value interface {
	isValue()
}

// Bottom marks a declared non-lattice cell that has not been bound
// yet. A lattice cell instead holds its lattice's bottom wrapped in
// Concrete from creation (see exec.Declare).
type Bottom struct{}

func (Bottom) isValue() {}

// Concrete wraps an opaque bound (or lattice) payload.
type Concrete struct {
	Payload lattice.Value
}

func (Concrete) isValue() {}

// Alias marks a cell bound to another cell's identifier, pending
// resolution via the fetch/reply_fetch protocol (§4.E). Invariant 6:
// Alias may only appear on a non-bound cell.
type Alias struct {
	Target varid.ID
}

func (Alias) isValue() {}

// Undefined is the designated empty sentinel payload (§4.D bind):
// binding a value equal to Undefined{} does not allocate a successor.
type Undefined struct{}

// Handle is a reply-capable target for a parked waiter: either an
// in-process channel or, cross-partition, a token the coordinator
// routes a reply through. Resolve must be safe to call at most once
// and must never block its caller.
type Handle interface {
	Resolve(value Value, next varid.ID)
}

// WaiterKind distinguishes the two waiter record shapes from §3.
type WaiterKind int

const (
	PlainWaiter WaiterKind = iota
	ThresholdWaiter
)

// Waiter is one parked reader, as specified in §3.
type Waiter struct {
	Handle    Handle
	Kind      WaiterKind
	Threshold lattice.Threshold
}

// Snapshot is the wire-level view of a cell exchanged by reply_fetch
// and by handoff (§6): "at least {value, next, type, bound}".
type Snapshot struct {
	Bound   bool
	Value   Value
	Next    *varid.ID
	Type    lattice.Type
	HasType bool
}

// Cell is the record stored at each VarId (§3). All mutation happens
// with the lock held; callers hold the lock across whatever sequence
// of field reads/writes one operation needs (Wake included), then
// resolve the waiters Wake returned outside the lock so a
// Handle.Resolve callback can never deadlock against the cell it was
// woken from.
type Cell struct {
	mu sync.Mutex

	Type    lattice.Type
	HasType bool
	Value   Value
	Bound   bool
	Next    *varid.ID
	Aliases []varid.ID

	Lazy    bool
	Creator Handle

	waiters *list.List // of Waiter, oldest first
}

// NewCell returns a freshly allocated, empty cell. Callers must still
// set Value/Bound/Type per the §3 lifecycle before publishing it into
// a Store.
func NewCell() *Cell {
	return &Cell{waiters: list.New()}
}

// Lock and Unlock expose the cell's mutex so exec can hold it across a
// multi-field read-modify-write without this package needing to know
// the shape of every operation.
func (c *Cell) Lock()   { c.mu.Lock() }
func (c *Cell) Unlock() { c.mu.Unlock() }

// Snapshot captures the cell's current state for reply_fetch or
// handoff. Must be called with the lock held.
func (c *Cell) Snapshot() Snapshot {
	return Snapshot{
		Bound:   c.Bound,
		Value:   c.Value,
		Next:    c.Next,
		Type:    c.Type,
		HasType: c.HasType,
	}
}

// EnqueuePlain parks a Plain waiter (§3). Must be called with the lock
// held, and only while the cell is unbound.
func (c *Cell) EnqueuePlain(h Handle) {
	c.waiters.PushBack(Waiter{Handle: h, Kind: PlainWaiter})
}

// EnqueueThreshold parks a Threshold waiter (§3). Must be called with
// the lock held.
func (c *Cell) EnqueueThreshold(h Handle, th lattice.Threshold) {
	c.waiters.PushBack(Waiter{Handle: h, Kind: ThresholdWaiter, Threshold: th})
}

// HasWaiters reports whether any waiter is currently parked. Must be
// called with the lock held; used by wait_needed (§4.D).
func (c *Cell) HasWaiters() bool {
	return c.waiters.Len() > 0
}

// Cancel removes a previously enqueued waiter, identified by handle
// identity, from the queue. Reports whether it found and removed one.
// Must be called with the lock held.
func (c *Cell) Cancel(h Handle) bool {
	for e := c.waiters.Front(); e != nil; e = e.Next() {
		if e.Value.(Waiter).Handle == h {
			c.waiters.Remove(e)
			return true
		}
	}
	return false
}

// ReadyWaiter is a waiter that is ready to be woken, paired with the
// value it should be woken with. Wake returns these so the caller can
// resolve them after releasing the cell's lock.
type ReadyWaiter struct {
	Handle Handle
	Value  Value
}

// Wake scans the waiter queue against the cell's current value: every
// Plain waiter is woken and removed, and every Threshold waiter whose
// predicate is now met under reg is woken and removed, with the rest
// re-queued (§4.C, invariant 4). Must be called with the lock held;
// the returned waiters should be resolved by the caller after
// unlocking, so a Handle.Resolve implementation can safely re-enter
// the store.
func (c *Cell) Wake(reg *lattice.Registry) []ReadyWaiter {
	var ready []ReadyWaiter
	kept := list.New()
	for e := c.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(Waiter)
		switch w.Kind {
		case PlainWaiter:
			ready = append(ready, ReadyWaiter{w.Handle, c.Value})
		case ThresholdWaiter:
			if reg.ThresholdMet(c.Type, valuePayload(c.Value), w.Threshold) {
				ready = append(ready, ReadyWaiter{w.Handle, c.Value})
			} else {
				kept.PushBack(w)
			}
		}
	}
	c.waiters = kept
	return ready
}

// valuePayload extracts the lattice.Value a threshold predicate should
// be evaluated against, treating Bottom as the lattice's own zero
// payload would only ever arise for lattice cells, whose Value is
// always Concrete once bound (invariant 3 says bound is true from
// creation, so a freshly created lattice cell's Value already holds
// the registry's Bottom() wrapped in Concrete — see exec.Declare).
func valuePayload(v Value) lattice.Value {
	if c, ok := v.(Concrete); ok {
		return c.Payload
	}
	return nil
}
