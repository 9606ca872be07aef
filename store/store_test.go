package store_test

import (
	"testing"

	"github.com/latticeflow/dflow/lattice"
	"github.com/latticeflow/dflow/store"
	"github.com/latticeflow/dflow/varid"
)

type recordHandle struct{ got []store.Value }

func (h *recordHandle) Resolve(v store.Value, next varid.ID) { h.got = append(h.got, v) }

func TestCreateIfAbsentReturnsExisting(t *testing.T) {
	s := store.New()
	id := varid.New()
	c1 := store.NewCell()
	c2 := store.NewCell()

	actual, inserted := s.CreateIfAbsent(id, c1)
	if !inserted || actual != c1 {
		t.Fatalf("expected first insert to succeed with c1, got inserted=%v actual=%p", inserted, actual)
	}

	actual, inserted = s.CreateIfAbsent(id, c2)
	if inserted || actual != c1 {
		t.Fatalf("expected second insert to be rejected, keeping c1, got inserted=%v actual=%p", inserted, actual)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 cell, got %d", s.Len())
	}
}

func TestCellWakePlainWaiters(t *testing.T) {
	c := store.NewCell()
	reg := lattice.NewRegistry()

	h1, h2 := &recordHandle{}, &recordHandle{}
	c.Lock()
	c.EnqueuePlain(h1)
	c.EnqueuePlain(h2)
	c.Value = store.Concrete{Payload: "v"}
	c.Bound = true
	ready := c.Wake(reg)
	c.Unlock()

	if len(ready) != 2 {
		t.Fatalf("expected 2 ready waiters, got %d", len(ready))
	}
	if c.HasWaiters() {
		t.Fatal("expected waiter queue to be drained")
	}
}

func TestCellWakeKeepsUnmetThresholds(t *testing.T) {
	c := store.NewCell()
	reg := lattice.NewRegistry()
	reg.Register("gcounter", lattice.GCounter{})

	c.Type, c.HasType = "gcounter", true
	c.Value = store.Concrete{Payload: lattice.GCounterValue{"a": 1}}
	c.Bound = true

	low := &recordHandle{}
	high := &recordHandle{}
	c.Lock()
	c.EnqueueThreshold(low, lattice.Threshold{Kind: lattice.AtLeast, At: lattice.GCounterValue{"a": 1}})
	c.EnqueueThreshold(high, lattice.Threshold{Kind: lattice.AtLeast, At: lattice.GCounterValue{"a": 5}})
	ready := c.Wake(reg)
	stillWaiting := c.HasWaiters()
	c.Unlock()

	if len(ready) != 1 || ready[0].Handle != store.Handle(low) {
		t.Fatalf("expected only the met threshold to wake, got %+v", ready)
	}
	if !stillWaiting {
		t.Fatal("expected the unmet threshold waiter to remain queued")
	}
}

func TestCellCancel(t *testing.T) {
	c := store.NewCell()
	h := &recordHandle{}
	c.Lock()
	c.EnqueuePlain(h)
	removed := c.Cancel(h)
	stillPresent := c.HasWaiters()
	c.Unlock()

	if !removed {
		t.Fatal("expected Cancel to report removal")
	}
	if stillPresent {
		t.Fatal("expected waiter queue to be empty after cancel")
	}
	if c.Cancel(h) {
		t.Fatal("expected a second Cancel of the same handle to report false")
	}
}

func TestRestoreInsertIfAbsent(t *testing.T) {
	s := store.New()
	id := varid.New()
	next := varid.New()
	snap := store.Snapshot{Bound: true, Value: store.Concrete{Payload: 1}, Next: &next}

	cell, inserted := s.Restore(id, snap)
	if !inserted {
		t.Fatal("expected first restore to insert")
	}
	if !cell.Bound {
		t.Fatal("expected restored cell to be bound")
	}

	other := store.Snapshot{Bound: true, Value: store.Concrete{Payload: 2}}
	same, inserted := s.Restore(id, other)
	if inserted || same != cell {
		t.Fatal("expected a second restore at the same id to be a no-op")
	}
}
