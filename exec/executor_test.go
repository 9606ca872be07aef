package exec_test

import (
	"context"
	"testing"
	"time"

	"github.com/latticeflow/dflow/exec"
	"github.com/latticeflow/dflow/lattice"
	"github.com/latticeflow/dflow/programs"
	"github.com/latticeflow/dflow/store"
	"github.com/latticeflow/dflow/varid"
)

// selfCoordinator resolves every cross-partition effect against the
// same single executor, simulating a one-partition cluster so exec's
// operations can be tested without standing up package partition.
type selfCoordinator struct {
	e *exec.Executor
}

func (c *selfCoordinator) Declare(ctx context.Context, id varid.ID, typ lattice.Type, hasType bool) error {
	_, err := c.e.Declare(id, typ, hasType)
	return err
}

func (c *selfCoordinator) SendFetch(ctx context.Context, target, from varid.ID) {
	outcome, err := c.e.HandleFetch(ctx, target, from)
	if err != nil {
		return
	}
	if outcome.Forward != nil {
		c.SendFetch(ctx, *outcome.Forward, from)
		return
	}
	_, _ = c.e.ApplyFetchReply(ctx, from, outcome.Snapshot)
}

func (c *selfCoordinator) SendNotify(ctx context.Context, alias varid.ID, value store.Value, next varid.ID) {
	_, _ = c.e.ApplyNotify(ctx, alias, value, next)
}

type result struct {
	value store.Value
	next  varid.ID
}

type chanHandle chan result

func (h chanHandle) Resolve(v store.Value, next varid.ID) { h <- result{v, next} }

func newExecutor() *exec.Executor {
	st := store.New()
	reg := lattice.NewRegistry()
	reg.Register("gcounter", lattice.GCounter{})
	coord := &selfCoordinator{}
	e := exec.New(0, st, reg, coord, programs.Nop{})
	coord.e = e
	return e
}

func mustDeclare(t *testing.T, e *exec.Executor) varid.ID {
	t.Helper()
	id := varid.New()
	if _, err := e.Declare(id, "", false); err != nil {
		t.Fatalf("declare: %v", err)
	}
	return id
}

func recv(t *testing.T, ch chanHandle) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resolve")
		return result{}
	}
}

func assertNoResolve(t *testing.T, ch chanHandle) {
	t.Helper()
	select {
	case r := <-ch:
		t.Fatalf("expected no resolve, got %+v", r)
	case <-time.After(20 * time.Millisecond):
	}
}

// Scenario 1: single-assignment.
func TestSingleAssignment(t *testing.T) {
	e := newExecutor()
	id := mustDeclare(t, e)

	r1, err := e.Bind(context.Background(), id, store.Concrete{Payload: 42})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	h := make(chanHandle, 1)
	if err := e.Read(id, nil, h); err != nil {
		t.Fatalf("read: %v", err)
	}
	got := recv(t, h)
	if got.value.(store.Concrete).Payload != 42 || got.next != r1.Next {
		t.Fatalf("unexpected read result: %+v", got)
	}

	if _, err := e.Bind(context.Background(), id, store.Concrete{Payload: 43}); err != exec.ErrConflictingBind {
		t.Fatalf("expected ErrConflictingBind, got %v", err)
	}
}

// Scenario 2: blocking read.
func TestBlockingRead(t *testing.T) {
	e := newExecutor()
	id := mustDeclare(t, e)

	h := make(chanHandle, 1)
	if err := e.Read(id, nil, h); err != nil {
		t.Fatalf("read: %v", err)
	}
	assertNoResolve(t, h)

	r, err := e.Bind(context.Background(), id, store.Concrete{Payload: "hi"})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	got := recv(t, h)
	if got.value.(store.Concrete).Payload != "hi" || got.next != r.Next {
		t.Fatalf("unexpected read result: %+v", got)
	}
}

// Scenario 3: lattice threshold.
func TestLatticeThreshold(t *testing.T) {
	e := newExecutor()
	id := varid.New()
	if _, err := e.Declare(id, "gcounter", true); err != nil {
		t.Fatalf("declare: %v", err)
	}

	if _, err := e.Bind(context.Background(), id, store.Concrete{Payload: lattice.Inc(lattice.GCounterValue{}, "me")}); err != nil {
		t.Fatalf("bind 1: %v", err)
	}

	h := make(chanHandle, 1)
	th := lattice.Threshold{Kind: lattice.AtLeast, At: lattice.GCounterValue{"me": 2}}
	if err := e.Read(id, &th, h); err != nil {
		t.Fatalf("read: %v", err)
	}
	assertNoResolve(t, h)

	if _, err := e.Bind(context.Background(), id, store.Concrete{Payload: lattice.Inc(lattice.GCounterValue{"me": 1}, "me")}); err != nil {
		t.Fatalf("bind 2: %v", err)
	}
	got := recv(t, h)
	if got.value.(store.Concrete).Payload.(lattice.GCounterValue)["me"] != 2 {
		t.Fatalf("unexpected threshold read result: %+v", got)
	}
}

// Scenario 4: streaming.
func TestStreaming(t *testing.T) {
	e := newExecutor()
	id0 := mustDeclare(t, e)

	r1, err := e.Bind(context.Background(), id0, store.Concrete{Payload: 1})
	if err != nil {
		t.Fatalf("bind id0: %v", err)
	}
	id1 := r1.Next

	r2, err := e.Bind(context.Background(), id1, store.Concrete{Payload: 2})
	if err != nil {
		t.Fatalf("bind id1: %v", err)
	}
	id2 := r2.Next

	h0 := make(chanHandle, 1)
	e.Read(id0, nil, h0)
	got0 := recv(t, h0)
	if got0.value.(store.Concrete).Payload != 1 || got0.next != id1 {
		t.Fatalf("unexpected read(id0): %+v", got0)
	}

	h1 := make(chanHandle, 1)
	e.Read(id1, nil, h1)
	got1 := recv(t, h1)
	if got1.value.(store.Concrete).Payload != 2 || got1.next != id2 {
		t.Fatalf("unexpected read(id1): %+v", got1)
	}
}

// Scenario 5: alias propagation.
func TestAliasPropagation(t *testing.T) {
	e := newExecutor()
	a := mustDeclare(t, e)
	b := mustDeclare(t, e)

	if _, err := e.Bind(context.Background(), a, store.Alias{Target: b}); err != nil {
		t.Fatalf("bind alias: %v", err)
	}

	h := make(chanHandle, 1)
	if err := e.Read(a, nil, h); err != nil {
		t.Fatalf("read a: %v", err)
	}
	assertNoResolve(t, h)

	if _, err := e.Bind(context.Background(), b, store.Concrete{Payload: 7}); err != nil {
		t.Fatalf("bind b: %v", err)
	}

	got := recv(t, h)
	if got.value.(store.Concrete).Payload != 7 {
		t.Fatalf("unexpected alias read result: %+v", got)
	}
}

// Scenario 6: laziness.
func TestLaziness(t *testing.T) {
	e := newExecutor()
	id := mustDeclare(t, e)

	producer := make(chanHandle, 1)
	if err := e.WaitNeeded(id, producer); err != nil {
		t.Fatalf("wait_needed: %v", err)
	}
	assertNoResolve(t, producer)

	consumer := make(chanHandle, 1)
	if err := e.Read(id, nil, consumer); err != nil {
		t.Fatalf("read: %v", err)
	}

	// The producer must wake before the consumer (§8 "Laziness trigger").
	recv(t, producer)
	assertNoResolve(t, consumer)

	if _, err := e.Bind(context.Background(), id, store.Concrete{Payload: "v"}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	got := recv(t, consumer)
	if got.value.(store.Concrete).Payload != "v" {
		t.Fatalf("unexpected consumer result: %+v", got)
	}
}

func TestCancelRemovesWaiter(t *testing.T) {
	e := newExecutor()
	id := mustDeclare(t, e)

	h := make(chanHandle, 1)
	if err := e.Read(id, nil, h); err != nil {
		t.Fatalf("read: %v", err)
	}
	removed, err := e.Cancel(id, h)
	if err != nil || !removed {
		t.Fatalf("cancel: removed=%v err=%v", removed, err)
	}

	if _, err := e.Bind(context.Background(), id, store.Concrete{Payload: 1}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	assertNoResolve(t, h)
}

func TestIsDet(t *testing.T) {
	e := newExecutor()
	id := mustDeclare(t, e)

	det, err := e.IsDet(id)
	if err != nil || det {
		t.Fatalf("expected undet, got det=%v err=%v", det, err)
	}
	if _, err := e.Bind(context.Background(), id, store.Concrete{Payload: 1}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	det, err = e.IsDet(id)
	if err != nil || !det {
		t.Fatalf("expected det, got det=%v err=%v", det, err)
	}
}
