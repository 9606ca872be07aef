// Package exec implements the core executor operations (§4.D):
// declare, bind, read, is_det, next, wait_needed, and thread, each
// operating atomically on a single cell of a local store. Routing to
// the partition that owns a given VarId, and the cross-partition
// alias protocol, are the coordinator's job (package partition); this
// package exposes the hooks the coordinator needs (see fetch.go) but
// never routes or sends a message itself.
package exec

import (
	"context"
	"reflect"

	"github.com/latticeflow/dflow/lattice"
	"github.com/latticeflow/dflow/programs"
	"github.com/latticeflow/dflow/store"
	"github.com/latticeflow/dflow/stream"
	"github.com/latticeflow/dflow/varid"
)

// Coordinator is the slice of the partition coordinator (§4.E) that
// the executor needs in order to carry out operations whose effects
// reach beyond the local store: allocating a successor that may live
// on another partition, and driving the asynchronous alias protocol.
// partition.Cluster implements this; it is declared here, not there,
// so exec never imports partition.
type Coordinator interface {
	// Declare creates a cell for id on whatever partition owns it,
	// used by the successor allocator (§4.F).
	Declare(ctx context.Context, id varid.ID, typ lattice.Type, hasType bool) error

	// SendFetch asynchronously sends fetch(target, from, ...) to
	// target's owning partition, per alias protocol step 1 (§4.E).
	SendFetch(ctx context.Context, target, from varid.ID)

	// SendNotify asynchronously sends notify_value(alias, value) to
	// alias's owning partition, per alias protocol step 4 (§4.E).
	SendNotify(ctx context.Context, alias varid.ID, value store.Value, next varid.ID)
}

// ThreadHandle is the opaque handle returned by Thread (§4.D).
type ThreadHandle struct {
	ID varid.ID
}

// Executor runs the core operations against one partition's store.
type Executor struct {
	PartitionID int

	store *store.Store
	reg   *lattice.Registry
	coord Coordinator
	host  programs.Host
}

// New returns an Executor over st, consulting reg for lattice
// semantics and coord for cross-partition effects. partitionID is
// used only for diagnostics.
func New(partitionID int, st *store.Store, reg *lattice.Registry, coord Coordinator, host programs.Host) *Executor {
	if host == nil {
		host = programs.Nop{}
	}
	return &Executor{PartitionID: partitionID, store: st, reg: reg, coord: coord, host: host}
}

// Declare creates a cell at id (§4.D). For a registered lattice type
// the cell starts bound at the lattice bottom (invariant 3);
// otherwise it starts unbound at Bottom{}. Declaring the same id twice
// is idempotent when the type agrees, a conflict otherwise.
func (e *Executor) Declare(id varid.ID, typ lattice.Type, hasType bool) (varid.ID, error) {
	cell := store.NewCell()
	cell.Type, cell.HasType = typ, hasType
	if hasType && e.reg.IsLattice(typ) {
		bottom, _ := e.reg.Bottom(typ)
		cell.Value = store.Concrete{Payload: bottom}
		cell.Bound = true
	} else {
		cell.Value = store.Bottom{}
		cell.Bound = false
	}

	actual, inserted := e.store.CreateIfAbsent(id, cell)
	if inserted {
		return id, nil
	}

	actual.Lock()
	matches := actual.HasType == hasType && actual.Type == typ
	actual.Unlock()
	if !matches {
		return varid.ID{}, ErrConflictingBind
	}
	return id, nil
}

// BindResult carries the successor VarId a bind allocated or reused,
// so the caller can chain a read onto it.
type BindResult struct {
	Next varid.ID
}

// Bind applies payload to the cell at id (§4.D). payload is either a
// store.Concrete (or store.Bottom) value, or a store.Alias naming
// another VarId; a store.Concrete whose Payload is store.Undefined{}
// is the empty sentinel, which allocates no successor. Bind never suspends (§5): the
// alias case returns as soon as the fetch has been dispatched, not
// once it resolves.
func (e *Executor) Bind(ctx context.Context, id varid.ID, payload store.Value) (BindResult, error) {
	cell, ok := e.store.Get(id)
	if !ok {
		return BindResult{}, ErrUnknownVar
	}

	if alias, isAlias := payload.(store.Alias); isAlias {
		if e.coord == nil {
			return BindResult{}, ErrNotImplemented
		}
		cell.Lock()
		if cell.Bound {
			cell.Unlock()
			return BindResult{}, ErrConflictingBind
		}
		cell.Value = alias
		cell.Unlock()
		e.coord.SendFetch(ctx, alias.Target, id)
		return BindResult{}, nil
	}

	cell.Lock()

	if !cell.Bound {
		var next varid.ID
		if !isUndefined(payload) {
			n, err := stream.NextKey(ctx, cell.Next, cell.Type, cell.HasType, e.coord.Declare)
			if err != nil {
				cell.Unlock()
				return BindResult{}, err
			}
			cell.Next = &n
			next = n
		}
		cell.Value = payload
		cell.Bound = true
		ready := cell.Wake(e.reg)
		aliases := append([]varid.ID(nil), cell.Aliases...)
		valToNotify := cell.Value
		cell.Unlock()

		resolveAll(ready, next)
		e.notifyAliases(ctx, aliases, valToNotify, next)
		return BindResult{Next: next}, nil
	}

	if cell.HasType && e.reg.IsLattice(cell.Type) {
		cur := payloadOf(cell.Value)
		joined, ok := e.reg.Join(cell.Type, cur, payloadOf(payload))
		if !ok {
			joined = payloadOf(payload)
		}
		cell.Value = store.Concrete{Payload: joined}

		// Every bind on a lattice cell advances the stream: allocate a
		// fresh successor unconditionally (§4.D).
		n, err := stream.NextKey(ctx, nil, cell.Type, cell.HasType, e.coord.Declare)
		if err != nil {
			cell.Unlock()
			return BindResult{}, err
		}
		cell.Next = &n
		ready := cell.Wake(e.reg)
		aliases := append([]varid.ID(nil), cell.Aliases...)
		valToNotify := cell.Value
		cell.Unlock()

		resolveAll(ready, n)
		e.notifyAliases(ctx, aliases, valToNotify, n)
		return BindResult{Next: n}, nil
	}

	// Bound, non-lattice: idempotent rebind of an equal value, a hard
	// error otherwise (invariant 2).
	if valuesEqual(cell.Value, payload) {
		next := cell.Next
		cell.Unlock()
		return BindResult{Next: derefOrZero(next)}, nil
	}
	cell.Unlock()
	return BindResult{}, ErrConflictingBind
}

// Read observes the cell at id (§4.D). If the value is available now
// (unconditionally for a plain read, or once a lattice threshold is
// met), h is resolved before Read returns. Otherwise h is parked as a
// waiter and resolved later by a future Bind; Read itself returns
// without blocking, matching the suspension model in §5.
func (e *Executor) Read(id varid.ID, threshold *lattice.Threshold, h store.Handle) error {
	cell, ok := e.store.Get(id)
	if !ok {
		return ErrUnknownVar
	}

	cell.Lock()

	if !cell.Bound {
		cell.EnqueuePlain(h)
		var creator store.Handle
		if cell.Lazy {
			creator = cell.Creator
			cell.Creator = nil
		}
		cell.Unlock()
		if creator != nil {
			// Demand just arrived on a lazy cell: wake its producer
			// with an empty ack before the reader itself is woken
			// (§4.D, §8 "Laziness trigger").
			creator.Resolve(store.Bottom{}, varid.ID{})
		}
		return nil
	}

	if threshold == nil || !(cell.HasType && e.reg.IsLattice(cell.Type)) {
		value, next := cell.Value, derefOrZero(cell.Next)
		cell.Unlock()
		h.Resolve(value, next)
		return nil
	}

	if e.reg.ThresholdMet(cell.Type, payloadOf(cell.Value), *threshold) {
		value, next := cell.Value, derefOrZero(cell.Next)
		cell.Unlock()
		h.Resolve(value, next)
		return nil
	}
	cell.EnqueueThreshold(h, *threshold)
	cell.Unlock()
	return nil
}

// IsDet reports whether the cell at id is bound. It never blocks.
func (e *Executor) IsDet(id varid.ID) (bool, error) {
	cell, ok := e.store.Get(id)
	if !ok {
		return false, ErrUnknownVar
	}
	cell.Lock()
	defer cell.Unlock()
	return cell.Bound, nil
}

// Next returns the cell's successor VarId, allocating it via the
// stream allocator if it is not already set (§4.D). Idempotent after
// the first successful call.
func (e *Executor) Next(ctx context.Context, id varid.ID) (varid.ID, error) {
	cell, ok := e.store.Get(id)
	if !ok {
		return varid.ID{}, ErrUnknownVar
	}

	cell.Lock()
	if cell.Next != nil {
		n := *cell.Next
		cell.Unlock()
		return n, nil
	}
	typ, hasType := cell.Type, cell.HasType
	cell.Unlock()

	n, err := stream.NextKey(ctx, nil, typ, hasType, e.coord.Declare)
	if err != nil {
		return varid.ID{}, err
	}

	cell.Lock()
	if cell.Next != nil {
		// Lost a race with a concurrent bind/next; keep whichever
		// successor was recorded first (invariant 5).
		existing := *cell.Next
		cell.Unlock()
		return existing, nil
	}
	cell.Next = &n
	cell.Unlock()
	return n, nil
}

// WaitNeeded is the dual of Read (§4.D): it lets a lazy producer
// discover demand for the variable it is about to produce. If the
// cell is already bound, or already has a waiter queued, creator is
// resolved immediately. Otherwise the cell is marked lazy and creator
// is recorded to be woken by the first Read.
func (e *Executor) WaitNeeded(id varid.ID, creator store.Handle) error {
	cell, ok := e.store.Get(id)
	if !ok {
		return ErrUnknownVar
	}

	cell.Lock()
	if cell.Bound || cell.HasWaiters() {
		cell.Unlock()
		creator.Resolve(store.Bottom{}, varid.ID{})
		return nil
	}
	cell.Lazy = true
	cell.Creator = creator
	cell.Unlock()
	return nil
}

// Thread spawns a cooperative, fire-and-forget execution unit running
// the named user program (§4.D). The executor places no constraints
// on what that computation does beyond its use of the other
// operations; the returned handle is opaque.
func (e *Executor) Thread(ctx context.Context, module, function string, args []store.Value) (ThreadHandle, error) {
	h := ThreadHandle{ID: varid.New()}
	host, name := e.host, module+"."+function
	go func() {
		_ = host.Execute(ctx, name, args...)
	}()
	return h, nil
}

// Cancel removes a previously parked waiter from the cell at id, by
// handle identity (§5 "Cancellation", §9 supplemental feature).
func (e *Executor) Cancel(id varid.ID, h store.Handle) (bool, error) {
	cell, ok := e.store.Get(id)
	if !ok {
		return false, ErrUnknownVar
	}
	cell.Lock()
	defer cell.Unlock()
	removed := cell.Cancel(h)
	if cell.Creator == h {
		cell.Creator = nil
		cell.Lazy = false
		removed = true
	}
	return removed, nil
}

func (e *Executor) notifyAliases(ctx context.Context, aliases []varid.ID, value store.Value, next varid.ID) {
	for _, a := range aliases {
		e.coord.SendNotify(ctx, a, value, next)
	}
}

func resolveAll(ready []store.ReadyWaiter, next varid.ID) {
	for _, r := range ready {
		r.Handle.Resolve(r.Value, next)
	}
}

func isUndefined(v store.Value) bool {
	c, ok := v.(store.Concrete)
	if !ok {
		return false
	}
	_, ok = c.Payload.(store.Undefined)
	return ok
}

func payloadOf(v store.Value) lattice.Value {
	if c, ok := v.(store.Concrete); ok {
		return c.Payload
	}
	return nil
}

func valuesEqual(a, b store.Value) bool {
	return reflect.DeepEqual(a, b)
}

func derefOrZero(id *varid.ID) varid.ID {
	if id == nil {
		return varid.ID{}
	}
	return *id
}
