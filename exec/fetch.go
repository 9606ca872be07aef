package exec

import (
	"context"

	"github.com/latticeflow/dflow/store"
	"github.com/latticeflow/dflow/stream"
	"github.com/latticeflow/dflow/varid"
)

// FetchOutcome is the local decision HandleFetch makes when a fetch
// message reaches the partition owning its target cell (§4.E step 2).
// Exactly one of Forward or Snapshot applies; the coordinator acts on
// whichever is set.
type FetchOutcome struct {
	// Forward is set when the target cell is itself an unresolved
	// alias: the coordinator must re-send the fetch to Forward's
	// owner instead of replying directly (transitive chase).
	Forward *varid.ID
	// Snapshot is set when the target cell is bound or is concrete
	// and pending: the coordinator replies to the fetch's origin with
	// this snapshot.
	Snapshot store.Snapshot
}

// HandleFetch inspects the local cell named by a fetch(target, from)
// message (§4.E step 2). If the cell is bound, it returns a snapshot
// to reply with. If the cell is itself an unresolved alias, it
// returns a forwarding instruction so the coordinator can chase the
// chain. Otherwise the cell is unbound and concrete-pending: its
// successor is allocated if not already set, from is recorded as a
// dependent alias, and a snapshot of the (still unbound) cell is
// returned to reply with.
func (e *Executor) HandleFetch(ctx context.Context, target, from varid.ID) (FetchOutcome, error) {
	cell, ok := e.store.Get(target)
	if !ok {
		return FetchOutcome{}, ErrUnknownVar
	}

	cell.Lock()
	if cell.Bound {
		snap := cell.Snapshot()
		cell.Unlock()
		return FetchOutcome{Snapshot: snap}, nil
	}
	if a, isAlias := cell.Value.(store.Alias); isAlias {
		fwd := a.Target
		cell.Unlock()
		return FetchOutcome{Forward: &fwd}, nil
	}
	typ, hasType, existingNext := cell.Type, cell.HasType, cell.Next
	cell.Unlock()

	next, err := stream.NextKey(ctx, existingNext, typ, hasType, e.coord.Declare)
	if err != nil {
		return FetchOutcome{}, err
	}

	cell.Lock()
	if cell.Next == nil {
		cell.Next = &next
	}
	cell.Aliases = append(cell.Aliases, from)
	snap := cell.Snapshot()
	cell.Unlock()
	return FetchOutcome{Snapshot: snap}, nil
}

// ApplyFetchReply applies a reply_fetch(from, snapshot) message
// arriving at from's owning partition (§4.E step 3), returning the
// successor VarId to ack the original bind's caller with.
func (e *Executor) ApplyFetchReply(ctx context.Context, from varid.ID, snap store.Snapshot) (varid.ID, error) {
	cell, ok := e.store.Get(from)
	if !ok {
		return varid.ID{}, ErrUnknownVar
	}

	if snap.Bound {
		return e.applyBoundSnapshot(ctx, cell, snap)
	}

	cell.Lock()
	if cell.Next == nil {
		cell.Next = snap.Next
	}
	next := derefOrZero(cell.Next)
	cell.Unlock()
	return next, nil
}

// applyBoundSnapshot performs the local write needed when a fetch
// reply turns out to already be bound: adopt the
// snapshot's value, next, and type wholesale (not a fresh successor;
// the target's stream continues as-is) and wake local waiters and
// downstream aliases exactly as a normal bind would.
func (e *Executor) applyBoundSnapshot(ctx context.Context, cell *store.Cell, snap store.Snapshot) (varid.ID, error) {
	cell.Lock()
	if cell.Bound {
		next := derefOrZero(cell.Next)
		cell.Unlock()
		return next, nil
	}
	cell.Type, cell.HasType = snap.Type, snap.HasType
	cell.Value = snap.Value
	cell.Bound = true
	cell.Next = snap.Next
	ready := cell.Wake(e.reg)
	aliases := append([]varid.ID(nil), cell.Aliases...)
	valToNotify := cell.Value
	next := derefOrZero(cell.Next)
	cell.Unlock()

	resolveAll(ready, next)
	e.notifyAliases(ctx, aliases, valToNotify, next)
	return next, nil
}

// ApplyNotify applies a notify_value(alias, value) message arriving
// at alias's owning partition (§4.E step 4): a local write that, in
// turn, wakes this cell's own waiters and fans out to its own
// downstream aliases, propagating a bound value along an alias chain.
func (e *Executor) ApplyNotify(ctx context.Context, alias varid.ID, value store.Value, next varid.ID) (varid.ID, error) {
	cell, ok := e.store.Get(alias)
	if !ok {
		return varid.ID{}, ErrUnknownVar
	}

	cell.Lock()
	if cell.Bound {
		n := derefOrZero(cell.Next)
		cell.Unlock()
		return n, nil
	}
	cell.Value = value
	cell.Bound = true
	cell.Next = &next
	ready := cell.Wake(e.reg)
	aliases := append([]varid.ID(nil), cell.Aliases...)
	cell.Unlock()

	resolveAll(ready, next)
	e.notifyAliases(ctx, aliases, value, next)
	return next, nil
}
