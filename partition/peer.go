package partition

import (
	"context"
	"log"

	"github.com/latticeflow/dflow/exec"
	"github.com/latticeflow/dflow/lattice"
	"github.com/latticeflow/dflow/store"
	"github.com/latticeflow/dflow/varid"
)

// Peer is how a Cluster reaches the partition that owns a given VarId,
// whether that partition is hosted in this process (localPeer) or
// another one (transport.Conn, over TLS/TCP). The request/reply
// methods implement the synchronous core operations; SendFetch,
// SendFetchReply, and SendNotify implement the asynchronous,
// best-effort alias protocol (§4.E, §7 MessageLost) and return
// nothing, since no caller blocks on an alias ever resolving.
type Peer interface {
	Declare(ctx context.Context, id varid.ID, typ lattice.Type, hasType bool) (varid.ID, error)
	Bind(ctx context.Context, id varid.ID, payload store.Value) (exec.BindResult, error)
	Read(ctx context.Context, id varid.ID, threshold *lattice.Threshold) (store.Value, varid.ID, error)
	IsDet(ctx context.Context, id varid.ID) (bool, error)
	Next(ctx context.Context, id varid.ID) (varid.ID, error)
	WaitNeeded(ctx context.Context, id varid.ID) (store.Value, varid.ID, error)
	Thread(ctx context.Context, module, function string, args []store.Value) (exec.ThreadHandle, error)

	SendFetch(ctx context.Context, target, from varid.ID)
	SendFetchReply(ctx context.Context, from varid.ID, snap store.Snapshot)
	SendNotify(ctx context.Context, alias varid.ID, value store.Value, next varid.ID)
}

// localPeer reaches a partition hosted in this process directly
// through its inbox, with no wire encoding involved. It is also where
// a received fetch is actually handled: SendFetch on a localPeer is
// called by the Cluster that owns the *target* partition's peer slot,
// i.e. it runs on the receiving side of the message, not the sender's.
type localPeer struct {
	p       *Partition
	cluster *Cluster
}

func (lp *localPeer) Declare(ctx context.Context, id varid.ID, typ lattice.Type, hasType bool) (varid.ID, error) {
	type res struct {
		id  varid.ID
		err error
	}
	out := make(chan res, 1)
	lp.p.submit(func() {
		id, err := lp.p.exec.Declare(id, typ, hasType)
		out <- res{id, err}
	})
	select {
	case r := <-out:
		return r.id, r.err
	case <-ctx.Done():
		return varid.ID{}, ctx.Err()
	}
}

func (lp *localPeer) Bind(ctx context.Context, id varid.ID, payload store.Value) (exec.BindResult, error) {
	type res struct {
		r   exec.BindResult
		err error
	}
	out := make(chan res, 1)
	lp.p.submit(func() {
		r, err := lp.p.exec.Bind(ctx, id, payload)
		out <- res{r, err}
	})
	select {
	case r := <-out:
		return r.r, r.err
	case <-ctx.Done():
		return exec.BindResult{}, ctx.Err()
	}
}

func (lp *localPeer) Read(ctx context.Context, id varid.ID, threshold *lattice.Threshold) (store.Value, varid.ID, error) {
	h := make(replyHandle, 1)
	errCh := make(chan error, 1)
	lp.p.submit(func() {
		errCh <- lp.p.exec.Read(id, threshold, h)
	})
	return awaitHandle(ctx, lp.p, id, h, errCh)
}

func (lp *localPeer) WaitNeeded(ctx context.Context, id varid.ID) (store.Value, varid.ID, error) {
	h := make(replyHandle, 1)
	errCh := make(chan error, 1)
	lp.p.submit(func() {
		errCh <- lp.p.exec.WaitNeeded(id, h)
	})
	return awaitHandle(ctx, lp.p, id, h, errCh)
}

// awaitHandle waits for either a synchronous error from submitting a
// suspending operation, or the eventual resolution of its handle, and
// cancels the parked waiter if ctx is done first (§9 "Cancellation").
func awaitHandle(ctx context.Context, p *Partition, id varid.ID, h replyHandle, errCh chan error) (store.Value, varid.ID, error) {
	select {
	case err := <-errCh:
		if err != nil {
			return nil, varid.ID{}, err
		}
	case <-ctx.Done():
		return nil, varid.ID{}, ctx.Err()
	}
	select {
	case r := <-h:
		return r.value, r.next, nil
	case <-ctx.Done():
		p.submit(func() { _, _ = p.exec.Cancel(id, h) })
		return nil, varid.ID{}, ctx.Err()
	}
}

func (lp *localPeer) IsDet(ctx context.Context, id varid.ID) (bool, error) {
	type res struct {
		det bool
		err error
	}
	out := make(chan res, 1)
	lp.p.submit(func() {
		det, err := lp.p.exec.IsDet(id)
		out <- res{det, err}
	})
	select {
	case r := <-out:
		return r.det, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (lp *localPeer) Next(ctx context.Context, id varid.ID) (varid.ID, error) {
	type res struct {
		id  varid.ID
		err error
	}
	out := make(chan res, 1)
	lp.p.submit(func() {
		n, err := lp.p.exec.Next(ctx, id)
		out <- res{n, err}
	})
	select {
	case r := <-out:
		return r.id, r.err
	case <-ctx.Done():
		return varid.ID{}, ctx.Err()
	}
}

func (lp *localPeer) Thread(ctx context.Context, module, function string, args []store.Value) (exec.ThreadHandle, error) {
	type res struct {
		h   exec.ThreadHandle
		err error
	}
	out := make(chan res, 1)
	lp.p.submit(func() {
		h, err := lp.p.exec.Thread(ctx, module, function, args)
		out <- res{h, err}
	})
	select {
	case r := <-out:
		return r.h, r.err
	case <-ctx.Done():
		return exec.ThreadHandle{}, ctx.Err()
	}
}

// SendFetch is invoked on the receiving partition's peer: it applies
// the local decision (reply now, or chase an alias further) rather
// than forwarding blindly, per §4.E step 2. A cache hit on the alias
// table lets a long-settled chain be skipped straight to its current
// end instead of re-walking it one hop at a time.
func (lp *localPeer) SendFetch(ctx context.Context, target, from varid.ID) {
	resolved := target
	if cached, ok := lp.cluster.aliasCache.Get(target); ok {
		resolved = cached
	}
	if owner := varid.Owner(resolved, lp.cluster.n); owner != lp.p.id {
		lp.cluster.routeFetch(ctx, owner, resolved, from)
		return
	}
	lp.p.submit(func() {
		outcome, err := lp.p.exec.HandleFetch(ctx, resolved, from)
		if err != nil {
			log.Printf("partition %d: fetch(%s) from %s: %v", lp.p.id, resolved, from, err)
			return
		}
		if outcome.Forward != nil {
			lp.cluster.aliasCache.Add(target, *outcome.Forward)
			lp.cluster.SendFetch(ctx, *outcome.Forward, from)
			return
		}
		lp.cluster.aliasCache.Add(target, resolved)
		lp.cluster.sendFetchReplyTo(ctx, from, outcome.Snapshot)
	})
}

func (lp *localPeer) SendFetchReply(ctx context.Context, from varid.ID, snap store.Snapshot) {
	lp.p.submit(func() {
		if _, err := lp.p.exec.ApplyFetchReply(ctx, from, snap); err != nil {
			log.Printf("partition %d: reply_fetch(%s): %v", lp.p.id, from, err)
		}
	})
}

func (lp *localPeer) SendNotify(ctx context.Context, alias varid.ID, value store.Value, next varid.ID) {
	lp.p.submit(func() {
		if _, err := lp.p.exec.ApplyNotify(ctx, alias, value, next); err != nil {
			log.Printf("partition %d: notify_value(%s): %v", lp.p.id, alias, err)
		}
	})
}
