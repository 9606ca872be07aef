// Package transport carries the alias protocol and successor
// declaration across process boundaries, over TLS/TCP, the same
// combination a networked consensus node in this family typically
// names ("uses TLS/TCP for communication, gob encoding for serialization"). Local,
// single-process clusters never touch this package: package partition
// talks to a locally hosted partition directly through its inbox.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/latticeflow/dflow/exec"
	"github.com/latticeflow/dflow/internal/backoff"
	"github.com/latticeflow/dflow/lattice"
	"github.com/latticeflow/dflow/partition"
	"github.com/latticeflow/dflow/store"
	"github.com/latticeflow/dflow/varid"
	"github.com/latticeflow/dflow/wire"
)

// Conn is a partition.Peer backed by one TLS/TCP connection to a peer
// process. It is bidirectional: the same connection carries requests
// this process sends out and messages the peer sends back, demuxed by
// wire.Envelope.Kind the way a consensus node multiplexes distinct
// message types over a single peer connection.
type Conn struct {
	conn net.Conn
	r    *wire.FrameReader
	wmu  sync.Mutex

	nextReqID uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan wire.Envelope

	local *partition.Cluster
}

// NewConn wraps an established connection (typically from tls.Dial or
// a Listener's Accept) and starts its read loop.
func NewConn(c net.Conn) *Conn {
	t := &Conn{conn: c, r: wire.NewFrameReader(c), pending: make(map[uint64]chan wire.Envelope)}
	go t.readLoop()
	return t
}

// ServeLocal makes Conn dispatch fetch/reply_fetch/notify_value
// messages, and declare requests, arriving from the peer to cluster.
func (t *Conn) ServeLocal(cluster *partition.Cluster) {
	t.local = cluster
}

func (t *Conn) send(e wire.Envelope) error {
	payload, err := wire.Encode(e)
	if err != nil {
		return err
	}
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return wire.WriteFrame(t.conn, payload)
}

// sendBestEffort retries a failed send with backoff rather than
// dropping the message on the first error, per §4.J; it treats every
// send error as transient and gives up only once ctx is done, matching
// the alias protocol's documented best-effort delivery (§7
// MessageLost).
func (t *Conn) sendBestEffort(ctx context.Context, e wire.Envelope) {
	err := backoff.Config{MaxWait: 5 * time.Second}.Retry(ctx, func() error {
		return t.send(e)
	})
	if err != nil {
		// ctx is done: the message is lost, which is within the
		// protocol's documented contract.
		return
	}
}

func (t *Conn) Declare(ctx context.Context, id varid.ID, typ lattice.Type, hasType bool) (varid.ID, error) {
	reqID := atomic.AddUint64(&t.nextReqID, 1)
	ch := make(chan wire.Envelope, 1)
	t.pendingMu.Lock()
	t.pending[reqID] = ch
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, reqID)
		t.pendingMu.Unlock()
	}()

	e := wire.Envelope{Kind: wire.KindDeclare, ReqID: reqID, ID: id, Type: typ, HasType: hasType}
	if err := (backoff.Config{MaxWait: 5 * time.Second}).Retry(ctx, func() error { return t.send(e) }); err != nil {
		return varid.ID{}, err
	}

	select {
	case reply := <-ch:
		if reply.Kind == wire.KindErrorReply {
			return varid.ID{}, fmt.Errorf("transport: declare: %s", reply.Err)
		}
		return reply.ID, nil
	case <-ctx.Done():
		return varid.ID{}, ctx.Err()
	}
}

func (t *Conn) Bind(context.Context, varid.ID, store.Value) (exec.BindResult, error) {
	return exec.BindResult{}, ErrNotSupported
}

func (t *Conn) Read(context.Context, varid.ID, *lattice.Threshold) (store.Value, varid.ID, error) {
	return nil, varid.ID{}, ErrNotSupported
}

func (t *Conn) IsDet(context.Context, varid.ID) (bool, error) {
	return false, ErrNotSupported
}

func (t *Conn) Next(context.Context, varid.ID) (varid.ID, error) {
	return varid.ID{}, ErrNotSupported
}

func (t *Conn) WaitNeeded(context.Context, varid.ID) (store.Value, varid.ID, error) {
	return nil, varid.ID{}, ErrNotSupported
}

func (t *Conn) Thread(context.Context, string, string, []store.Value) (exec.ThreadHandle, error) {
	return exec.ThreadHandle{}, ErrNotSupported
}

func (t *Conn) SendFetch(ctx context.Context, target, from varid.ID) {
	t.sendBestEffort(ctx, wire.Envelope{Kind: wire.KindFetch, Target: target, From: from})
}

func (t *Conn) SendFetchReply(ctx context.Context, from varid.ID, snap store.Snapshot) {
	t.sendBestEffort(ctx, wire.Envelope{Kind: wire.KindFetchReply, From: from, Snapshot: snap})
}

func (t *Conn) SendNotify(ctx context.Context, alias varid.ID, value store.Value, next varid.ID) {
	n := next
	t.sendBestEffort(ctx, wire.Envelope{Kind: wire.KindNotify, Alias: alias, Value: value, Next: &n})
}

func (t *Conn) readLoop() {
	for {
		payload, err := t.r.ReadFrame()
		if err != nil {
			return
		}
		e, err := wire.Decode(payload)
		if err != nil {
			continue
		}
		if e.ReqID != 0 && (e.Kind == wire.KindDeclareReply || e.Kind == wire.KindErrorReply) {
			t.pendingMu.Lock()
			ch := t.pending[e.ReqID]
			t.pendingMu.Unlock()
			if ch != nil {
				ch <- e
			}
			continue
		}
		go t.dispatch(e)
	}
}

func (t *Conn) dispatch(e wire.Envelope) {
	ctx := context.Background()
	switch e.Kind {
	case wire.KindFetch:
		if t.local != nil {
			t.local.SendFetch(ctx, e.Target, e.From)
		}
	case wire.KindFetchReply:
		if t.local != nil {
			t.local.DeliverFetchReply(ctx, e.From, e.Snapshot)
		}
	case wire.KindNotify:
		if t.local != nil {
			next := varid.ID{}
			if e.Next != nil {
				next = *e.Next
			}
			t.local.SendNotify(ctx, e.Alias, e.Value, next)
		}
	case wire.KindDeclare:
		var reply wire.Envelope
		if t.local == nil {
			reply = wire.Envelope{Kind: wire.KindErrorReply, ReqID: e.ReqID, Err: "no local cluster being served"}
		} else if err := t.local.Declare(ctx, e.ID, e.Type, e.HasType); err != nil {
			reply = wire.Envelope{Kind: wire.KindErrorReply, ReqID: e.ReqID, Err: err.Error()}
		} else {
			reply = wire.Envelope{Kind: wire.KindDeclareReply, ReqID: e.ReqID, ID: e.ID}
		}
		_ = t.send(reply)
	}
}
