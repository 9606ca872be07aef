package transport

import (
	"context"

	"github.com/latticeflow/dflow/exec"
	"github.com/latticeflow/dflow/lattice"
	"github.com/latticeflow/dflow/partition"
	"github.com/latticeflow/dflow/store"
	"github.com/latticeflow/dflow/varid"
)

// Local is a partition.Peer that reaches another *partition.Cluster in
// the same process directly, with no socket or encoding involved. It
// gives a test a second Cluster to simulate a remote process against,
// exercising exactly the same
// Declare/SendFetch/SendFetchReply/SendNotify surface a real Conn
// would, without the TLS/TCP plumbing.
type Local struct {
	cluster *partition.Cluster
}

// NewLocal wraps cluster as a Peer reachable in-process.
func NewLocal(cluster *partition.Cluster) *Local {
	return &Local{cluster: cluster}
}

func (l *Local) Declare(ctx context.Context, id varid.ID, typ lattice.Type, hasType bool) (varid.ID, error) {
	if err := l.cluster.Declare(ctx, id, typ, hasType); err != nil {
		return varid.ID{}, err
	}
	return id, nil
}

func (l *Local) Bind(context.Context, varid.ID, store.Value) (exec.BindResult, error) {
	return exec.BindResult{}, ErrNotSupported
}

func (l *Local) Read(context.Context, varid.ID, *lattice.Threshold) (store.Value, varid.ID, error) {
	return nil, varid.ID{}, ErrNotSupported
}

func (l *Local) IsDet(context.Context, varid.ID) (bool, error) { return false, ErrNotSupported }

func (l *Local) Next(context.Context, varid.ID) (varid.ID, error) {
	return varid.ID{}, ErrNotSupported
}

func (l *Local) WaitNeeded(context.Context, varid.ID) (store.Value, varid.ID, error) {
	return nil, varid.ID{}, ErrNotSupported
}

func (l *Local) Thread(context.Context, string, string, []store.Value) (exec.ThreadHandle, error) {
	return exec.ThreadHandle{}, ErrNotSupported
}

func (l *Local) SendFetch(ctx context.Context, target, from varid.ID) {
	l.cluster.SendFetch(ctx, target, from)
}

func (l *Local) SendFetchReply(ctx context.Context, from varid.ID, snap store.Snapshot) {
	l.cluster.DeliverFetchReply(ctx, from, snap)
}

func (l *Local) SendNotify(ctx context.Context, alias varid.ID, value store.Value, next varid.ID) {
	l.cluster.SendNotify(ctx, alias, value, next)
}
