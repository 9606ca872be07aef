// Package partition implements the coordinator (§4.E): the routing of
// a VarId to the partition that owns it, the single-goroutine actor
// that serializes every mutation against that partition's store, and
// the cross-partition alias protocol (fetch / reply_fetch /
// notify_value) that exec's Coordinator interface describes.
package partition

import (
	"context"

	"github.com/latticeflow/dflow/exec"
	"github.com/latticeflow/dflow/lattice"
	"github.com/latticeflow/dflow/programs"
	"github.com/latticeflow/dflow/store"
	"github.com/latticeflow/dflow/varid"
)

// Partition owns one shard of the variable space and runs a single
// goroutine draining inbox in FIFO order, the same single-goroutine
// message-loop shape a networked consensus node uses: every closure queued
// here sees a consistent view of this partition's store, with no
// locking needed beyond what Cell already does for Wake's callers.
type Partition struct {
	id    int
	exec  *exec.Executor
	store *store.Store
	inbox chan func()
}

// newPartition constructs a partition and its executor, wired to coord
// for cross-partition effects. Not started until Run is called.
func newPartition(id int, reg *lattice.Registry, coord exec.Coordinator, host programs.Host) *Partition {
	st := store.New()
	return &Partition{
		id:    id,
		store: st,
		exec:  exec.New(id, st, reg, coord, host),
		inbox: make(chan func(), 256),
	}
}

// Run drains inbox until ctx is cancelled. Intended to be the body of
// the one goroutine a Cluster spawns per hosted partition.
func (p *Partition) Run(ctx context.Context) {
	for {
		select {
		case fn := <-p.inbox:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// submit queues fn to run on this partition's single goroutine. Safe
// to call from any goroutine; fn itself must not block.
func (p *Partition) submit(fn func()) {
	p.inbox <- fn
}

// replyResult is what a parked store.Handle resolves with.
type replyResult struct {
	value store.Value
	next  varid.ID
}

// replyHandle is the in-process store.Handle used by a localPeer to
// turn an executor suspension back into a blocking Go call.
type replyHandle chan replyResult

func (h replyHandle) Resolve(v store.Value, next varid.ID) { h <- replyResult{v, next} }
