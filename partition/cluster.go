package partition

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/latticeflow/dflow/exec"
	"github.com/latticeflow/dflow/lattice"
	"github.com/latticeflow/dflow/programs"
	"github.com/latticeflow/dflow/store"
	"github.com/latticeflow/dflow/varid"
)

const aliasCacheSize = 4096

// Cluster is the full routing table for a variable-store deployment:
// one Peer per partition index, some hosted locally (backed by an
// actual *Partition and its single goroutine), the rest reached
// through whatever Peer (such as a transport.Conn) the caller installs
// with SetPeer.
// Cluster itself implements exec.Coordinator, so every Partition it
// hosts is handed the same Cluster as its executor's coordinator.
type Cluster struct {
	n      int
	hosted map[int]*Partition
	peers  []Peer

	aliasCache *lru.Cache[varid.ID, varid.ID]

	group *errgroup.Group
}

// NewCluster builds a routing table of n partitions, creating the
// ones named in hostedIDs locally; they run once Start is called. Partitions not in hostedIDs have no
// Peer until SetPeer is called for them; operations routed there
// return ErrRoutingUnavailable until then.
func NewCluster(n int, hostedIDs []int, reg *lattice.Registry, host programs.Host) *Cluster {
	cache, err := lru.New[varid.ID, varid.ID](aliasCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// aliasCacheSize never is.
		panic(err)
	}
	c := &Cluster{
		n:          n,
		hosted:     make(map[int]*Partition),
		peers:      make([]Peer, n),
		aliasCache: cache,
	}
	for _, id := range hostedIDs {
		p := newPartition(id, reg, c, host)
		c.hosted[id] = p
		c.peers[id] = &localPeer{p: p, cluster: c}
	}
	return c
}

// SetPeer installs the Peer used to reach a partition not hosted by
// this process, normally a transport.Conn dialed to its listen
// address from the cluster's topology configuration.
func (c *Cluster) SetPeer(partitionID int, peer Peer) {
	c.peers[partitionID] = peer
}

// Start launches one goroutine per locally hosted partition, each
// draining its inbox until ctx is cancelled. Call Stop (or just wait
// on ctx) to join them.
func (c *Cluster) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range c.hosted {
		p := p
		g.Go(func() error {
			p.Run(gctx)
			return nil
		})
	}
	c.group = g
}

// Stop blocks until every partition goroutine launched by Start has
// returned; the caller is responsible for cancelling the context
// passed to Start first.
func (c *Cluster) Stop() error {
	if c.group == nil {
		return nil
	}
	return c.group.Wait()
}

func (c *Cluster) peerFor(partitionID int) (Peer, error) {
	p := c.peers[partitionID]
	if p == nil {
		return nil, fmt.Errorf("%w: partition %d", ErrRoutingUnavailable, partitionID)
	}
	return p, nil
}

func (c *Cluster) routeFetch(ctx context.Context, partitionID int, target, from varid.ID) {
	p, err := c.peerFor(partitionID)
	if err != nil {
		return
	}
	p.SendFetch(ctx, target, from)
}

// DeliverFetchReply routes an inbound reply_fetch arriving from
// another process to whichever locally hosted partition owns from, so
// transport.Conn can hand off a decoded message without reaching into
// Cluster's routing internals.
func (c *Cluster) DeliverFetchReply(ctx context.Context, from varid.ID, snap store.Snapshot) {
	c.sendFetchReplyTo(ctx, from, snap)
}

func (c *Cluster) sendFetchReplyTo(ctx context.Context, from varid.ID, snap store.Snapshot) {
	p, err := c.peerFor(varid.Owner(from, c.n))
	if err != nil {
		return
	}
	p.SendFetchReply(ctx, from, snap)
}

// Declare, SendFetch, and SendNotify implement exec.Coordinator: each
// locally hosted Partition's Executor is constructed with this
// Cluster as its coordinator, so an operation that needs to reach
// another partition always goes back through this routing table
// rather than addressing a Partition directly.
func (c *Cluster) Declare(ctx context.Context, id varid.ID, typ lattice.Type, hasType bool) error {
	owner := varid.Owner(id, c.n)
	if hp, ok := c.hosted[owner]; ok {
		// A successor is declared from inside a bind, fetch, or next
		// already running on some hosted partition's goroutine, possibly
		// this very one, so waiting on its inbox could wait on itself.
		// Declare only inserts through the store's own locks, so it is
		// run directly here instead.
		_, err := hp.exec.Declare(id, typ, hasType)
		return err
	}
	p, err := c.peerFor(owner)
	if err != nil {
		return err
	}
	_, err = p.Declare(ctx, id, typ, hasType)
	return err
}

func (c *Cluster) SendFetch(ctx context.Context, target, from varid.ID) {
	c.routeFetch(ctx, varid.Owner(target, c.n), target, from)
}

func (c *Cluster) SendNotify(ctx context.Context, alias varid.ID, value store.Value, next varid.ID) {
	p, err := c.peerFor(varid.Owner(alias, c.n))
	if err != nil {
		return
	}
	p.SendNotify(ctx, alias, value, next)
}

// The operations below are the cluster-wide, VarId-routed counterparts
// of the package exec API: the same calls a single-partition Executor
// exposes, dispatched here to whichever partition owns id.

// CreateVar allocates a fresh VarId and declares a cell for it on
// whichever partition it hashes to, for callers (programs, the CLI)
// that don't already have an id in hand the way the stream allocator
// does.
func (c *Cluster) CreateVar(ctx context.Context, typ lattice.Type, hasType bool) (varid.ID, error) {
	return c.CreateVarAt(ctx, varid.New(), typ, hasType)
}

// CreateVarAt declares a cell for a caller-supplied id on whichever
// partition it hashes to, for callers whose id is already fixed.
// CreateVar is the common case. The stream allocator does not use
// this; it declares successors through Declare.
func (c *Cluster) CreateVarAt(ctx context.Context, id varid.ID, typ lattice.Type, hasType bool) (varid.ID, error) {
	p, err := c.peerFor(varid.Owner(id, c.n))
	if err != nil {
		return varid.ID{}, err
	}
	return p.Declare(ctx, id, typ, hasType)
}

func (c *Cluster) Bind(ctx context.Context, id varid.ID, payload store.Value) (exec.BindResult, error) {
	p, err := c.peerFor(varid.Owner(id, c.n))
	if err != nil {
		return exec.BindResult{}, err
	}
	return p.Bind(ctx, id, payload)
}

func (c *Cluster) Read(ctx context.Context, id varid.ID, threshold *lattice.Threshold) (store.Value, varid.ID, error) {
	p, err := c.peerFor(varid.Owner(id, c.n))
	if err != nil {
		return nil, varid.ID{}, err
	}
	return p.Read(ctx, id, threshold)
}

func (c *Cluster) IsDet(ctx context.Context, id varid.ID) (bool, error) {
	p, err := c.peerFor(varid.Owner(id, c.n))
	if err != nil {
		return false, err
	}
	return p.IsDet(ctx, id)
}

func (c *Cluster) Next(ctx context.Context, id varid.ID) (varid.ID, error) {
	p, err := c.peerFor(varid.Owner(id, c.n))
	if err != nil {
		return varid.ID{}, err
	}
	return p.Next(ctx, id)
}

func (c *Cluster) WaitNeeded(ctx context.Context, id varid.ID) (store.Value, varid.ID, error) {
	p, err := c.peerFor(varid.Owner(id, c.n))
	if err != nil {
		return nil, varid.ID{}, err
	}
	return p.WaitNeeded(ctx, id)
}

func (c *Cluster) Thread(ctx context.Context, id varid.ID, module, function string, args []store.Value) (exec.ThreadHandle, error) {
	p, err := c.peerFor(varid.Owner(id, c.n))
	if err != nil {
		return exec.ThreadHandle{}, err
	}
	return p.Thread(ctx, module, function, args)
}
