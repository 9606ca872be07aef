package partition_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/latticeflow/dflow/lattice"
	"github.com/latticeflow/dflow/partition"
	"github.com/latticeflow/dflow/programs"
	"github.com/latticeflow/dflow/store"
	"github.com/latticeflow/dflow/varid"
)

func startCluster(t *testing.T, n int) (*partition.Cluster, context.CancelFunc) {
	t.Helper()
	reg := lattice.NewRegistry()
	hosted := make([]int, n)
	for i := range hosted {
		hosted[i] = i
	}
	c := partition.NewCluster(n, hosted, reg, programs.Nop{})
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = c.Stop()
	})
	return c, cancel
}

// idOnPartition brute-forces a VarId that varid.Owner routes to want,
// out of n partitions, since the routing hash has no public inverse.
func idOnPartition(n, want int) varid.ID {
	for {
		id := varid.New()
		if varid.Owner(id, n) == want {
			return id
		}
	}
}

func TestClusterDeclareBindRead(t *testing.T) {
	c, _ := startCluster(t, 3)
	ctx := context.Background()

	id := idOnPartition(3, 1)
	if _, err := c.CreateVarAt(ctx, id, "", false); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if _, err := c.Bind(ctx, id, store.Concrete{Payload: 9}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	val, _, err := c.Read(ctx, id, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if val.(store.Concrete).Payload != 9 {
		t.Fatalf("unexpected value: %+v", val)
	}
}

// TestCrossPartitionAlias exercises the fetch/reply_fetch/notify_value
// protocol between two distinct partitions within the same cluster:
// a on partition 0 aliases b on partition 1, and a blocking read
// parked on a only resolves once b is bound and the notification has
// travelled back across the routing table.
func TestCrossPartitionAlias(t *testing.T) {
	c, _ := startCluster(t, 2)
	ctx := context.Background()

	a := idOnPartition(2, 0)
	b := idOnPartition(2, 1)
	if _, err := c.CreateVarAt(ctx, a, "", false); err != nil {
		t.Fatalf("declare a: %v", err)
	}
	if _, err := c.CreateVarAt(ctx, b, "", false); err != nil {
		t.Fatalf("declare b: %v", err)
	}

	if _, err := c.Bind(ctx, a, store.Alias{Target: b}); err != nil {
		t.Fatalf("bind alias: %v", err)
	}

	readDone := make(chan struct {
		val store.Value
		err error
	}, 1)
	go func() {
		val, _, err := c.Read(ctx, a, nil)
		readDone <- struct {
			val store.Value
			err error
		}{val, err}
	}()

	select {
	case r := <-readDone:
		t.Fatalf("read on unresolved alias returned early: %+v", r)
	case <-time.After(30 * time.Millisecond):
	}

	if _, err := c.Bind(ctx, b, store.Concrete{Payload: "resolved"}); err != nil {
		t.Fatalf("bind b: %v", err)
	}

	select {
	case r := <-readDone:
		if r.err != nil {
			t.Fatalf("read: %v", r.err)
		}
		if r.val.(store.Concrete).Payload != "resolved" {
			t.Fatalf("unexpected value: %+v", r.val)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for aliased read to resolve")
	}
}

func TestRoutingUnavailable(t *testing.T) {
	reg := lattice.NewRegistry()
	c := partition.NewCluster(2, []int{0}, reg, programs.Nop{})
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	defer func() {
		cancel()
		_ = c.Stop()
	}()

	id := idOnPartition(2, 1)
	if _, err := c.CreateVarAt(ctx, id, "", false); !errors.Is(err, partition.ErrRoutingUnavailable) {
		t.Fatal("expected ErrRoutingUnavailable for an unhosted partition")
	}
}
