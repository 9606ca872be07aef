package transport

import (
	"context"
	"crypto/tls"
	"log"

	"github.com/latticeflow/dflow/partition"
)

// Listen accepts TLS connections on addr and serves each one against
// cluster, so a peer dialing in can reach whichever partitions cluster
// hosts locally. It runs until ctx is cancelled.
func Listen(ctx context.Context, addr string, cfg *tls.Config, cluster *partition.Cluster) error {
	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Printf("transport: accept on %s: %v", addr, err)
				continue
			}
		}
		conn := NewConn(c)
		conn.ServeLocal(cluster)
	}
}

// Dial connects to a peer's listen address and returns a Conn ready
// for use as a partition.Peer. Call ServeLocal on the result if this
// process also wants to accept alias messages and declares the peer
// sends back over the same connection.
func Dial(ctx context.Context, addr string, cfg *tls.Config) (*Conn, error) {
	d := tls.Dialer{Config: cfg}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}
