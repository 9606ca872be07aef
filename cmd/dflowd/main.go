// Command dflowd runs one process of a dflow cluster: it loads a
// topology (either a YAML file or an inline composable resource
// identifier naming peer addresses), starts whichever partitions this
// process is configured to host, and dials the others. It listens for
// peer connections only when started with -group and -self, on the
// self partition's address; with -config it does not listen.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"

	"github.com/latticeflow/dflow/internal/clusterconfig"
	"github.com/latticeflow/dflow/lattice"
	"github.com/latticeflow/dflow/partition"
	"github.com/latticeflow/dflow/programs"
	"github.com/latticeflow/dflow/transport"
)

// markSelf clears the address of the partition named self, so
// clusterconfig.Config.Hosted reports it as locally hosted.
func markSelf(cfg *clusterconfig.Config, self string) error {
	id, err := strconv.Atoi(self)
	if err != nil {
		return fmt.Errorf("dflowd: -self must be a partition id: %w", err)
	}
	for i := range cfg.Partitions {
		if cfg.Partitions[i].ID == id {
			cfg.Partitions[i].Addr = ""
			return nil
		}
	}
	return fmt.Errorf("dflowd: -self %d names no partition in the group", id)
}

const usageStr = `
The dflowd command runs one process of a dflow variable-store cluster.

Usage:

	dflowd serve -config <path>
	dflowd serve -group <group> -self <partition-id>

-config names a YAML topology file, where each partition entry with no
addr is hosted by this process.
-group names the topology inline as a composable resource identifier,
for example:

	dflowd serve -group 'dflow[host1:9001,host2:9002,host3:9003]' -self 0

-self then picks which of the group's members this process hosts; the
rest are reached as peers.
`

func usage() {
	fmt.Println(usageStr)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 || os.Args[1] != "serve" {
		usage()
	}
	serveCommand(os.Args[2:])
}

func serveCommand(args []string) {
	var configPath, group, self string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-config":
			i++
			if i >= len(args) {
				usage()
			}
			configPath = args[i]
		case "-group":
			i++
			if i >= len(args) {
				usage()
			}
			group = args[i]
		case "-self":
			i++
			if i >= len(args) {
				usage()
			}
			self = args[i]
		default:
			usage()
		}
	}
	if configPath == "" && group == "" {
		usage()
	}

	var cfg *clusterconfig.Config
	var err error
	var selfAddr string
	if configPath != "" {
		cfg, err = clusterconfig.Load(configPath)
	} else {
		cfg, err = parseGroup(group)
		if err == nil && self != "" {
			if id, aerr := strconv.Atoi(self); aerr == nil {
				for _, p := range cfg.Partitions {
					if p.ID == id {
						selfAddr = p.Addr
					}
				}
			}
			err = markSelf(cfg, self)
		}
	}
	if err != nil {
		log.Fatal(err)
	}

	reg := lattice.NewRegistry()
	reg.Register("gcounter", lattice.GCounter{})
	reg.Register("maxscalar", lattice.MaxScalar{})

	cluster := partition.NewCluster(cfg.N(), cfg.Hosted(), reg, programs.Nop{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()

	cluster.Start(ctx)

	if selfAddr != "" {
		// A real deployment supplies a tls.Config carrying actual
		// certificates; this command does not yet expose a flag for
		// one, so Listen will fail here until that configuration
		// surface is added.
		go func(addr string) {
			if err := transport.Listen(ctx, addr, &tls.Config{}, cluster); err != nil {
				log.Printf("dflowd: listen on %s: %v", addr, err)
			}
		}(selfAddr)
	}

	for _, p := range cfg.Partitions {
		if p.Addr == "" {
			continue
		}
		conn, err := transport.Dial(ctx, p.Addr, &tls.Config{})
		if err != nil {
			log.Printf("dflowd: dial partition %d at %s: %v", p.ID, p.Addr, err)
			continue
		}
		conn.ServeLocal(cluster)
		cluster.SetPeer(p.ID, conn)
	}

	log.Printf("dflowd: serving %d partitions (%v hosted locally)", cfg.N(), cfg.Hosted())
	<-ctx.Done()
	if err := cluster.Stop(); err != nil {
		log.Printf("dflowd: shutdown: %v", err)
	}
}
