package main

import (
	"errors"
	"net/url"
	"strings"

	"github.com/bford/cofo/cri"

	"github.com/latticeflow/dflow/internal/clusterconfig"
)

// parseGroup parses a topology given inline as a composable resource
// identifier, e.g. "dflow[host1:9001,host2:9002,host3:9003]", into a
// clusterconfig.Config with one partition per listed address, none of
// them marked as hosted locally — the caller decides which partition
// this process hosts separately, since a CRI has no way to say "this
// one is me". This follows the same composable-resource-identifier
// group-parsing shape other cluster CLIs in this family use, with the
// URI scheme renamed to this tool's own.
func parseGroup(group string) (*clusterconfig.Config, error) {
	if len(group) > 0 && group[0] == '[' {
		group = "dflow" + group
	}

	rawurl, err := cri.URI.From(group)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "dflow" {
		return nil, errors.New("dflowd: cluster groups must use the dflow scheme")
	}

	str, addr := u.Opaque, ""
	var addrs []string
	for str != "" {
		if i := strings.IndexByte(str, ','); i >= 0 {
			addr, str = str[:i], str[i+1:]
		} else {
			addr, str = str, ""
		}
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, errors.New("dflowd: cluster group must name at least one partition")
	}

	cfg := &clusterconfig.Config{Partitions: make([]clusterconfig.Partition, len(addrs))}
	for i, a := range addrs {
		cfg.Partitions[i] = clusterconfig.Partition{ID: i, Addr: a}
	}
	return cfg, nil
}
