// Package clusterconfig loads the static topology of a dflow cluster:
// how many partitions it has, and which network address (if any) each
// one listens on. Partition count and ownership are assumed stable for
// the life of the cluster (§6 Non-goals exclude membership changes),
// so this is a one-shot load at startup, not a watched resource.
package clusterconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Partition describes one shard's placement: Addr is empty for a
// partition the local process itself hosts.
type Partition struct {
	ID   int    `yaml:"id"`
	Addr string `yaml:"addr"`
}

// Config is the parsed form of a cluster topology file.
type Config struct {
	Partitions []Partition `yaml:"partitions"`
}

// Load reads and parses the YAML topology file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("clusterconfig: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("clusterconfig: %w", err)
	}
	if len(cfg.Partitions) == 0 {
		return nil, fmt.Errorf("clusterconfig: no partitions declared in %s", path)
	}
	for i, p := range cfg.Partitions {
		if p.ID != i {
			return nil, fmt.Errorf("clusterconfig: partition %d has out-of-order id %d", i, p.ID)
		}
	}
	return &cfg, nil
}

// N returns the total number of partitions in the topology.
func (c *Config) N() int {
	return len(c.Partitions)
}

// Hosted returns the indices of partitions with no listen address:
// those are meant to be hosted by whatever process loads this config
// directly, rather than reached over the network.
func (c *Config) Hosted() []int {
	var ids []int
	for _, p := range c.Partitions {
		if p.Addr == "" {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
