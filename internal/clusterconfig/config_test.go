package clusterconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/latticeflow/dflow/internal/clusterconfig"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndHosted(t *testing.T) {
	path := writeConfig(t, `
partitions:
  - id: 0
    addr: ""
  - id: 1
    addr: "10.0.0.2:9001"
  - id: 2
    addr: ""
`)
	cfg, err := clusterconfig.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.N() != 3 {
		t.Fatalf("expected 3 partitions, got %d", cfg.N())
	}
	hosted := cfg.Hosted()
	if len(hosted) != 2 || hosted[0] != 0 || hosted[1] != 2 {
		t.Fatalf("unexpected hosted set: %v", hosted)
	}
}

func TestLoadRejectsOutOfOrderIDs(t *testing.T) {
	path := writeConfig(t, `
partitions:
  - id: 1
    addr: ""
`)
	if _, err := clusterconfig.Load(path); err == nil {
		t.Fatal("expected an error for an out-of-order partition id")
	}
}

func TestLoadRejectsEmptyTopology(t *testing.T) {
	path := writeConfig(t, `partitions: []`)
	if _, err := clusterconfig.Load(path); err == nil {
		t.Fatal("expected an error for an empty topology")
	}
}
