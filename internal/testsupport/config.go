package testsupport

import (
	"fmt"
	"path/filepath"
	"testing"

	"archivist/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Checkpoints default to the sqlite driver inside the state directory and
// liveness probing is shortened so failure paths stay fast.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.WorkspaceDir = filepath.Join(base, "workspace")
	cfgVal.Paths.WorkflowsDir = filepath.Join(base, "workflows")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Worker.Listen = "127.0.0.1:0"
	cfgVal.Liveness.Retries = 2
	cfgVal.Liveness.IntervalMS = 1
	cfgVal.Liveness.RequestTimeoutSeconds = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBatchSize overrides the distributor batch size.
func WithBatchSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Distributor.BatchSize = size
	}
}

// WithCheckpointThreshold overrides the checkpoint threshold.
func WithCheckpointThreshold(threshold int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Distributor.CheckpointThreshold = threshold
	}
}

// WithCheckpointDriver selects the checkpoint store driver.
func WithCheckpointDriver(driver string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Checkpoint.Driver = driver
	}
}

// WithWorkerGroup appends a worker group with one member per address. Member
// ids are <group>-<n>, starting at 1.
func WithWorkerGroup(id string, concurrency int, addresses ...string) ConfigOption {
	return func(b *configBuilder) {
		group := config.WorkerGroup{ID: id, Concurrency: concurrency}
		for i, addr := range addresses {
			group.Members = append(group.Members, config.WorkerMember{
				ID:      memberID(id, i+1),
				Address: addr,
			})
		}
		b.cfg.Workers.Groups = append(b.cfg.Workers.Groups, group)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

func memberID(group string, n int) string {
	return fmt.Sprintf("%s-%d", group, n)
}
