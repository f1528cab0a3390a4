package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"go.opentelemetry.io/otel/metric"

	"archivist/internal/checkpoint"
	"archivist/internal/config"
	"archivist/internal/distributor"
	"archivist/internal/listing"
	"archivist/internal/logging"
	"archivist/internal/notifications"
	"archivist/internal/pipeline"
	"archivist/internal/progress"
	"archivist/internal/worker"
)

// Stack is the orchestration side of archivist: worker registry, checkpoint
// store, distributor and runner, wired from one configuration.
type Stack struct {
	Registry         *worker.Registry
	Tracker          *progress.Tracker
	Store            checkpoint.Store
	CheckpointTarget string
	Distributor      *distributor.Distributor
	Runner           *pipeline.Runner
}

// NewStack opens the checkpoint store and builds the registry, distributor
// and runner. mp may be nil. Callers own Close.
func NewStack(ctx context.Context, cfg *config.Config, logger *slog.Logger, mp metric.MeterProvider) (*Stack, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := checkpoint.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	registry, err := worker.NewRegistryFromConfig(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build worker registry: %w", err)
	}

	tracker := progress.NewTracker()
	opts := append(distributor.ConfigOptions(cfg),
		distributor.WithTracker(tracker),
		distributor.WithCheckpointStore(store),
		distributor.WithLogger(logger),
	)
	if mp != nil {
		opts = append(opts, distributor.WithMeterProvider(mp))
	}
	dist := distributor.New(registry, listing.NewWorkspace(cfg.Paths.WorkspaceDir), opts...)

	runner := pipeline.NewRunner(dist, tracker, logger,
		pipeline.WithRunLogDir(RunLogDir(cfg), logging.ParseLevel(cfg.Logging.Level)),
		pipeline.WithNotifier(notifications.NewService(cfg)),
	)

	return &Stack{
		Registry:         registry,
		Tracker:          tracker,
		Store:            store,
		CheckpointTarget: checkpoint.Describe(store),
		Distributor:      dist,
		Runner:           runner,
	}, nil
}

// RunLogDir is where per-run log files are written.
func RunLogDir(cfg *config.Config) string {
	if cfg == nil || cfg.Paths.LogDir == "" {
		return ""
	}
	return filepath.Join(cfg.Paths.LogDir, "runs")
}

// Close waits for background runs and releases the checkpoint store.
func (s *Stack) Close() error {
	if s == nil {
		return nil
	}
	if s.Runner != nil {
		s.Runner.Wait()
	}
	if s.Store != nil {
		return s.Store.Close()
	}
	return nil
}
