package distributor

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"archivist/internal/checkpoint"
	"archivist/internal/config"
	"archivist/internal/remote"
	"archivist/internal/status"
)

const defaultBatchSize = 16

// Tracker receives progress for the steps being distributed.
type Tracker interface {
	UpdateStep(processID, stepID string, elementToProcess int64, processed bool) error
	UpdateStepStatus(processID, stepID string, code status.Code) error
}

// Batch describes one dispatched batch. Level is -1 for flat item sets.
type Batch struct {
	RunID string
	Step  string
	Level int
	Index int
	Items []string
}

// BatchObserver is told about every batch before its units are dispatched.
type BatchObserver func(Batch)

// Option customises a Distributor.
type Option func(*Distributor)

// WithBatchSize sets the number of items dispatched together.
func WithBatchSize(n int) Option {
	return func(d *Distributor) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithCheckpointThreshold sets the item count above which checkpoints are
// written. Zero or less means the batch size.
func WithCheckpointThreshold(n int) Option {
	return func(d *Distributor) { d.threshold = n }
}

// WithCheckpointStore enables checkpointing and resume.
func WithCheckpointStore(store checkpoint.Store) Option {
	return func(d *Distributor) { d.store = store }
}

// WithTracker reports progress to t.
func WithTracker(t Tracker) Option {
	return func(d *Distributor) { d.tracker = t }
}

// WithProbePolicy sets the liveness policy handed to every remote unit.
func WithProbePolicy(p remote.ProbePolicy) Option {
	return func(d *Distributor) { d.policy = p }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Distributor) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMeterProvider sets the provider for distributor counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(d *Distributor) { d.meterProvider = mp }
}

// WithProgressBucket sets the percentage step between progress log lines.
func WithProgressBucket(pct float64) Option {
	return func(d *Distributor) { d.progressBucket = pct }
}

// WithBatchObserver registers fn for batch notifications.
func WithBatchObserver(fn BatchObserver) Option {
	return func(d *Distributor) { d.observer = fn }
}

// ConfigOptions converts the [distributor] and [liveness] sections.
func ConfigOptions(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	return []Option{
		WithBatchSize(cfg.Distributor.BatchSize),
		WithCheckpointThreshold(cfg.Distributor.CheckpointThreshold),
		WithProgressBucket(cfg.Distributor.ProgressBucket),
		WithProbePolicy(remote.PolicyFromConfig(cfg.Liveness)),
	}
}
