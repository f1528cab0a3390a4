package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"archivist/internal/logging"
	"archivist/internal/notifications"
	"archivist/internal/progress"
	"archivist/internal/status"
	"archivist/internal/workflow"
)

// StepDistributor executes one step of a run and returns its aggregate.
type StepDistributor interface {
	Distribute(ctx context.Context, ec workflow.ExecutionContext, step workflow.Step, runID string) *status.ItemStatus
}

// Notifier announces finished runs whose status reaches its threshold.
type Notifier interface {
	NotifyRunCompleted(ctx context.Context, summary notifications.RunSummary) error
	Threshold() status.Code
}

const notifyTimeout = 15 * time.Second

// Runner coordinates workflow runs against a distributor and a tracker.
type Runner struct {
	distributor StepDistributor
	tracker     *progress.Tracker
	logger      *slog.Logger
	notifier    Notifier

	runLogDir   string
	runLogLevel slog.Level
	newID       func() string
	now         func() time.Time

	mu   sync.RWMutex
	runs map[string]*Record
	wg   sync.WaitGroup
}

// Option configures optional Runner behavior.
type Option func(*Runner)

// WithRunLogDir mirrors each run's log lines into <dir>/<run-id>.log.
func WithRunLogDir(dir string, level slog.Level) Option {
	return func(r *Runner) {
		r.runLogDir = dir
		r.runLogLevel = level
	}
}

// WithNotifier announces finished runs through n.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) {
		r.notifier = n
	}
}

// WithIDGenerator overrides run id generation (used in tests).
func WithIDGenerator(fn func() string) Option {
	return func(r *Runner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner constructs a runner. A nil logger disables logging.
func NewRunner(distributor StepDistributor, tracker *progress.Tracker, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		distributor: distributor,
		tracker:     tracker,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
		runLogLevel: slog.LevelInfo,
		newID:       uuid.NewString,
		now:         time.Now,
		runs:        make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tracker returns the tracker the runner reports into.
func (r *Runner) Tracker() *progress.Tracker {
	return r.tracker
}

// Wait blocks until every background run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
