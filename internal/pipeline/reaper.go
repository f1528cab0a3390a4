package pipeline

import (
	"context"
	"log/slog"
	"time"

	"archivist/internal/logging"
)

// Reaper purges finished runs once they are older than the retention.
type Reaper struct {
	runner    *Runner
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
}

// NewReaper creates a reaper for runner. A non-positive retention disables
// purging.
func NewReaper(runner *Runner, logger *slog.Logger, interval, retention time.Duration) *Reaper {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reaper{
		runner:    runner,
		logger:    logging.NewComponentLogger(logger, "pipeline-reaper"),
		interval:  interval,
		retention: retention,
	}
}

// ReapFinished forgets finished runs whose completion predates now minus the
// retention and returns how many were purged.
func (p *Reaper) ReapFinished(now time.Time) int {
	if p.retention <= 0 {
		return 0
	}
	cutoff := now.Add(-p.retention)
	purged := 0
	for _, rec := range p.runner.Runs() {
		if rec.Running || rec.FinishedAt.IsZero() || rec.FinishedAt.After(cutoff) {
			continue
		}
		if removed, _ := p.runner.Forget(rec.RunID); removed {
			purged++
		}
	}
	if purged > 0 {
		p.logger.Info("purged finished runs",
			logging.Int("count", purged),
			logging.String(logging.FieldEventType, "runs_purged"),
		)
	}
	return purged
}

// Run reaps on every tick until ctx is cancelled.
func (p *Reaper) Run(ctx context.Context) {
	if p.interval <= 0 || p.retention <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.ReapFinished(now)
		}
	}
}
