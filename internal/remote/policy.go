package remote

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"archivist/internal/config"
	"archivist/internal/worker"
)

// ProbePolicy bounds the liveness check run after a failed submission.
type ProbePolicy struct {
	// Retries is the number of probe attempts before a worker is declared unreachable.
	Retries int
	// Interval is the fixed wait between attempts.
	Interval time.Duration
}

// DefaultProbePolicy mirrors the configuration defaults.
func DefaultProbePolicy() ProbePolicy {
	return PolicyFromConfig(config.Default().Liveness)
}

// PolicyFromConfig converts the [liveness] section.
func PolicyFromConfig(l config.Liveness) ProbePolicy {
	return ProbePolicy{Retries: l.Retries, Interval: l.Interval()}
}

func (p ProbePolicy) attempts() uint64 {
	if p.Retries <= 1 {
		return 1
	}
	return uint64(p.Retries)
}

// Probe checks w's liveness up to Retries times and returns the last error,
// or nil as soon as one attempt succeeds.
func (p ProbePolicy) Probe(ctx context.Context, w *worker.Worker) error {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Interval)
	b = backoff.WithMaxRetries(b, p.attempts()-1)
	b = backoff.WithContext(b, ctx)
	return backoff.Retry(func() error {
		return w.Transport.CheckLiveness(ctx)
	}, b)
}
