package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"archivist/internal/logging"
	"archivist/internal/services"
	"archivist/internal/status"
	"archivist/internal/worker"
	"archivist/internal/workflow"
)

// Registry is the slice of worker.Registry a Unit needs.
type Registry interface {
	FindPoolByGroup(group string) (*worker.Pool, bool)
	UnregisterWorker(group, workerID string) error
}

// Option customises a Unit.
type Option func(*Unit)

// WithProbePolicy overrides the liveness probe policy.
func WithProbePolicy(p ProbePolicy) Option {
	return func(u *Unit) { u.policy = p }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Unit) {
		if logger != nil {
			u.base = logger
		}
	}
}

// WithRequestID fixes the request id instead of generating one.
func WithRequestID(id string) Option {
	return func(u *Unit) {
		if id != "" {
			u.requestID = id
		}
	}
}

// Unit executes one step against one work item on a remote worker.
type Unit struct {
	step      workflow.Step
	ec        workflow.ExecutionContext
	runID     string
	registry  Registry
	policy    ProbePolicy
	base      *slog.Logger
	requestID string
}

// New builds a Unit. ec must already name the item in ObjectName; it is
// cloned so the caller may keep mutating its own copy.
func New(step workflow.Step, ec workflow.ExecutionContext, runID string, registry Registry, opts ...Option) *Unit {
	u := &Unit{
		step:      step,
		ec:        ec.Clone(),
		runID:     runID,
		registry:  registry,
		policy:    DefaultProbePolicy(),
		base:      logging.NewNop(),
		requestID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// logger returns the unit's component logger with the session fields of ctx,
// mirrored into the run log that ctx carries.
func (u *Unit) logger(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, logging.NewComponentLogger(logging.FromContext(ctx, u.base), "remote-unit"))
}

// ObjectName returns the item this unit processes.
func (u *Unit) ObjectName() string { return u.ec.ObjectName }

// RequestID returns the correlation id sent to the worker.
func (u *Unit) RequestID() string { return u.requestID }

// Context returns a copy of the unit's execution context.
func (u *Unit) Context() workflow.ExecutionContext { return u.ec.Clone() }

// Call dispatches the unit and waits for its outcome.
func (u *Unit) Call(ctx context.Context) *status.ItemStatus {
	return u.Dispatch(ctx).Wait()
}

// Dispatch binds the run session, resolves the worker pool, and submits the
// unit. A missing pool resolves immediately to FATAL without any network call.
func (u *Unit) Dispatch(ctx context.Context) *worker.Future {
	ctx = u.bind(ctx)
	logger := u.logger(ctx)

	group := u.step.WorkerGroupID()
	var pool *worker.Pool
	var ok bool
	if u.registry != nil {
		pool, ok = u.registry.FindPoolByGroup(group)
	}
	if !ok {
		logging.ErrorWithContext(logger, "worker group not registered", "worker_group_missing",
			logging.String(logging.FieldWorkerGroup, group),
			logging.String(logging.FieldErrorHint, "add the group to [[workers.groups]] in config.toml"),
		)
		return worker.Resolved(status.FatalOutcome(u.ec.ObjectName, services.MessageWorkerGroupNotFound))
	}
	logger.Debug("unit submitted", logging.String(logging.FieldWorkerGroup, group))
	return pool.Submit(ctx, u)
}

func (u *Unit) bind(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = services.WithSession(ctx, u.runID, u.ec.TenantID)
	ctx = services.WithStep(ctx, u.step.Name())
	ctx = services.WithObject(ctx, u.ec.ObjectName)
	return services.WithRequestID(ctx, u.requestID)
}

// Execute submits the unit to w. It is called by the pool on its own goroutine.
func (u *Unit) Execute(ctx context.Context, w *worker.Worker) (outcome *status.ItemStatus) {
	logger := u.logger(ctx).With(
		logging.String(logging.FieldWorkerID, w.ID),
		logging.String(logging.FieldWorkerGroup, w.Group),
	)
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "unit panicked", "unit_panic", logging.Any("panic", r))
			outcome = status.FatalOutcome(u.ec.ObjectName, services.MessageUnexpectedFailure)
		}
	}()

	req := worker.Request{
		RequestID: u.requestID,
		RunID:     u.runID,
		Step:      u.step,
		Context:   u.ec.Clone(),
	}
	result, err := w.Transport.Submit(ctx, req)
	switch {
	case err != nil:
	case result == nil:
		return status.Outcome(u.ec.ObjectName, status.OK, "")
	case !result.Code.Valid() || !result.Code.AtLeast(status.OK):
		// Outcomes must be terminal.
		err = services.Wrap(services.ErrWorkerExecutor, "remote", "submit",
			fmt.Sprintf("worker returned non-terminal status %s", result.Code), nil)
	default:
		result.ItemID = u.ec.ObjectName
		return result
	}
	return u.classify(ctx, logger, w, err)
}

// Abandon resolves a unit the pool could not start.
func (u *Unit) Abandon(err error) *status.ItemStatus {
	return status.FatalOutcome(u.ec.ObjectName, services.MessageID(err))
}

func (u *Unit) classify(ctx context.Context, logger *slog.Logger, w *worker.Worker, err error) *status.ItemStatus {
	if !services.IsTransportFailure(err) {
		logging.ErrorWithContext(logger, "worker reported execution failure", "worker_executor_failure",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the worker log for this request id"),
		)
		return status.FatalOutcome(u.ec.ObjectName, services.MessageWorkerExecutorFailed)
	}

	probeErr := u.policy.Probe(ctx, w)
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Warn("liveness probe interrupted", logging.Error(ctxErr), logging.String(logging.FieldEventType, "probe_cancelled"))
		return status.FatalOutcome(u.ec.ObjectName, services.MessageUnexpectedFailure)
	}
	if probeErr != nil {
		if unregErr := u.registry.UnregisterWorker(w.Group, w.ID); unregErr != nil && !errors.Is(unregErr, services.ErrNotFound) {
			logger.Warn("worker deregistration failed", logging.Error(unregErr))
		}
		logging.ErrorWithContext(logger, "worker unreachable after liveness probe", "worker_unreachable",
			logging.Error(fmt.Errorf("%w: %w", services.ErrWorkerUnreachable, err)),
			logging.Int("probe_attempts", int(u.policy.attempts())),
			logging.String(logging.FieldErrorHint, "check the worker process and its network address"),
		)
		return status.FatalOutcome(u.ec.ObjectName, services.MessageWorkerUnreachable)
	}

	logging.ErrorWithContext(logger, "worker alive but submission failed", "worker_executor_failure",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect the worker log for this request id"),
	)
	return status.FatalOutcome(u.ec.ObjectName, services.MessageWorkerExecutorFailed)
}
