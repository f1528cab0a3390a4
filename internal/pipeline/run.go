package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"archivist/internal/logging"
	"archivist/internal/notifications"
	"archivist/internal/progress"
	"archivist/internal/services"
	"archivist/internal/status"
	"archivist/internal/workflow"
)

// Request describes one run of a workflow.
type Request struct {
	Container  string
	Tenant     string
	Properties map[string]string
}

// StepResult is the outcome of one executed step.
type StepResult struct {
	StepID  string             `json:"step_id"`
	Name    string             `json:"name"`
	Outcome *status.ItemStatus `json:"outcome"`
}

// Result is the outcome of a whole run. Steps after a FATAL step are not
// listed.
type Result struct {
	RunID      string        `json:"run_id"`
	WorkflowID string        `json:"workflow_id"`
	Container  string        `json:"container"`
	Steps      []StepResult  `json:"steps"`
	Status     status.Code   `json:"status"`
	Halted     bool          `json:"halted"`
	Duration   time.Duration `json:"duration"`
}

// Run executes wf synchronously and returns once every step has resolved or
// a step ended FATAL.
func (r *Runner) Run(ctx context.Context, wf *workflow.WorkFlow, req Request) (*Result, error) {
	if err := validateRequest(wf, req); err != nil {
		return nil, err
	}
	runID := r.newID()
	r.begin(runID, wf, req)
	result := r.execute(ctx, runID, wf, req)
	r.complete(runID, result)
	return result, nil
}

// Start executes wf in the background and returns the run id immediately.
// The run is bound to ctx; cancelling it stops dispatching further batches.
func (r *Runner) Start(ctx context.Context, wf *workflow.WorkFlow, req Request) (string, error) {
	if err := validateRequest(wf, req); err != nil {
		return "", err
	}
	runID := r.newID()
	r.begin(runID, wf, req)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		result := r.execute(ctx, runID, wf, req)
		r.complete(runID, result)
	}()
	return runID, nil
}

func validateRequest(wf *workflow.WorkFlow, req Request) error {
	switch {
	case wf == nil:
		return services.Wrap(services.ErrValidation, "pipeline", "run", "workflow is required", nil)
	case len(wf.Steps()) == 0:
		return services.Wrap(services.ErrValidation, "pipeline", "run",
			fmt.Sprintf("workflow %q has no steps", wf.ID()), nil)
	case strings.TrimSpace(req.Container) == "":
		return services.Wrap(services.ErrValidation, "pipeline", "run", "container is required", nil)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, runID string, wf *workflow.WorkFlow, req Request) *Result {
	started := r.now()
	ctx = services.WithSession(ctx, runID, req.Tenant)

	ctx, closeLog := r.openRunLog(ctx, runID)
	defer closeLog()
	logger := logging.FromContext(ctx, r.logger)
	logger = logger.With(
		logging.String(logging.FieldRunID, runID),
		logging.String("workflow_id", wf.ID()),
		logging.String("container", req.Container),
	)
	if req.Tenant != "" {
		logger = logger.With(logging.String(logging.FieldTenantID, req.Tenant))
	}

	steps := wf.Steps()
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("steps", len(steps)),
	)

	base := workflow.ExecutionContext{
		ContainerName: req.Container,
		TenantID:      req.Tenant,
		Properties:    req.Properties,
	}.Clone()

	result := &Result{RunID: runID, WorkflowID: wf.ID(), Container: req.Container, Status: status.Started}
	for i, step := range steps {
		stepID := progress.StepKey(req.Container, wf.ID(), i, step.Name())
		ec := base.ForStep(stepID, step.Name())
		outcome := r.distributor.Distribute(ctx, ec, step, runID)
		if outcome == nil {
			outcome = status.FatalOutcome(step.Name(), services.MessageUnexpectedFailure)
		}
		result.Steps = append(result.Steps, StepResult{StepID: stepID, Name: step.Name(), Outcome: outcome})
		result.Status = status.Max(result.Status, outcome.Code)
		if outcome.Code == status.Fatal {
			result.Halted = i < len(steps)-1
			logging.WarnWithContext(logger, "run halted after fatal step", "run_halted",
				logging.String(logging.FieldStep, step.Name()),
				logging.String("message_id", outcome.MessageID),
				logging.Int("skipped_steps", len(steps)-i-1),
				logging.String(logging.FieldErrorHint, "inspect the step outcome and worker logs"),
			)
			break
		}
	}
	result.Duration = r.now().Sub(started)

	logger.Info("run complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("status", result.Status.String()),
		logging.Int("executed_steps", len(result.Steps)),
		logging.Duration("duration", result.Duration),
	)
	r.notify(ctx, logger, result)
	return result
}

func (r *Runner) notify(ctx context.Context, logger *slog.Logger, result *Result) {
	if r.notifier == nil || !result.Status.AtLeast(r.notifier.Threshold()) {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	err := r.notifier.NotifyRunCompleted(notifyCtx, notifications.RunSummary{
		RunID:      result.RunID,
		WorkflowID: result.WorkflowID,
		Container:  result.Container,
		Status:     result.Status,
		Halted:     result.Halted,
		Steps:      len(result.Steps),
		Duration:   result.Duration,
	})
	if err != nil {
		logging.WarnWithContext(logger, "run notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

// openRunLog attaches the run's log file to ctx when a directory is
// configured, so the distributor and its units mirror their lines into it. A
// failure to open the file is logged and the run continues without it.
func (r *Runner) openRunLog(ctx context.Context, runID string) (context.Context, func()) {
	if strings.TrimSpace(r.runLogDir) == "" {
		return ctx, func() {}
	}
	runLog, err := logging.OpenRunLog(r.runLogDir, runID, r.runLogLevel)
	if err != nil {
		logging.WarnWithContext(r.logger, "run log unavailable", "run_log_failed",
			logging.String(logging.FieldRunID, runID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check log_dir permissions"),
		)
		return ctx, func() {}
	}
	r.setLogPath(runID, runLog.Path)
	return logging.WithRunLog(ctx, runLog.Handler), func() {
		if err := runLog.Close(); err != nil {
			r.logger.Debug("close run log", logging.Error(err))
		}
	}
}
