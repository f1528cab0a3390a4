package distributor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"archivist/internal/checkpoint"
	"archivist/internal/listing"
	"archivist/internal/logging"
	"archivist/internal/remote"
	"archivist/internal/services"
	"archivist/internal/status"
	"archivist/internal/worker"
	"archivist/internal/workflow"
)

const (
	meterName          = "archivist/internal/distributor"
	flatLevel          = -1
	metricItems        = "archivist.distributor.items"
	metricCheckpointKO = "archivist.distributor.checkpoint.failures"
)

// Distributor dispatches the work items of one step to a worker pool.
type Distributor struct {
	registry remote.Registry
	source   listing.Source
	store    checkpoint.Store
	tracker  Tracker
	observer BatchObserver

	batchSize      int
	threshold      int
	progressBucket float64
	policy         remote.ProbePolicy

	base          *slog.Logger
	logger        *slog.Logger
	meterProvider metric.MeterProvider
	items         metric.Int64Counter
	checkpointKO  metric.Int64Counter
}

// New builds a Distributor. registry resolves worker pools; source lists work
// items. Checkpointing and progress tracking are enabled through options.
func New(registry remote.Registry, source listing.Source, opts ...Option) *Distributor {
	d := &Distributor{
		registry:  registry,
		source:    source,
		batchSize: defaultBatchSize,
		policy:    remote.DefaultProbePolicy(),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.threshold <= 0 {
		d.threshold = d.batchSize
	}
	d.base = d.logger
	d.logger = logging.NewComponentLogger(d.logger, "distributor")
	if d.meterProvider == nil {
		d.meterProvider = otel.GetMeterProvider()
	}
	meter := d.meterProvider.Meter(meterName)
	var err error
	if d.items, err = meter.Int64Counter(metricItems,
		metric.WithDescription("Work items resolved by the distributor"),
		metric.WithUnit("{item}")); err != nil {
		d.logger.Warn("item counter unavailable", logging.Error(err))
	}
	if d.checkpointKO, err = meter.Int64Counter(metricCheckpointKO,
		metric.WithDescription("Checkpoint writes that failed and were skipped")); err != nil {
		d.logger.Warn("checkpoint failure counter unavailable", logging.Error(err))
	}
	return d
}

// BatchSize returns the configured batch size.
func (d *Distributor) BatchSize() int { return d.batchSize }

// Threshold returns the item count above which checkpoints are written.
func (d *Distributor) Threshold() int { return d.threshold }

// loggerFor returns the component logger, mirrored into the run log that
// ctx carries.
func (d *Distributor) loggerFor(ctx context.Context) *slog.Logger {
	return logging.NewComponentLogger(logging.FromContext(ctx, d.base), "distributor")
}

// run is the state of one Distribute call.
type run struct {
	ec      workflow.ExecutionContext
	step    workflow.Step
	runID   string
	logger  *slog.Logger
	agg     *status.ItemStatus
	sampler *logging.ProgressSampler

	total     int
	done      int
	batchSeq  int
	trackerKO bool
}

// Distribute runs step for the pipeline run identified by runID and returns
// the step's aggregated outcome. ec.StepID names the tracker and checkpoint
// entry; the step name is used when it is empty.
func (d *Distributor) Distribute(ctx context.Context, ec workflow.ExecutionContext, step workflow.Step, runID string) (result *status.ItemStatus) {
	stepName := step.Name()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validate(ec, step, runID); err != nil {
		logging.ErrorWithContext(d.loggerFor(ctx), "step rejected", "step_precondition_failed",
			logging.String(logging.FieldRunID, runID),
			logging.String(logging.FieldStep, stepName),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the caller must pass a run id, a container and a step"),
		)
		result = status.FatalOutcome(stepName, services.MessagePreconditionFailed)
		if runID != "" && ec.StepID != "" {
			d.report(runID, ec.StepID, result.Code)
		}
		return result
	}

	stepID := ec.StepID
	if stepID == "" {
		stepID = stepName
	}
	ec = ec.ForStep(stepID, stepName)
	ctx = services.WithSession(ctx, runID, ec.TenantID)
	ctx = services.WithStep(ctx, stepName)

	r := &run{
		ec:      ec,
		step:    step,
		runID:   runID,
		logger:  logging.WithContext(ctx, d.loggerFor(ctx)),
		agg:     status.New(stepName),
		sampler: logging.NewProgressSampler(d.progressBucket),
	}

	defer func() {
		if rec := recover(); rec != nil {
			logging.ErrorWithContext(r.logger, "distribution panicked", "distribution_panic",
				logging.Any("panic", rec),
				logging.String(logging.FieldImpact, "step marked FATAL"),
			)
			result = escalate(r.agg, services.MessageUnexpectedFailure)
			d.report(runID, stepID, result.Code)
		}
	}()

	r.logger.Info("step started",
		logging.String(logging.FieldEventType, "step_start"),
		logging.String("distribution", string(step.Distribution().Kind)),
		logging.String("element", step.Distribution().Element),
		logging.String(logging.FieldWorkerGroup, step.WorkerGroupID()),
		logging.Int("batch_size", d.batchSize),
	)

	var err error
	if step.Distribution().Hierarchical() {
		err = d.distributeLevels(ctx, r)
	} else {
		err = d.distributeFlat(ctx, r)
	}
	if err == nil && ctx.Err() != nil {
		err = services.Wrap(services.ErrTimeout, "distributor", "distribute", "distribution cancelled", ctx.Err())
	}
	if err != nil {
		return d.fail(r, err)
	}
	return d.finish(ctx, r)
}

func validate(ec workflow.ExecutionContext, step workflow.Step, runID string) error {
	switch {
	case strings.TrimSpace(runID) == "":
		return services.Wrap(services.ErrValidation, "distributor", "distribute", "run id is required", nil)
	case step.IsZero() || step.Name() == "":
		return services.Wrap(services.ErrValidation, "distributor", "distribute", "step is required", nil)
	case strings.TrimSpace(ec.ContainerName) == "":
		return services.Wrap(services.ErrValidation, "distributor", "distribute", "execution context has no container", nil)
	}
	return nil
}

// resolveFlat returns the item set of a SINGLE or flat LIST step.
func (d *Distributor) resolveFlat(ctx context.Context, r *run) ([]string, error) {
	dist := r.step.Distribution()
	switch dist.Kind {
	case workflow.KindSingle:
		if name := strings.TrimSpace(dist.Element); name != "" {
			return []string{name}, nil
		}
		return []string{r.ec.ContainerName}, nil
	case workflow.KindList:
		if d.source == nil {
			return nil, services.Wrap(services.ErrConfiguration, "distributor", "list", "no listing source configured", nil)
		}
		return d.source.ListFlat(ctx, r.ec.ContainerName, dist.Element)
	default:
		return nil, services.Wrap(services.ErrValidation, "distributor", "list", fmt.Sprintf("unknown distribution kind %q", dist.Kind), nil)
	}
}

func (d *Distributor) distributeFlat(ctx context.Context, r *run) error {
	items, err := d.resolveFlat(ctx, r)
	if err != nil {
		return err
	}
	r.total = len(items)
	if r.total == 0 {
		r.agg = status.EmptyList(r.step.Name())
		d.setTotal(r)
		r.logger.Warn("step has no work items",
			logging.String(logging.FieldEventType, "step_empty"),
			logging.String(logging.FieldImpact, "step resolves to WARNING without dispatching"),
		)
		return nil
	}
	d.setTotal(r)

	offset := d.resume(ctx, r, len(items))
	return d.runBatches(ctx, r, items, offset, flatLevel)
}

func (d *Distributor) distributeLevels(ctx context.Context, r *run) error {
	if d.source == nil {
		return services.Wrap(services.ErrConfiguration, "distributor", "level index", "no listing source configured", nil)
	}
	levels, err := d.source.LevelIndex(ctx, r.ec.ContainerName)
	if err != nil {
		return err
	}
	order := listing.SortedLevels(levels)
	for _, level := range order {
		r.total += len(levels[level])
	}
	if r.total == 0 {
		r.agg = status.EmptyList(r.step.Name())
		d.setTotal(r)
		r.logger.Warn("step has no work items",
			logging.String(logging.FieldEventType, "step_empty"),
			logging.String(logging.FieldImpact, "step resolves to WARNING without dispatching"),
		)
		return nil
	}
	d.setTotal(r)

	if d.store != nil {
		if idx, ok, readErr := d.store.Read(ctx, r.ec.ContainerName, r.ec.StepID); readErr == nil && ok {
			logging.WarnWithContext(r.logger, "checkpoint ignored for level distribution", "checkpoint_ignored",
				logging.Int("offset", idx.Offset),
				logging.Int("level", idx.Level),
				logging.String(logging.FieldImpact, "all levels are dispatched again"),
			)
		}
	}

	for _, level := range order {
		items := levels[level]
		if len(items) == 0 {
			continue
		}
		r.logger.Info("level started",
			logging.String(logging.FieldEventType, "level_start"),
			logging.Int("level", level),
			logging.Int("items", len(items)),
		)
		if err := d.runBatches(ctx, r, items, 0, level); err != nil {
			return err
		}
	}
	return nil
}

// resume returns the number of items already covered by a checkpoint of this
// run and step, seeding the aggregate from its snapshot.
func (d *Distributor) resume(ctx context.Context, r *run, total int) int {
	if d.store == nil {
		return 0
	}
	idx, ok, err := d.store.Read(ctx, r.ec.ContainerName, r.ec.StepID)
	if err != nil {
		logging.WarnWithContext(r.logger, "checkpoint read failed", "checkpoint_read_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "step starts from the first item"),
		)
		return 0
	}
	if !ok {
		return 0
	}
	if !idx.Matches(r.runID, r.ec.StepID) || idx.Offset <= 0 || idx.Offset > total || idx.Status == nil {
		r.logger.Info("stale checkpoint skipped",
			logging.String(logging.FieldEventType, "checkpoint_stale"),
			logging.String("checkpoint_run_id", idx.RunID),
			logging.Int("offset", idx.Offset),
		)
		return 0
	}

	r.agg = idx.Status.Clone()
	r.agg.ItemID = r.step.Name()
	for i := 0; i < idx.Offset; i++ {
		d.markProcessed(r)
	}
	r.done = idx.Offset
	r.logger.Info("step resumed from checkpoint",
		logging.String(logging.FieldEventType, "checkpoint_resumed"),
		logging.Int("offset", idx.Offset),
		logging.Int("total", total),
		logging.String("status", r.agg.Code.String()),
	)
	return idx.Offset
}

func (d *Distributor) runBatches(ctx context.Context, r *run, items []string, offset, level int) error {
	for start := offset; start < len(items); start += d.batchSize {
		if err := ctx.Err(); err != nil {
			return services.Wrap(services.ErrTimeout, "distributor", "batch", "distribution cancelled", err)
		}
		end := min(start+d.batchSize, len(items))
		batch := items[start:end]
		r.batchSeq++

		if d.observer != nil {
			d.observer(Batch{
				RunID: r.runID,
				Step:  r.step.Name(),
				Level: level,
				Index: r.batchSeq,
				Items: append([]string(nil), batch...),
			})
		}
		r.logger.Info("batch dispatched",
			logging.String(logging.FieldEventType, "batch_dispatched"),
			logging.Int("batch", r.batchSeq),
			logging.Int("level", level),
			logging.Int("items", len(batch)),
			logging.Int("offset", start),
		)

		futures := make([]*worker.Future, len(batch))
		for i, item := range batch {
			unit := remote.New(r.step, r.ec.WithObject(item), r.runID, d.registry,
				remote.WithProbePolicy(d.policy),
				remote.WithLogger(d.base),
			)
			futures[i] = unit.Dispatch(ctx)
		}

		worst := status.Started
		for _, future := range futures {
			outcome := future.Wait()
			r.agg.Merge(outcome)
			worst = status.Max(worst, outcome.Code)
			d.countItem(ctx, r, outcome.Code)
			d.markProcessed(r)
			r.done++
		}

		r.logger.Info("batch complete",
			logging.String(logging.FieldEventType, "batch_complete"),
			logging.Int("batch", r.batchSeq),
			logging.String("batch_status", worst.String()),
			logging.String("step_status", r.agg.Code.String()),
		)

		if len(items) > d.threshold {
			d.persist(ctx, r, end, level)
		}
		if r.sampler.ShouldLog(r.done, r.total) {
			r.logger.Info("distribution progress",
				logging.String(logging.FieldEventType, "step_progress"),
				logging.Int("processed", r.done),
				logging.Int("total", r.total),
			)
		}
	}
	return nil
}

func (d *Distributor) persist(ctx context.Context, r *run, offset, level int) {
	if d.store == nil {
		return
	}
	idx := checkpoint.Index{
		RunID:  r.runID,
		StepID: r.ec.StepID,
		Offset: offset,
		Level:  max(level, 0),
		Status: r.agg,
	}
	if err := d.store.Persist(ctx, r.ec.ContainerName, r.ec.StepID, idx); err != nil {
		if d.checkpointKO != nil {
			d.checkpointKO.Add(ctx, 1, metric.WithAttributes(attribute.String("step", r.step.Name())))
		}
		logging.WarnWithContext(r.logger, "checkpoint persist failed", "checkpoint_failed",
			logging.Error(err),
			logging.Int("offset", offset),
			logging.String(logging.FieldErrorHint, "check the checkpoint database"),
			logging.String(logging.FieldImpact, "an interrupted step restarts from an older offset"),
		)
		return
	}
	r.logger.Info("checkpoint persisted",
		logging.String(logging.FieldEventType, "checkpoint_persisted"),
		logging.Int("offset", offset),
		logging.Int("level", level),
	)
}

func (d *Distributor) finish(ctx context.Context, r *run) *status.ItemStatus {
	if d.store != nil {
		if err := d.store.Delete(ctx, r.ec.ContainerName, r.ec.StepID); err != nil {
			r.logger.Warn("checkpoint cleanup failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "checkpoint_cleanup_failed"),
			)
		}
	}
	d.report(r.runID, r.ec.StepID, r.agg.Code)
	r.logger.Info("step complete",
		logging.String(logging.FieldEventType, "step_complete"),
		logging.String("status", r.agg.Code.String()),
		logging.Int("processed", r.done),
		logging.Int("total", r.total),
	)
	return r.agg
}

func (d *Distributor) fail(r *run, err error) *status.ItemStatus {
	messageID := services.MessageID(err)
	logging.ErrorWithContext(r.logger, "step failed", "step_failed",
		logging.Error(err),
		logging.String("message_id", messageID),
		logging.Int("processed", r.done),
		logging.String(logging.FieldImpact, "step marked FATAL"),
	)
	result := escalate(r.agg, messageID)
	d.report(r.runID, r.ec.StepID, result.Code)
	return result
}

// escalate returns a FATAL copy of agg carrying messageID.
func escalate(agg *status.ItemStatus, messageID string) *status.ItemStatus {
	out := agg.Clone()
	out.Code = status.Fatal
	out.MessageID = messageID
	return out
}

func (d *Distributor) setTotal(r *run) {
	if d.tracker == nil {
		return
	}
	if err := d.tracker.UpdateStep(r.runID, r.ec.StepID, int64(r.total), false); err != nil {
		d.trackerFailed(r, err)
	}
}

func (d *Distributor) markProcessed(r *run) {
	if d.tracker == nil {
		return
	}
	if err := d.tracker.UpdateStep(r.runID, r.ec.StepID, 0, true); err != nil {
		d.trackerFailed(r, err)
	}
}

func (d *Distributor) report(runID, stepID string, code status.Code) {
	if d.tracker == nil {
		return
	}
	if err := d.tracker.UpdateStepStatus(runID, stepID, code); err != nil {
		d.logger.Debug("tracker status update skipped",
			logging.String(logging.FieldRunID, runID),
			logging.String("step_id", stepID),
			logging.Error(err),
		)
	}
}

func (d *Distributor) trackerFailed(r *run, err error) {
	if r.trackerKO {
		return
	}
	r.trackerKO = true
	logging.WarnWithContext(r.logger, "progress tracker rejected update", "tracker_update_failed",
		logging.Error(err),
		logging.String("step_id", r.ec.StepID),
		logging.String(logging.FieldImpact, "progress is not visible for this step"),
	)
}

func (d *Distributor) countItem(ctx context.Context, r *run, code status.Code) {
	if d.items == nil {
		return
	}
	d.items.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", code.String()),
		attribute.String("step", r.step.Name()),
	))
}
