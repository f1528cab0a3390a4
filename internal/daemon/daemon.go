package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/pipeline"
	"archivist/internal/services"
	"archivist/internal/worker"
	"archivist/internal/workflow"
)

const reapInterval = 5 * time.Minute

// Daemon coordinates the pipeline runner and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	base     *slog.Logger
	logger   *slog.Logger
	runner   *pipeline.Runner
	registry *worker.Registry

	checkpointTarget string

	lockPath string
	lock     *flock.Flock

	mu        sync.RWMutex
	workflows map[string]*workflow.WorkFlow

	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
	api       *apiServer
	reapDone  chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LockFilePath string
	APIBind      string
	Checkpoint   string
	StartedAt    time.Time
	ActiveRuns   int
	TotalRuns    int
	Workers      int
	Workflows    int
}

// New constructs a daemon with initialized dependencies. checkpointTarget
// describes the checkpoint store for status output.
func New(cfg *config.Config, logger *slog.Logger, runner *pipeline.Runner, registry *worker.Registry, checkpointTarget string) (*Daemon, error) {
	if cfg == nil || logger == nil || runner == nil || registry == nil {
		return nil, errors.New("daemon requires config, logger, runner, and worker registry")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:              cfg,
		base:             logger,
		logger:           logging.NewComponentLogger(logger, "daemon"),
		runner:           runner,
		registry:         registry,
		checkpointTarget: checkpointTarget,
		lockPath:         lockPath,
		lock:             flock.New(lockPath),
		workflows:        map[string]*workflow.WorkFlow{},
	}, nil
}

// Start acquires the daemon lock, loads workflows, and starts the API server
// and the run reaper.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another archivist daemon instance is already running")
	}

	if _, err := d.ReloadWorkflows(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	srv, err := newAPIServer(d.cfg, d, d.base)
	if err != nil {
		d.abortStart()
		return err
	}
	if err := srv.start(d.ctx); err != nil {
		d.abortStart()
		return err
	}
	d.api = srv

	reaper := pipeline.NewReaper(d.runner, d.base, reapInterval, d.cfg.Paths.RunRetention())
	d.reapDone = make(chan struct{})
	go func() {
		defer close(d.reapDone)
		reaper.Run(d.ctx)
	}()

	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("archivist daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddress()),
		logging.Int("workers", len(d.registry.Snapshot())),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

func (d *Daemon) abortStart() {
	d.cancel()
	d.ctx = nil
	d.cancel = nil
	_ = d.lock.Unlock()
}

// Stop cancels in-flight runs, waits for them, and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.api = nil
	if d.reapDone != nil {
		<-d.reapDone
		d.reapDone = nil
	}
	d.runner.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("archivist daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// APIAddress returns the address the API listens on, or "" when stopped.
func (d *Daemon) APIAddress() string {
	if d.api == nil {
		return ""
	}
	return d.api.address()
}

// ReloadWorkflows re-reads the workflows directory and returns the number of
// definitions loaded.
func (d *Daemon) ReloadWorkflows() (int, error) {
	loaded, err := workflow.LoadDir(d.cfg.Paths.WorkflowsDir)
	if err != nil {
		return 0, fmt.Errorf("load workflows: %w", err)
	}
	d.mu.Lock()
	d.workflows = loaded
	d.mu.Unlock()
	return len(loaded), nil
}

// Workflow returns the loaded definition named id, reloading the directory
// once when it is unknown.
func (d *Daemon) Workflow(id string) (*workflow.WorkFlow, error) {
	d.mu.RLock()
	wf, ok := d.workflows[id]
	d.mu.RUnlock()
	if ok {
		return wf, nil
	}
	if _, err := d.ReloadWorkflows(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	wf, ok = d.workflows[id]
	d.mu.RUnlock()
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "workflow", fmt.Sprintf("workflow %q is not defined", id), nil)
	}
	return wf, nil
}

// WorkflowIDs lists loaded workflow ids.
func (d *Daemon) WorkflowIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.workflows))
	for id := range d.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StartRun starts workflowID against container in the background.
func (d *Daemon) StartRun(workflowID string, req pipeline.Request) (string, error) {
	if !d.running.Load() || d.ctx == nil {
		return "", errors.New("daemon is not running")
	}
	wf, err := d.Workflow(workflowID)
	if err != nil {
		return "", err
	}
	return d.runner.Start(d.ctx, wf, req)
}

// Runner exposes the pipeline runner.
func (d *Daemon) Runner() *pipeline.Runner {
	return d.runner
}

// Registry exposes the worker registry.
func (d *Daemon) Registry() *worker.Registry {
	return d.registry
}

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) Status {
	runs := d.runner.Runs()
	active := 0
	for _, rec := range runs {
		if rec.Running {
			active++
		}
	}
	d.mu.RLock()
	workflows := len(d.workflows)
	d.mu.RUnlock()
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		APIBind:      d.APIAddress(),
		Checkpoint:   d.checkpointTarget,
		StartedAt:    d.startedAt,
		ActiveRuns:   active,
		TotalRuns:    len(runs),
		Workers:      len(d.registry.Snapshot()),
		Workflows:    workflows,
	}
}
