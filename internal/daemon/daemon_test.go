package daemon_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivist/internal/api"
	"archivist/internal/config"
	"archivist/internal/daemon"
	"archivist/internal/distributor"
	"archivist/internal/listing"
	"archivist/internal/logging"
	"archivist/internal/pipeline"
	"archivist/internal/progress"
	"archivist/internal/remote"
	"archivist/internal/services"
	"archivist/internal/testsupport"
	"archivist/internal/worker"
)

const ingestYAML = `
id: Ingest
comment: check every object
steps:
  - name: STP_OBJECTS
    worker_group: G
    distribution:
      kind: LIST
      element: ObjectGroup
    actions:
      - handler: LIST_CHECK
        behavior: BLOCKING
`

type harness struct {
	cfg    *config.Config
	daemon *daemon.Daemon
	client *api.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)

	workerSrv := worker.NewServer("w1", worker.NewCatalogue(worker.BuiltinHandlers(cfg.Paths.WorkspaceDir)...), logging.NewNop())
	httpSrv := httptest.NewServer(workerSrv.Handler())
	t.Cleanup(httpSrv.Close)
	cfg.Workers.Groups = []config.WorkerGroup{{
		ID:          "G",
		Concurrency: 2,
		Members:     []config.WorkerMember{{ID: "G-1", Address: httpSrv.URL}},
	}}

	testsupport.WriteWorkflow(t, cfg.Paths.WorkflowsDir, "ingest.yaml", ingestYAML)
	testsupport.WriteWorkspace(t, cfg.Paths.WorkspaceDir, "c1", map[string][]string{
		"ObjectGroup": {"a", "b", "c"},
	})

	registry, err := worker.NewRegistryFromConfig(cfg, logging.NewNop())
	require.NoError(t, err)
	tracker := progress.NewTracker()
	store := testsupport.OpenCheckpointStore(t, cfg)
	distOpts := append(distributor.ConfigOptions(cfg),
		distributor.WithTracker(tracker),
		distributor.WithCheckpointStore(store),
		distributor.WithProbePolicy(remote.PolicyFromConfig(cfg.Liveness)),
	)
	dist := distributor.New(registry, listing.NewWorkspace(cfg.Paths.WorkspaceDir), distOpts...)
	runner := pipeline.NewRunner(dist, tracker, logging.NewNop(),
		pipeline.WithRunLogDir(filepath.Join(cfg.Paths.LogDir, "runs"), slog.LevelInfo),
	)

	d, err := daemon.New(cfg, logging.NewNop(), runner, registry, "memory")
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Close() })

	return &harness{
		cfg:    cfg,
		daemon: d,
		client: api.NewClient(d.APIAddress(), cfg.Paths.APIToken, 5*time.Second),
	}
}

func waitForRun(t *testing.T, client *api.Client, runID string) *api.Run {
	t.Helper()
	var run *api.Run
	require.Eventually(t, func() bool {
		var err error
		run, err = client.Run(context.Background(), runID)
		return err == nil && !run.Running
	}, 5*time.Second, 10*time.Millisecond)
	return run
}

func TestDaemonStartStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	status := h.daemon.Status(ctx)
	assert.True(t, status.Running)
	assert.Equal(t, 1, status.Workers)
	assert.Equal(t, 1, status.Workflows)
	assert.Equal(t, h.cfg.LockPath(), status.LockFilePath)

	assert.Error(t, h.daemon.Start(ctx), "second start should fail")

	h.daemon.Stop()
	assert.False(t, h.daemon.Status(ctx).Running)
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	h := newHarness(t)

	registry := worker.NewRegistry(logging.NewNop())
	runner := pipeline.NewRunner(nil, progress.NewTracker(), nil)
	other, err := daemon.New(h.cfg, logging.NewNop(), runner, registry, "")
	require.NoError(t, err)
	err = other.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestDaemonAPIRunLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	status, err := h.client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, "memory", status.Checkpoint)

	runID, err := h.client.StartRun(ctx, api.StartRunRequest{Workflow: "Ingest", Container: "c1", Tenant: "t1"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	run := waitForRun(t, h.client, runID)
	assert.Equal(t, "OK", run.Status)
	assert.Equal(t, "Ingest", run.WorkflowID)
	require.Len(t, run.Steps, 1)
	step := run.Steps[0]
	assert.Equal(t, "STP_OBJECTS", step.Name)
	assert.Equal(t, "LIST:ObjectGroup", step.Distribution)
	assert.EqualValues(t, 3, step.ElementToProcess)
	assert.EqualValues(t, 3, step.ElementProcessed)
	assert.InDelta(t, 100.0, step.Percent, 0.001)

	runs, err := h.client.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].RunID)

	purged, err := h.client.PurgeRun(ctx, runID)
	require.NoError(t, err)
	assert.True(t, purged)

	_, err = h.client.Run(ctx, runID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDaemonAPIRunLog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	runID, err := h.client.StartRun(ctx, api.StartRunRequest{Workflow: "Ingest", Container: "c1"})
	require.NoError(t, err)
	waitForRun(t, h.client, runID)

	tail, err := h.client.RunLog(ctx, runID, api.RunLogQuery{Offset: -1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, tail.Lines, 1)
	assert.Contains(t, tail.Lines[0], "run_complete")
	assert.Positive(t, tail.Offset)

	full, err := h.client.RunLog(ctx, runID, api.RunLogQuery{Offset: 0})
	require.NoError(t, err)
	require.NotEmpty(t, full.Lines)
	assert.Contains(t, full.Lines[0], "run_start")
	assert.Equal(t, tail.Offset, full.Offset)

	idle, err := h.client.RunLog(ctx, runID, api.RunLogQuery{Offset: full.Offset, Wait: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Empty(t, idle.Lines)
	assert.Equal(t, full.Offset, idle.Offset)

	_, err = h.client.RunLog(ctx, "unknown", api.RunLogQuery{Offset: -1})
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDaemonAPIRejectsBadRuns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.StartRun(ctx, api.StartRunRequest{Workflow: "Missing", Container: "c1"})
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = h.client.StartRun(ctx, api.StartRunRequest{Workflow: "Ingest"})
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = h.client.StartRun(ctx, api.StartRunRequest{Container: "c1"})
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = h.client.PurgeRun(ctx, "unknown")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDaemonAPIWorkers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	workers, err := h.client.Workers(ctx, false)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "G-1", workers[0].ID)
	assert.False(t, workers[0].Probed)

	workers, err = h.client.Workers(ctx, true)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.True(t, workers[0].Probed)
	assert.True(t, workers[0].Alive)
}

func TestDaemonAPIRequiresToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "secret"
	registry := worker.NewRegistry(logging.NewNop())
	runner := pipeline.NewRunner(nil, progress.NewTracker(), nil)
	d, err := daemon.New(cfg, logging.NewNop(), runner, registry, "")
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Close() })

	_, err = api.NewClient(d.APIAddress(), "", time.Second).Status(context.Background())
	assert.ErrorIs(t, err, services.ErrConfiguration)

	status, err := api.NewClient(d.APIAddress(), "secret", time.Second).Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Running)

	resp, err := http.Get("http://" + d.APIAddress() + api.PathWorkers)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
