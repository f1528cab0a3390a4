package daemonrun

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/pipeline"
	"archivist/internal/status"
	"archivist/internal/telemetry"
	"archivist/internal/testsupport"
	"archivist/internal/worker"
	"archivist/internal/workflow"
)

func TestNewStackRunsWorkflowEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srv := worker.NewServer("w1", worker.NewCatalogue(worker.BuiltinHandlers(cfg.Paths.WorkspaceDir)...), logging.NewNop())
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	cfg.Workers.Groups = []config.WorkerGroup{{
		ID:          "G",
		Concurrency: 2,
		Members:     []config.WorkerMember{{ID: "G-1", Address: httpSrv.URL}},
	}}
	testsupport.WriteWorkspace(t, cfg.Paths.WorkspaceDir, "c1", map[string][]string{
		"ObjectGroup": {"a", "b"},
	})

	ctx := context.Background()
	provider, err := telemetry.New(ctx, "archivist-test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	stack, err := NewStack(ctx, cfg, logging.NewNop(), provider.MeterProvider())
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Close() })
	assert.Equal(t, cfg.CheckpointPath(), stack.CheckpointTarget)
	assert.Len(t, stack.Registry.Snapshot(), 1)

	wf := workflow.New("Ingest", "",
		workflow.NewStep("STP_OBJECTS", "G",
			workflow.Distribution{Kind: workflow.KindList, Element: "ObjectGroup"},
			workflow.Action{Handler: "LIST_CHECK", Behavior: workflow.BehaviorBlocking},
		),
	)
	result, err := stack.Runner.Run(ctx, wf, pipeline.Request{Container: "c1"})
	require.NoError(t, err)
	assert.Equal(t, status.OK, result.Status)

	rec, ok := stack.Runner.Lookup(result.RunID)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(RunLogDir(cfg), result.RunID+".log"), rec.LogPath)

	counters, err := provider.Counters(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, counters)
}

func TestNewStackRequiresConfig(t *testing.T) {
	_, err := NewStack(context.Background(), nil, nil, nil)
	assert.Error(t, err)
}

func TestRunLogDir(t *testing.T) {
	assert.Empty(t, RunLogDir(nil))
	cfg := config.Default()
	cfg.Paths.LogDir = "/var/log/archivist"
	assert.Equal(t, "/var/log/archivist/runs", RunLogDir(&cfg))
}
