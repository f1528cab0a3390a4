package preflight_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/preflight"
	"archivist/internal/testsupport"
	"archivist/internal/worker"
)

const objectsYAML = `
id: Objects
steps:
  - name: STP_OBJECTS
    worker_group: G
    distribution:
      kind: LIST
      element: ObjectGroup
    actions:
      - handler: NOOP
`

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, preflight.CheckDirectoryAccess("test", dir).Passed)

	missing := preflight.CheckDirectoryAccess("test", filepath.Join(dir, "nope"))
	assert.False(t, missing.Passed)
	assert.Contains(t, missing.Detail, "does not exist")

	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	notDir := preflight.CheckDirectoryAccess("test", file)
	assert.False(t, notDir.Passed)
	assert.Contains(t, notDir.Detail, "is not a directory")

	assert.False(t, preflight.CheckDirectoryAccess("test", " ").Passed)
}

func TestCheckWorkflowsReportsMissingGroups(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	empty := preflight.CheckWorkflows(cfg)
	assert.True(t, empty.Passed)
	assert.Contains(t, empty.Detail, "no definitions")

	testsupport.WriteWorkflow(t, cfg.Paths.WorkflowsDir, "objects.yaml", objectsYAML)
	result := preflight.CheckWorkflows(cfg)
	assert.False(t, result.Passed)
	assert.Equal(t, "worker groups not configured: G", result.Detail)

	cfg.Workers.Groups = []config.WorkerGroup{{ID: "G", Concurrency: 1}}
	result = preflight.CheckWorkflows(cfg)
	assert.True(t, result.Passed)
	assert.Equal(t, "1 definition(s) valid", result.Detail)
}

func TestCheckWorkflowsRejectsInvalidDefinition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteWorkflow(t, cfg.Paths.WorkflowsDir, "broken.yaml", "id: Broken\nsteps: []\n")
	assert.False(t, preflight.CheckWorkflows(cfg).Passed)
}

func TestCheckCheckpointStore(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCheckpointDriver(config.DriverMemory))
	result := preflight.CheckCheckpointStore(context.Background(), cfg)
	assert.True(t, result.Passed)
	assert.Equal(t, "memory", result.Detail)
}

func TestCheckWorkers(t *testing.T) {
	srv := httptest.NewServer(worker.NewServer("w1", worker.NewCatalogue(), logging.NewNop()).Handler())
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Workers.Groups = []config.WorkerGroup{{
		ID:          "G",
		Concurrency: 1,
		Members: []config.WorkerMember{
			{ID: "G-1", Address: srv.URL},
			{ID: "G-2", Address: "http://127.0.0.1:1"},
		},
	}}
	registry, err := worker.NewRegistryFromConfig(cfg, logging.NewNop())
	require.NoError(t, err)

	results := preflight.CheckWorkers(context.Background(), registry)
	require.Len(t, results, 2)
	byName := map[string]preflight.Result{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.True(t, byName["Worker G/G-1"].Passed)
	assert.False(t, byName["Worker G/G-2"].Passed)

	empty := preflight.CheckWorkers(context.Background(), worker.NewRegistry(logging.NewNop()))
	require.Len(t, empty, 1)
	assert.False(t, empty[0].Passed)
}

func TestRunAllBuildsRegistryFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCheckpointDriver(config.DriverMemory))
	require.NoError(t, cfg.EnsureDirectories())

	results := preflight.RunAll(context.Background(), cfg, nil)
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{
		"State directory", "Log directory", "Workspace directory",
		"Workflows", "Checkpoint store", "Workers",
	}, names)

	failed := preflight.Failed(results)
	require.Len(t, failed, 1)
	assert.Equal(t, "Workers", failed[0].Name)

	assert.Nil(t, preflight.RunAll(context.Background(), nil, nil))
}
