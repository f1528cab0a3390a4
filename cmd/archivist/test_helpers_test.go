package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/require"

	"archivist/internal/config"
	"archivist/internal/logging"
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

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

// setupCLITestEnv writes a config file whose single worker group is served
// by an in-process worker over httptest.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
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
		"ObjectGroup": {"a", "b", "c"},
	})
	testsupport.WriteWorkflow(t, cfg.Paths.WorkflowsDir, "ingest.yaml", ingestYAML)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}
