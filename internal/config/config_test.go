package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"archivist/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "archivist", "state")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7560" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Distributor.BatchSize != 16 {
		t.Fatalf("unexpected batch size: %d", cfg.Distributor.BatchSize)
	}
	if cfg.Distributor.Threshold() != cfg.Distributor.BatchSize {
		t.Fatalf("expected threshold to default to batch size, got %d", cfg.Distributor.Threshold())
	}
	if cfg.Liveness.Retries != 3 || cfg.Liveness.Interval() != time.Second {
		t.Fatalf("unexpected liveness policy: %+v", cfg.Liveness)
	}
	if cfg.Checkpoint.Driver != config.DriverSQLite {
		t.Fatalf("unexpected checkpoint driver: %q", cfg.Checkpoint.Driver)
	}
	if got := cfg.CheckpointPath(); got != filepath.Join(wantState, "checkpoints.db") {
		t.Fatalf("unexpected checkpoint path: %q", got)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := struct {
		Paths struct {
			WorkspaceDir string `toml:"workspace_dir"`
		} `toml:"paths"`
		Distributor struct {
			BatchSize           int `toml:"batch_size"`
			CheckpointThreshold int `toml:"checkpoint_threshold"`
		} `toml:"distributor"`
		Workers struct {
			Groups []config.WorkerGroup `toml:"groups"`
		} `toml:"workers"`
		Logging struct {
			Format             string            `toml:"format"`
			ComponentOverrides map[string]string `toml:"component_overrides"`
		} `toml:"logging"`
	}{}
	payload.Paths.WorkspaceDir = "~/ws"
	payload.Distributor.BatchSize = 4
	payload.Distributor.CheckpointThreshold = 10
	payload.Workers.Groups = []config.WorkerGroup{{
		ID:      "Extract",
		Members: []config.WorkerMember{{Address: "10.0.0.5:7561"}},
	}}
	payload.Logging.Format = "JSON"
	payload.Logging.ComponentOverrides = map[string]string{" Distributor ": "DEBUG"}

	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.WorkspaceDir != filepath.Join(tempHome, "ws") {
		t.Fatalf("unexpected workspace dir: %q", cfg.Paths.WorkspaceDir)
	}
	if cfg.Distributor.Threshold() != 10 {
		t.Fatalf("unexpected threshold: %d", cfg.Distributor.Threshold())
	}
	group, ok := cfg.WorkerGroup("Extract")
	if !ok {
		t.Fatal("expected Extract group")
	}
	if group.Concurrency != 8 {
		t.Fatalf("expected default concurrency, got %d", group.Concurrency)
	}
	if group.Members[0].ID != "Extract-1" {
		t.Fatalf("expected generated member id, got %q", group.Members[0].ID)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
	if cfg.Logging.ComponentOverrides["distributor"] != "debug" {
		t.Fatalf("unexpected overrides: %v", cfg.Logging.ComponentOverrides)
	}
}

func TestLoadHonoursCheckpointDSNEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ARCHIVIST_CHECKPOINT_DSN", "postgres://archivist@db/archivist")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[checkpoint]\ndriver = \"postgres\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Checkpoint.DSN != "postgres://archivist@db/archivist" {
		t.Fatalf("unexpected dsn: %q", cfg.Checkpoint.DSN)
	}
}

func TestLoadHonoursAPITokenEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ARCHIVIST_API_TOKEN", " secret ")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\napi_token = \"from-file\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIToken != "secret" {
		t.Fatalf("unexpected api token: %q", cfg.Paths.APIToken)
	}
	if cfg.Paths.RunRetention() != 24*time.Hour {
		t.Fatalf("unexpected retention: %v", cfg.Paths.RunRetention())
	}
}

func TestCreateSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "[[workers.groups]]") {
		t.Fatalf("sample config missing worker group section: %s", content)
	}

	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample config should be valid TOML: %v", err)
	}
	if len(parsed.Workers.Groups) != 1 || parsed.Workers.Groups[0].ID != "DefaultWorker" {
		t.Fatalf("unexpected sample groups: %+v", parsed.Workers.Groups)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"batch size", func(c *config.Config) { c.Distributor.BatchSize = 0 }, "distributor.batch_size must be positive"},
		{"retries", func(c *config.Config) { c.Liveness.Retries = 0 }, "liveness.retries must be positive"},
		{"driver", func(c *config.Config) { c.Checkpoint.Driver = "redis" }, "checkpoint.driver"},
		{"postgres dsn", func(c *config.Config) { c.Checkpoint.Driver = config.DriverPostgres }, "checkpoint.dsn must be set"},
		{"group id", func(c *config.Config) {
			c.Workers.Groups = []config.WorkerGroup{{ID: "A", Concurrency: 1}, {Concurrency: 1}}
		}, "workers.groups[1].id must be set"},
		{"member address", func(c *config.Config) {
			c.Workers.Groups = []config.WorkerGroup{{ID: "A", Concurrency: 1, Members: []config.WorkerMember{{ID: "a"}}}}
		}, "workers.groups[0].members[0].address must be set"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"retention", func(c *config.Config) { c.Paths.RunRetentionHours = -1 }, "paths.run_retention_hours"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.WorkspaceDir = filepath.Join(base, "ws")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.WorkspaceDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}
