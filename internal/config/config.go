package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir     string `toml:"state_dir"`
	LogDir       string `toml:"log_dir"`
	WorkspaceDir string `toml:"workspace_dir"`
	WorkflowsDir string `toml:"workflows_dir"`
	APIBind      string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token on daemon API calls.
	APIToken string `toml:"api_token"`
	// RunRetentionHours keeps finished runs visible through the daemon API.
	// Zero keeps them until the daemon exits.
	RunRetentionHours int `toml:"run_retention_hours"`
}

// RunRetention returns how long finished runs are kept.
func (p Paths) RunRetention() time.Duration {
	return time.Duration(p.RunRetentionHours) * time.Hour
}

// Distributor contains batching and checkpoint settings for step distribution.
type Distributor struct {
	BatchSize int `toml:"batch_size"`
	// CheckpointThreshold is the item count above which checkpoints are
	// written. Zero means "same as batch_size".
	CheckpointThreshold int     `toml:"checkpoint_threshold"`
	ProgressBucket      float64 `toml:"progress_bucket"`
}

// Threshold returns the effective checkpoint threshold.
func (d Distributor) Threshold() int {
	if d.CheckpointThreshold <= 0 {
		return d.BatchSize
	}
	return d.CheckpointThreshold
}

// Liveness contains the worker probe policy applied after a failed submit.
type Liveness struct {
	Retries               int `toml:"retries"`
	IntervalMS            int `toml:"interval_ms"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// Interval returns the wait between two probes.
func (l Liveness) Interval() time.Duration {
	return time.Duration(l.IntervalMS) * time.Millisecond
}

// RequestTimeout bounds a single HTTP call to a worker. Zero disables it.
func (l Liveness) RequestTimeout() time.Duration {
	return time.Duration(l.RequestTimeoutSeconds) * time.Second
}

// Checkpoint selects the DistributorIndex store.
type Checkpoint struct {
	Driver string `toml:"driver"` // sqlite, postgres, or memory
	Path   string `toml:"path"`   // sqlite database file
	DSN    string `toml:"dsn"`    // postgres connection string
}

// WorkerMember is one remote worker process.
type WorkerMember struct {
	ID      string `toml:"id"`
	Address string `toml:"address"`
}

// WorkerGroup is a named pool of worker processes.
type WorkerGroup struct {
	ID          string         `toml:"id"`
	Concurrency int            `toml:"concurrency"`
	Members     []WorkerMember `toml:"members"`
}

// Workers lists the worker groups known to the orchestrator.
type Workers struct {
	Groups []WorkerGroup `toml:"groups"`
}

// Worker configures `archivist worker serve`.
type Worker struct {
	ID     string `toml:"id"`
	Listen string `toml:"listen"`
}

// Telemetry configures metric export. An empty endpoint keeps metrics local.
type Telemetry struct {
	OTLPEndpoint          string `toml:"otlp_endpoint"`
	Insecure              bool   `toml:"insecure"`
	ExportIntervalSeconds int    `toml:"export_interval_seconds"`
}

// ExportInterval returns the period between two metric exports.
func (t Telemetry) ExportInterval() time.Duration {
	return time.Duration(t.ExportIntervalSeconds) * time.Second
}

// Notifications configures ntfy alerts for finished runs.
type Notifications struct {
	// NtfyTopic is the full topic URL, for example https://ntfy.sh/archivist.
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	// MinStatus is the least severe run status that is notified.
	MinStatus string `toml:"min_status"`
}

// RequestTimeout bounds one notification request.
func (n Notifications) RequestTimeout() time.Duration {
	return time.Duration(n.RequestTimeoutSeconds) * time.Second
}

// Logging contains configuration for log output.
type Logging struct {
	Format             string            `toml:"format"`
	Level              string            `toml:"level"`
	ComponentOverrides map[string]string `toml:"component_overrides"`
}

// Config encapsulates all configuration values for Archivist.
//
// Configuration sections by subsystem:
//   - Paths: state, logs, workspace, workflow definitions, API bind address
//   - Distributor: batch size, checkpoint threshold, progress logging
//   - Liveness: probe retries and interval for unreachable workers
//   - Checkpoint: DistributorIndex store driver and location
//   - Workers: worker groups and their members
//   - Worker: settings for a worker process
//   - Telemetry: OTLP metric export
//   - Notifications: ntfy alerts for finished runs
//   - Logging: log format, level, and per-component overrides
type Config struct {
	Paths       Paths       `toml:"paths"`
	Distributor Distributor `toml:"distributor"`
	Liveness    Liveness    `toml:"liveness"`
	Checkpoint  Checkpoint  `toml:"checkpoint"`
	Workers     Workers     `toml:"workers"`
	Worker      Worker      `toml:"worker"`
	Telemetry   Telemetry   `toml:"telemetry"`
	// Notifications is set apart because its name is long.
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("archivist.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state, log, and workspace directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.WorkspaceDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CheckpointPath returns the sqlite checkpoint database location.
func (c *Config) CheckpointPath() string {
	if strings.TrimSpace(c.Checkpoint.Path) != "" {
		return c.Checkpoint.Path
	}
	return filepath.Join(c.Paths.StateDir, "checkpoints.db")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "archivistd.lock")
}

// PIDPath returns the file archivistd writes its process id to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "archivistd.pid")
}

// LogPath returns the main log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "archivist.log")
}

// WorkerGroup returns the configured group with the given id.
func (c *Config) WorkerGroup(id string) (WorkerGroup, bool) {
	for _, g := range c.Workers.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return WorkerGroup{}, false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
