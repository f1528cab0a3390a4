package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"archivist/internal/config"
	"archivist/internal/daemon"
	"archivist/internal/logging"
	"archivist/internal/preflight"
	"archivist/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides the configured level when set.
	LogLevel string
}

// Run starts the archivist daemon and blocks until cmdCtx is cancelled or
// the process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	provider, err := telemetry.New(signalCtx, "archivistd", cfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	provider.Install()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logging.WarnWithContext(logger, "telemetry shutdown failed", "telemetry_shutdown_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the OTLP collector at "+cfg.Telemetry.OTLPEndpoint),
			)
		}
	}()

	stack, err := NewStack(signalCtx, cfg, logger, provider.MeterProvider())
	if err != nil {
		logger.Error("build orchestration stack", logging.Error(err))
		return err
	}
	defer stack.Close()

	logStartupSnapshot(logger, cfg, stack, provider.Exporting())
	logPreflight(signalCtx, logger, cfg, stack)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, err := daemon.New(cfg, logger, stack.Runner, stack.Registry, stack.CheckpointTarget)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("archivist daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	d.Stop()
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logStartupSnapshot(logger *slog.Logger, cfg *config.Config, stack *Stack, exporting bool) {
	logger.Info("orchestration snapshot",
		logging.String(logging.FieldEventType, "startup_snapshot"),
		logging.String("checkpoint", stack.CheckpointTarget),
		logging.Int("worker_groups", len(cfg.Workers.Groups)),
		logging.Int("workers", len(stack.Registry.Snapshot())),
		logging.Int("batch_size", cfg.Distributor.BatchSize),
		logging.String("workspace_dir", cfg.Paths.WorkspaceDir),
		logging.String("workflows_dir", cfg.Paths.WorkflowsDir),
		logging.Bool("metrics_export", exporting),
		logging.Bool("api_token_set", cfg.Paths.APIToken != ""),
		logging.Bool("notifications", cfg.Notifications.NtfyTopic != ""),
	)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, stack *Stack) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg, stack.Registry)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run archivist doctor for the full report"),
		)
	}
}
