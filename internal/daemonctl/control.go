// Package daemonctl starts and stops a detached archivistd process from the
// CLI, talking to it over the daemon HTTP API.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"archivist/internal/api"
	"archivist/internal/config"
)

const pollInterval = 200 * time.Millisecond

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

// StartState describes what EnsureStarted did.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// ErrDaemonNotRunning indicates the daemon API is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Controller drives one daemon instance identified by its configuration.
type Controller struct {
	cfg    *config.Config
	client *api.Client
}

// New creates a controller for the daemon configured by cfg.
func New(cfg *config.Config, timeout time.Duration) *Controller {
	return &Controller{cfg: cfg, client: api.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken, timeout)}
}

// Client returns the API client used by the controller.
func (c *Controller) Client() *api.Client { return c.client }

// Launch starts a detached daemon process. executablePath is either
// archivistd or the archivist CLI; the latter is given the "daemon run"
// subcommand.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}
	var args []string
	if !strings.HasSuffix(executablePath, "archivistd") {
		args = append(args, "daemon", "run")
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// ProcessInfo reports whether the daemon API answers and the daemon PID.
func (c *Controller) ProcessInfo(ctx context.Context) (bool, int, error) {
	status, err := c.client.Status(ctx)
	if err != nil {
		if api.IsUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return status.Running, status.PID, nil
}

// WaitForRunning polls the API until the daemon reports running.
func (c *Controller) WaitForRunning(ctx context.Context, timeout time.Duration) (*api.DaemonStatus, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		status, err := c.client.Status(ctx)
		if err == nil && status.Running {
			return status, nil
		}
		lastErr = err
		if !sleep(ctx, pollInterval) {
			return nil, ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless it already answers.
func (c *Controller) EnsureStarted(ctx context.Context, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if running, pid, err := c.ProcessInfo(ctx); err != nil {
		return StartResult{}, err
	} else if running {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	status, err := c.WaitForRunning(ctx, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: status.PID}, nil
}

// WaitForShutdown polls until the daemon API stops answering.
func (c *Controller) WaitForShutdown(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		running, _, err := c.ProcessInfo(ctx)
		if err == nil && !running {
			return nil
		}
		if !sleep(ctx, pollInterval) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}

// Stop sends SIGTERM to the daemon and escalates to SIGKILL when it is still
// answering after gracePeriod.
func (c *Controller) Stop(ctx context.Context, gracePeriod time.Duration) (StopResult, error) {
	running, pid, err := c.ProcessInfo(ctx)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrDaemonNotRunning
	}
	pid = ReadPID(c.cfg.PIDPath(), pid)
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("unable to determine daemon pid (pid file: %s)", c.cfg.PIDPath())
	}
	if err := signalProcess(pid, syscall.SIGTERM); err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid}
	if err := c.WaitForShutdown(ctx, gracePeriod); err == nil {
		return result, nil
	}

	if err := signalProcess(pid, syscall.SIGKILL); err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(c.cfg.PIDPath())
	_ = os.Remove(c.cfg.LockPath())
	result.ForcedKill = true
	return result, nil
}

// ReadPID returns the pid recorded in path, or fallback when the file is
// missing or unreadable.
func ReadPID(path string, fallback int) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func signalProcess(pid int, sig syscall.Signal) error {
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
