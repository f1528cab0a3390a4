package daemonctl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivist/internal/daemon"
	"archivist/internal/daemonctl"
	"archivist/internal/logging"
	"archivist/internal/pipeline"
	"archivist/internal/progress"
	"archivist/internal/testsupport"
	"archivist/internal/worker"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archivistd.pid")

	assert.Equal(t, 7, daemonctl.ReadPID(path, 7))

	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))
	assert.Equal(t, 4242, daemonctl.ReadPID(path, 7))

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	assert.Equal(t, 7, daemonctl.ReadPID(path, 7))
}

func TestProcessInfoWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:1"
	ctrl := daemonctl.New(cfg, time.Second)

	running, pid, err := ctrl.ProcessInfo(context.Background())
	require.NoError(t, err)
	assert.False(t, running)
	assert.Zero(t, pid)

	_, err = ctrl.Stop(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, daemonctl.ErrDaemonNotRunning)
}

func TestEnsureStartedSeesRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := pipeline.NewRunner(nil, progress.NewTracker(), nil)
	d, err := daemon.New(cfg, logging.NewNop(), runner, worker.NewRegistry(logging.NewNop()), "memory")
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Close() })
	cfg.Paths.APIBind = d.APIAddress()

	ctrl := daemonctl.New(cfg, time.Second)
	result, err := ctrl.EnsureStarted(context.Background(), "/nonexistent/archivistd", daemonctl.LaunchOptions{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, daemonctl.StartStateAlreadyRunning, result.State)
	assert.Equal(t, os.Getpid(), result.PID)
}

func TestLaunchRequiresExecutable(t *testing.T) {
	assert.Error(t, daemonctl.Launch("  ", daemonctl.LaunchOptions{}))
}
