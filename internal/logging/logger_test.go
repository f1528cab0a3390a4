package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon started")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "archivist.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "daemon started") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerLayout(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "distributor").Info("batch dispatched",
		logging.String(logging.FieldRunID, "r1"),
		logging.String(logging.FieldStep, "Extract"),
		logging.Int("batch_size", 4),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{"INFO", "[distributor]", "run=r1", "step=Extract |", "batch dispatched", "batch_size=4"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("probe")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected caller information for debug logs, got %q", content)
	}
}

func TestNewJSONLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String(logging.FieldItem, "a.pdf"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"level":"info"`) || !strings.Contains(string(content), `"item":"a.pdf"`) {
		t.Fatalf("unexpected json output: %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if got := logging.ParseLevel("loud"); got != slog.LevelInfo {
		t.Fatalf("ParseLevel(loud) = %v", got)
	}
	if got := logging.ParseLevel("WARNING"); got != slog.LevelWarn {
		t.Fatalf("ParseLevel(WARNING) = %v", got)
	}
}

func TestComponentOverrides(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "override.log")
	logger, err := logging.New(logging.Options{
		Format:          "console",
		Level:           "info",
		OutputPaths:     []string{logPath},
		ComponentLevels: map[string]string{"distributor": "debug", "registry": "error"},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("root debug hidden")
	logging.NewComponentLogger(logger, "distributor").Debug("distributor debug shown")
	logging.NewComponentLogger(logger, "registry").Warn("registry warn hidden")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(content)
	if strings.Contains(out, "root debug hidden") || strings.Contains(out, "registry warn hidden") {
		t.Fatalf("override leaked records: %q", out)
	}
	if !strings.Contains(out, "distributor debug shown") {
		t.Fatalf("override suppressed component debug: %q", out)
	}
}

func TestWithLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	quiet := logging.WithLevelOverride(base, slog.LevelWarn)
	quiet.Info("hidden")
	quiet.Warn("visible")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "visible") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := services.WithSession(context.Background(), "run-7", "tenant-a")
	ctx = services.WithStep(ctx, "Extract")
	ctx = services.WithObject(ctx, "a.pdf")
	ctx = services.WithRequestID(ctx, "req-1")

	logging.WithContext(ctx, base).Info("unit resolved")

	out := buf.String()
	for _, want := range []string{`"run_id":"run-7"`, `"tenant_id":"tenant-a"`, `"step":"Extract"`, `"item":"a.pdf"`, `"correlation_id":"req-1"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "worker removed", "worker_unreachable",
		logging.String(logging.FieldImpact, "group capacity reduced"))

	out := buf.String()
	for _, want := range []string{`"event_type":"worker_unreachable"`, `"error_hint":"check logs for details"`, `"impact":"group capacity reduced"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
	logging.WarnWithContext(nil, "ignored", "noop")
}

func TestOpenRunLog(t *testing.T) {
	dir := t.TempDir()
	runLog, err := logging.OpenRunLog(dir, "run-1", slog.LevelInfo)
	if err != nil {
		t.Fatalf("OpenRunLog returned error: %v", err)
	}
	var base bytes.Buffer
	logger := logging.TeeLogger(slog.New(slog.NewTextHandler(&base, nil)), runLog.Handler)
	logger.Info("step started", logging.String(logging.FieldStep, "Extract"))
	if err := runLog.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "run-1.log"))
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(content), `"step":"Extract"`) {
		t.Fatalf("unexpected run log content: %q", content)
	}
}
