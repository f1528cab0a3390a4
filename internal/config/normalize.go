package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCheckpoint(); err != nil {
		return err
	}
	c.normalizeWorkers()
	c.normalizeTelemetry()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if c.Paths.WorkflowsDir, err = expandPath(c.Paths.WorkflowsDir); err != nil {
		return fmt.Errorf("paths.workflows_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if value, ok := os.LookupEnv(apiTokenEnv); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIToken = strings.TrimSpace(value)
	}
	return nil
}

func (c *Config) normalizeCheckpoint() error {
	c.Checkpoint.Driver = strings.ToLower(strings.TrimSpace(c.Checkpoint.Driver))
	if c.Checkpoint.Driver == "" {
		c.Checkpoint.Driver = defaultCheckpointDriver
	}
	if value, ok := os.LookupEnv(checkpointDSNEnv); ok && strings.TrimSpace(value) != "" {
		c.Checkpoint.DSN = strings.TrimSpace(value)
	}
	var err error
	if c.Checkpoint.Path, err = expandPath(strings.TrimSpace(c.Checkpoint.Path)); err != nil {
		return fmt.Errorf("checkpoint.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkers() {
	for i := range c.Workers.Groups {
		group := &c.Workers.Groups[i]
		group.ID = strings.TrimSpace(group.ID)
		if group.Concurrency <= 0 {
			group.Concurrency = defaultGroupConcurrency
		}
		for j := range group.Members {
			member := &group.Members[j]
			member.ID = strings.TrimSpace(member.ID)
			member.Address = strings.TrimSpace(member.Address)
			if member.ID == "" {
				member.ID = fmt.Sprintf("%s-%d", group.ID, j+1)
			}
		}
	}
	c.Worker.ID = strings.TrimSpace(c.Worker.ID)
	c.Worker.Listen = strings.TrimSpace(c.Worker.Listen)
	if c.Worker.Listen == "" {
		c.Worker.Listen = defaultWorkerListen
	}
}

func (c *Config) normalizeTelemetry() {
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	if value, ok := os.LookupEnv(otlpEndpointEnv); ok && strings.TrimSpace(value) != "" {
		c.Telemetry.OTLPEndpoint = strings.TrimSpace(value)
	}
	if c.Telemetry.ExportIntervalSeconds <= 0 {
		c.Telemetry.ExportIntervalSeconds = defaultExportIntervalSecs
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if value, ok := os.LookupEnv(ntfyTopicEnv); ok && strings.TrimSpace(value) != "" {
		c.Notifications.NtfyTopic = strings.TrimSpace(value)
	}
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeoutSecs
	}
	c.Notifications.MinStatus = strings.ToUpper(strings.TrimSpace(c.Notifications.MinStatus))
	if c.Notifications.MinStatus == "" {
		c.Notifications.MinStatus = defaultNotifyMinStatus
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text", "pretty":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
	if len(c.Logging.ComponentOverrides) > 0 {
		normalized := make(map[string]string, len(c.Logging.ComponentOverrides))
		for component, lvl := range c.Logging.ComponentOverrides {
			key := strings.ToLower(strings.TrimSpace(component))
			if key == "" {
				continue
			}
			normalized[key] = strings.ToLower(strings.TrimSpace(lvl))
		}
		c.Logging.ComponentOverrides = normalized
	}
}
