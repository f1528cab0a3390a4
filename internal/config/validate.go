package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDistributor(); err != nil {
		return err
	}
	if err := c.validateLiveness(); err != nil {
		return err
	}
	if err := c.validateCheckpoint(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDistributor() error {
	if c.Paths.RunRetentionHours < 0 {
		return errors.New("paths.run_retention_hours must be zero or positive")
	}
	if c.Distributor.BatchSize <= 0 {
		return errors.New("distributor.batch_size must be positive")
	}
	if c.Distributor.CheckpointThreshold < 0 {
		return errors.New("distributor.checkpoint_threshold must be zero or positive")
	}
	if c.Distributor.ProgressBucket < 0 || c.Distributor.ProgressBucket > 100 {
		return errors.New("distributor.progress_bucket must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateLiveness() error {
	if c.Liveness.Retries <= 0 {
		return errors.New("liveness.retries must be positive")
	}
	if c.Liveness.IntervalMS <= 0 {
		return errors.New("liveness.interval_ms must be positive")
	}
	if c.Liveness.RequestTimeoutSeconds < 0 {
		return errors.New("liveness.request_timeout_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateCheckpoint() error {
	switch c.Checkpoint.Driver {
	case DriverSQLite, DriverMemory:
		return nil
	case DriverPostgres:
		if strings.TrimSpace(c.Checkpoint.DSN) == "" {
			return fmt.Errorf("checkpoint.dsn must be set when checkpoint.driver is postgres (or export %s)", checkpointDSNEnv)
		}
		return nil
	default:
		return fmt.Errorf("checkpoint.driver: unsupported value %q", c.Checkpoint.Driver)
	}
}

func (c *Config) validateWorkers() error {
	groups := make(map[string]struct{}, len(c.Workers.Groups))
	for i, group := range c.Workers.Groups {
		if group.ID == "" {
			return fmt.Errorf("workers.groups[%d].id must be set", i)
		}
		if _, dup := groups[group.ID]; dup {
			return fmt.Errorf("workers.groups[%d].id %q is duplicated", i, group.ID)
		}
		groups[group.ID] = struct{}{}

		members := make(map[string]struct{}, len(group.Members))
		for j, member := range group.Members {
			if member.Address == "" {
				return fmt.Errorf("workers.groups[%d].members[%d].address must be set", i, j)
			}
			if _, dup := members[member.ID]; dup {
				return fmt.Errorf("workers.groups[%d].members[%d].id %q is duplicated", i, j, member.ID)
			}
			members[member.ID] = struct{}{}
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	switch c.Notifications.MinStatus {
	case "OK", "WARNING", "KO", "FATAL":
	default:
		return fmt.Errorf("notifications.min_status: unsupported value %q", c.Notifications.MinStatus)
	}
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return errors.New("notifications.ntfy_topic must be an http(s) URL")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	for component, level := range c.Logging.ComponentOverrides {
		switch level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.component_overrides.%s: unsupported level %q", component, level)
		}
	}
	return nil
}
