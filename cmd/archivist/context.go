package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"archivist/internal/api"
	"archivist/internal/config"
	"archivist/internal/daemonctl"
)

const apiTimeout = 10 * time.Second

// commandContext carries the global flags into subcommands. The
// configuration is loaded at most once, after flag parsing.
type commandContext struct {
	configFlag *string
	jsonFlag   *bool
	load       func() (*config.Config, error)
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	c := &commandContext{configFlag: configFlag, jsonFlag: jsonFlag}
	c.load = sync.OnceValues(func() (*config.Config, error) {
		cfg, _, _, err := config.Load(c.configFlagValue())
		if err != nil {
			return nil, err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		return cfg, nil
	})
	return c
}

func (c *commandContext) ensureConfig() (*config.Config, error) { return c.load() }

// configValue is for error paths that only want the config when it loaded.
func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.load()
	return cfg
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) jsonOutput() bool { return c.jsonFlag != nil && *c.jsonFlag }

func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken, apiTimeout), nil
}

func (c *commandContext) controller() (*daemonctl.Controller, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	return daemonctl.New(cfg, apiTimeout), nil
}

// wrapDaemonError turns an unreachable daemon into a hint to start it.
func wrapDaemonError(err error, cfg *config.Config) error {
	if err == nil || !api.IsUnavailable(err) {
		return err
	}
	bind := "(unknown)"
	if cfg != nil {
		bind = cfg.Paths.APIBind
	}
	return fmt.Errorf("connect to daemon at %s: not reachable; start it with `archivist daemon start`", bind)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
