package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"archivist/internal/daemonctl"
	"archivist/internal/daemonrun"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 10 * time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Control the archivistd daemon",
	}
	daemonCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := ctx.controller()
			if err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := ctrl.EnsureStarted(cmd.Context(), exe,
				daemonctl.LaunchOptions{ConfigPath: ctx.configFlagValue(), LogLevel: logLevel},
				startWaitTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon, waiting for running workflows to finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := ctx.controller()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := ctrl.Stop(cmd.Context(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not stop in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := ctx.controller()
			if err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := ctrl.Stop(cmd.Context(), stopGracePeriod); err == nil {
				fmt.Fprintln(out, "Daemon stopped")
			} else if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				return err
			}
			result, err := ctrl.EnsureStarted(cmd.Context(), exe,
				daemonctl.LaunchOptions{ConfigPath: ctx.configFlagValue(), LogLevel: logLevel},
				startWaitTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Daemon restarted (pid %d)\n", result.PID)
			return nil
		},
	}

	daemonCmd.AddCommand(runCmd, startCmd, stopCmd, restartCmd)
	return daemonCmd
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}
