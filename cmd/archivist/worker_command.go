package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"archivist/internal/logging"
	"archivist/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Worker process commands",
	}
	workerCmd.AddCommand(newWorkerServeCommand(ctx))
	return workerCmd
}

func newWorkerServeCommand(ctx *commandContext) *cobra.Command {
	var listen string
	var id string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve work units over HTTP with the built-in handlers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			bind := firstNonEmpty(listen, cfg.Worker.Listen)
			workerID := firstNonEmpty(id, cfg.Worker.ID)
			if workerID == "" {
				host, _ := os.Hostname()
				workerID = firstNonEmpty(host, "worker") + "-" + uuid.NewString()[:8]
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			catalogue := worker.NewCatalogue(worker.BuiltinHandlers(cfg.Paths.WorkspaceDir)...)
			srv := worker.NewServer(workerID, catalogue, logger)

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			logger.Info("worker starting",
				logging.String(logging.FieldEventType, "worker_start"),
				logging.String("worker_id", workerID),
				logging.String("listen", bind),
			)
			return srv.Run(signalCtx, bind)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides worker.listen)")
	cmd.Flags().StringVar(&id, "id", "", "Worker id (overrides worker.id)")
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
