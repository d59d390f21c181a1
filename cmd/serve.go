package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tastewell/harvester/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the harvester API and worker pool",
		Long: `Starts the HTTP API, the background worker pool and the Prometheus
metrics endpoint, then blocks until SIGINT or SIGTERM.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	svc, err := server.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer svc.Close()

	return svc.Run(cmd.Context())
}
