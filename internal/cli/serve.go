package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/clustermon/internal/api"
	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
	"github.com/MikeSquared-Agency/clustermon/internal/store"
)

func (a *app) serveCommand() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status and run history API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("port") {
				a.cfg.API.Port = port
			}

			var runs api.RunLister
			if a.cfg.Database.URL != "" {
				db, err := store.New(ctx, a.cfg.Database.URL)
				if err != nil {
					return err
				}
				defer db.Close()
				runs = db
			} else {
				a.logger.Warn("DATABASE_URL not set, run history endpoints disabled")
			}

			a.logger.Info("clustermon serving", "port", a.cfg.API.Port)
			return api.NewServer(a.cfg.API.Port, runs, a.logger).Start(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}

func (a *app) migrateCommand() *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the run history schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Database.URL == "" {
				return fmt.Errorf("database url is required (DATABASE_URL or [database] url): %w", monitor.ErrInvalidArgument)
			}
			if status {
				return store.MigrationStatus(cmd.Context(), a.cfg.Database.URL)
			}
			return store.Migrate(cmd.Context(), a.cfg.Database.URL, a.logger)
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "report applied and pending migrations instead")
	return cmd
}
