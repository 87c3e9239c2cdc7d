// Package main is the entry point for the scry report scheduler. It serves
// the HTTP API, runs database migrations and issues development tokens.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/phrazzld/scry-reports/internal/config"
	"github.com/phrazzld/scry-reports/internal/platform/logger"
	"github.com/phrazzld/scry-reports/internal/platform/postgres"
	"github.com/phrazzld/scry-reports/internal/service/auth"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "scry-reports",
		Short:         "Asynchronous multi-stage report scheduler",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(&configFile),
		newMigrateCmd(&configFile),
		newTokenCmd(&configFile),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and report workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*configFile, cmd)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := newApplication(ctx, cfg, log)
			if err != nil {
				log.Error("failed to initialize application", "error", err)
				return err
			}
			return app.Run(ctx)
		},
	}
	cmd.Flags().Int("port", 0, "HTTP port")
	return cmd
}

func newMigrateCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|reset|status|version]",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "reset", "status", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			cfg, log, err := loadConfig(*configFile, cmd)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is required to run migrations")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			db, err := postgres.Open(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := db.Close(); cerr != nil {
					log.Error("failed to close database connection", "error", cerr)
				}
			}()

			log.Info("running migrations", "command", command)
			return postgres.Migrate(ctx, db, command, log)
		},
	}
}

func newTokenCmd(configFile *string) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*configFile, cmd)
			if err != nil {
				return err
			}
			tokens, err := auth.NewTokenService(cfg.Auth)
			if err != nil {
				return err
			}

			ctx := logger.WithContext(cmd.Context(), log)
			token, err := tokens.GenerateToken(ctx, owner)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner ID written to the token subject")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}

// loadConfig reads configuration with the command's flags bound as
// overrides and builds the logger it asks for.
func loadConfig(configFile string, cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)).
			Error("failed to load configuration", "error", err)
		return nil, nil, err
	}

	log, err := logger.Setup(cfg.Server.LogLevel, cfg.Server.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return cfg, log, nil
}
