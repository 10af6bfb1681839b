package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cohortlab/cohort/internal/analytics"
	"github.com/cohortlab/cohort/internal/api"
	"github.com/cohortlab/cohort/internal/core/config"
	"github.com/cohortlab/cohort/internal/core/db"
	"github.com/cohortlab/cohort/internal/core/server"
	"github.com/cohortlab/cohort/internal/estimator"
	"github.com/cohortlab/cohort/internal/identity"
	"github.com/cohortlab/cohort/internal/registry"
)

const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the audience HTTP API service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "HTTP server host")
	serveCmd.Flags().Int("port", 8082, "HTTP server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	log, err := newLogger()
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		cfg.Server.Host = host
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Server.Port = port
	}

	if dbURL == "" {
		return fmt.Errorf("--db-url required")
	}
	database, err := db.Open(dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	// Refuse to serve against an unmigrated database
	var migrationID string
	checkQuery := `SELECT migration_id FROM migrations WHERE migration_id = '001_initial_schema.sql'`
	err = database.Get(&migrationID, database.Rebind(checkQuery))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("migration 001_initial_schema not applied - run 'cohortd migrate' first")
		}
		return fmt.Errorf("failed to check migrations: %w", err)
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	clientSecret, err := config.IdentityClientSecret()
	if err != nil {
		return fmt.Errorf("failed to load identity secret: %w", err)
	}

	store := registry.New(queries)

	credentials := identity.NewMemoryStore()
	idClient := identity.NewClient(
		cfg.Identity.BaseURL,
		cfg.Identity.Realm,
		cfg.Identity.ClientID,
		clientSecret,
		credentials,
		log,
	)

	analyticsClient := analytics.NewHTTPClient(
		cfg.Analytics.Endpoint,
		cfg.Analytics.RequestTimeout,
		cfg.Analytics.RetryMax,
		idClient,
		log,
	)

	sizer := estimator.New(analyticsClient, log)

	handler := api.NewHandler(store, sizer, log)

	httpServer, err := server.NewHTTPServer(&cfg.Server, handler)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info().
		Str("version", Version).
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("starting cohort audience service")

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		log.Info().Msg("shutting down gracefully")
		return httpServer.Shutdown(ctx)
	}
}
