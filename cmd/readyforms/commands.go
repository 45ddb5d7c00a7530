package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/readyforms/readyforms-api/internal/config"
	"github.com/readyforms/readyforms-api/internal/repository/sqlstore"
	"github.com/readyforms/readyforms-api/internal/server"
	"github.com/readyforms/readyforms-api/internal/service"
)

var (
	configPath   string
	promoteEmail string

	rootCmd = &cobra.Command{
		Use:   "readyforms",
		Short: "ReadyForms forms and survey API",
		Long: `ReadyForms serves the JSON API behind the forms web client:
templates, responses, comments, likes and statistics.

Configuration comes from an optional YAML file (--config or
READYFORMS_CONFIG) overridden by environment variables.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE:  runMigrate,
	}

	promoteCmd = &cobra.Command{
		Use:   "promote",
		Short: "Grant admin rights to an existing account",
		Long: `Promote makes the account with the given email an administrator.
Use it to bootstrap the first admin of a fresh installation.`,
		RunE: runPromote,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to a YAML config file (default: $READYFORMS_CONFIG)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(promoteCmd)
	promoteCmd.Flags().StringVar(&promoteEmail, "email", "", "Email of the account to promote")
	_ = promoteCmd.MarkFlagRequired("email")
}

// setup loads the configuration and builds the logger.
//
// Log levels (from least to most severe): Debug → Info → Warn → Error.
// LOG_LEVEL=debug enables everything; production usually runs at info.
func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	return srv.Start()
}

// openStore connects with a deadline and stops early on Ctrl+C.
func openStore(cmd *cobra.Command, cfg config.Config) (*sqlstore.DB, context.Context, context.CancelFunc, error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	cleanup := func() {
		cancel()
		stop()
	}

	dialect, err := sqlstore.ParseDialect(cfg.Database.Driver)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	// OpenDatabase runs the migrations.
	db, err := server.OpenDatabase(ctx, dialect, cfg.Database.DSN)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return db, ctx, cleanup, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	db, _, cleanup, err := openStore(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer db.Close()

	logger.Info("database is up to date",
		slog.String("driver", db.Dialect().String()),
	)
	return nil
}

func runPromote(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	db, ctx, cleanup, err := openStore(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer db.Close()

	user, err := service.NewUserService(db, nil, logger).Promote(ctx, promoteEmail)
	if err != nil {
		return err
	}
	logger.Info("user promoted to admin",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
		slog.Int64("version", user.Version),
	)
	return nil
}
