package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"
	"github.com/vietguard/vietguard-api/internal/config"
	"github.com/vietguard/vietguard-api/internal/platform/logger"
)

// defaultMigrationsDir is where "migrate create" writes new files.
const defaultMigrationsDir = "internal/platform/postgres/migrations"

// newRootCommand returns the top-level CLI command.
func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "vietguard-api",
		Usage: "Application scan gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a config file; environment variables still override it",
				Sources: cli.EnvVars("VIETGUARD_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			newServeCommand(),
			newMigrateCommand(),
			newReconcileCommand(),
		},
	}
}

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP server and the reconciliation scheduler",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "memory",
				Usage: "Keep all state in memory instead of PostgreSQL",
			},
		},
		Action: runServe,
	}
}

func newMigrateCommand() *cli.Command {
	return &cli.Command{
		Name:      "migrate",
		Usage:     "Apply or inspect database migrations",
		ArgsUsage: "up|up-by-one|down|redo|reset|status|version|validate|create NAME",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Directory new migrations are created in",
				Value: defaultMigrationsDir,
			},
		},
		Action: runMigrate,
	}
}

func newReconcileCommand() *cli.Command {
	return &cli.Command{
		Name:   "reconcile",
		Usage:  "Run a single reconciliation pass and exit",
		Action: runReconcileOnce,
	}
}

// loadAppConfig loads configuration from the --config file when given,
// otherwise from defaults and the environment.
func loadAppConfig(cmd *cli.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := cmd.String("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// bootstrap loads configuration and installs the application logger.
func bootstrap(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := loadAppConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	log := logger.Setup(logger.Config{Level: cfg.Server.LogLevel})
	log.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"reconcile_enabled", cfg.Reconcile.Enabled)
	return cfg, log, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := bootstrap(cmd)
	if err != nil {
		return err
	}

	deps := dependencies{}
	if !cmd.Bool("memory") {
		db, err := setupAppDatabase(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		deps.db = db
	} else {
		log.Warn("Using in-memory stores; state is lost on restart")
	}

	app, err := newApplication(cfg, log, deps)
	if err != nil {
		if deps.db != nil {
			_ = deps.db.Close()
		}
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

func runMigrate(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := bootstrap(cmd)
	if err != nil {
		return err
	}

	command := cmd.Args().First()
	if command == "" {
		return fmt.Errorf("no migration command specified; use one of %s", cmd.ArgsUsage)
	}
	args := cmd.Args().Tail()

	if command == "create" {
		if len(args) == 0 {
			return fmt.Errorf("migrate create requires a migration name")
		}
		return createMigration(cmd.String("dir"), args[0], log)
	}

	db, err := setupAppDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database connection", "error", err)
		}
	}()

	if command == "validate" {
		return validateAppliedMigrations(ctx, db, log)
	}
	return runMigrations(ctx, db, command, log, args...)
}

func runReconcileOnce(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := bootstrap(cmd)
	if err != nil {
		return err
	}

	db, err := setupAppDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}

	app, err := newApplication(cfg, log, dependencies{db: db})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	summary, err := app.reconciler.Tick(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	log.Info("Reconciliation pass finished",
		"polled", summary.Polled,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"errors", summary.Errors,
		"notified", summary.Notified)
	return nil
}
