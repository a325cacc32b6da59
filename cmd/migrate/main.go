// Package main is the schema migration tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"backoffice/internal/config"
	"backoffice/internal/infrastructure/storage/postgres"
	"backoffice/pkg/logger"
)

func main() {
	var (
		databaseURL string
		logLevel    string
	)
	flag.StringVar(&databaseURL, "database-url", "", "Database URL (overrides BACKOFFICE_DATABASE_URL)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(logger.Config{Level: logLevel, Development: true})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	if databaseURL != "" {
		_ = os.Setenv(config.EnvPrefix+"_DATABASE_URL", databaseURL)
	}
	cfg, err := config.LoadDatabase()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	ctx := logger.WithLogger(context.Background(), log)
	m, err := postgres.NewMigrator(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalw("failed to create migrator", "error", err)
	}

	runErr := run(m, command, args[1:])
	if err := m.Close(); err != nil {
		log.Warnw("failed to close migrator", "error", err)
	}
	if runErr != nil {
		log.Errorw("migration command failed", "command", command, "error", runErr)
		os.Exit(1)
	}
}

func run(m *postgres.Migrator, command string, args []string) error {
	switch command {
	case "up":
		return m.Up()

	case "down":
		return m.Down()

	case "steps":
		if len(args) < 1 {
			return fmt.Errorf("step count required: migrate steps <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return m.Steps(n)

	case "force":
		if len(args) < 1 {
			return fmt.Errorf("version required: migrate force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(version)

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if version == 0 {
			fmt.Println("no migrations applied")
			return nil
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		return nil

	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func printUsage() {
	fmt.Println(`Backoffice database migration tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                Apply all pending migrations
  down              Roll back all migrations
  steps <n>         Apply n migrations (positive=up, negative=down)
  force <version>   Force set migration version after a failed run
  version           Show current migration version

Flags:
  -database-url     Database URL (default: BACKOFFICE_DATABASE_URL)
  -log-level        Log level: debug, info, warn, error (default: info)`)
}
