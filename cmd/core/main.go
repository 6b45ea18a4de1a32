// Package main runs the walk core headless: it applies remote migrations,
// drains the pending queue on start and keeps syncing on connectivity
// changes and the configured schedule until it is stopped.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kimhsiao/pawtrail/core/internal/bridge"
	"github.com/kimhsiao/pawtrail/core/internal/config"
	"github.com/kimhsiao/pawtrail/core/internal/errors"
	"github.com/kimhsiao/pawtrail/core/internal/logging"
	"github.com/kimhsiao/pawtrail/core/internal/remote"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "pawtrail-core: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("pawtrail-core", flag.ContinueOnError)
	fs.SetOutput(out)
	envFile := fs.String("env", "", "optional .env file to load")
	migrateOnly := fs.Bool("migrate", false, "apply remote migrations and exit")
	showVersion := fs.Bool("version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintf(out, "PawTrail Core v%s\n", Version)
		return nil
	}

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.LogLevel, zap.String("service", "pawtrail-core"), zap.String("version", Version)); err != nil {
		return err
	}
	defer logging.Sync()

	if cfg.Online() {
		if err := migrateRemote(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
	} else if *migrateOnly {
		return errors.New(errors.ErrInvalid, "DATABASE_URL is required for -migrate")
	}
	if *migrateOnly {
		return nil
	}

	core, err := bridge.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	core.AppStart()
	logging.Info("core agent running",
		zap.String("storage", cfg.StorageBackend),
		zap.Bool("remote", cfg.Online()),
		zap.String("schedule", cfg.SyncSchedule))

	<-ctx.Done()
	logging.Info("core agent stopping", zap.Int("pending", core.PendingCount(context.Background())))
	return nil
}

func migrateRemote(ctx context.Context, url string) error {
	pool, err := remote.Connect(ctx, url)
	if err != nil {
		return err
	}
	defer pool.Close()

	version, err := remote.Migrate(ctx, pool)
	if err != nil {
		return err
	}
	logging.Info("remote schema ready", zap.Int64("version", version))
	return nil
}
