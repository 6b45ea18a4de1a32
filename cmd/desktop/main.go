// Package main runs the walk core behind a localhost HTTP and WebSocket API
// for the desktop build of the app.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kimhsiao/pawtrail/core/internal/bridge"
	"github.com/kimhsiao/pawtrail/core/internal/config"
	"github.com/kimhsiao/pawtrail/core/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pawtrail-desktop: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.LogLevel, zap.String("service", "pawtrail-desktop")); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := bridge.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	hub := NewWSHub()
	core.Engine.SetEventHandler(hub)
	core.AppStart()

	return serve(ctx, cfg.DesktopAddr, newMux(core, hub), hub)
}

// serve runs the hub and the HTTP server until ctx is cancelled.
func serve(ctx context.Context, addr string, handler http.Handler, hub *WSHub) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		logging.Info("desktop server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
