// Package main wires together the quotewatch snapshot daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/quotewatch/quotewatchd/internal/api"
	"github.com/quotewatch/quotewatchd/internal/clock/system"
	"github.com/quotewatch/quotewatchd/internal/config"
	"github.com/quotewatch/quotewatchd/internal/extract"
	"github.com/quotewatch/quotewatchd/internal/logging"
	"github.com/quotewatch/quotewatchd/internal/persist"
	"github.com/quotewatch/quotewatchd/internal/poller"
	"github.com/quotewatch/quotewatchd/internal/render"
	"github.com/quotewatch/quotewatchd/internal/snapshot"
)

const loopGrace = 10 * time.Second

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := snapshot.NewStore()
	writer, err := persist.NewWriter(cfg.Snapshot.PrimaryPath, cfg.Snapshot.BackupPath, logger.Named("persist"))
	if err != nil {
		logger.Fatal("durable writer init failed", zap.Error(err))
	}
	extractor := extract.New(extract.Config{
		RowSelector: cfg.Source.RowSelector,
		MaxRecords:  cfg.Source.MaxRecords,
	})
	rendererFactory := render.Factory(render.Config{
		URL:         cfg.Source.URL,
		UserAgent:   cfg.Renderer.UserAgent,
		WarmupDelay: cfg.WarmupDelay(),
		NavTimeout:  cfg.NavTimeout(),
		MinInterval: time.Duration(cfg.Renderer.MinIntervalMs) * time.Millisecond,
	}, logger.Named("render"))
	clock := system.New()

	loop := poller.New(
		rendererFactory,
		extractor,
		store,
		writer,
		clock,
		poller.TickSleeper{},
		poller.Config{
			PollInterval: cfg.PollInterval(),
			BackoffFloor: cfg.BackoffFloor(),
			BackoffCap:   cfg.BackoffCap(),
		},
		logger.Named("poller"),
	)

	apiServer := api.NewServer(store, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		logger.Info("acquisition loop started", zap.String("url", cfg.Source.URL))
		loop.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case <-loopDone:
	case <-time.After(loopGrace):
		logger.Warn("acquisition loop did not stop within grace period")
	}
	logger.Info("shutdown complete")
}
