package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chrpow/Wearcast-Pebble/internal/appsync"
	"github.com/chrpow/Wearcast-Pebble/internal/config"
	"github.com/chrpow/Wearcast-Pebble/internal/engine"
	httphandler "github.com/chrpow/Wearcast-Pebble/internal/http"
	"github.com/chrpow/Wearcast-Pebble/internal/lifecycle"
	"github.com/chrpow/Wearcast-Pebble/internal/observability"
)

// newServeCmd creates the "wearcast serve" subcommand.
func newServeCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine and the companion HTTP surface",
		Long:  "Loads config/{ENV_NAME}.yaml, starts the engine loop and minute clock,\nand serves the companion, view, health and metrics endpoints until SIGINT/SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), watch)
		},
	}
	bindServeFlags(cmd, &watch)
	return cmd
}

// bindServeFlags registers the serve flags; the root command takes them too
// since it serves when run bare.
func bindServeFlags(cmd *cobra.Command, watch *bool) {
	cmd.Flags().BoolVar(watch, "watch-config", true, "reload outfit thresholds and clock style when the config file changes")
}

func runServe(parent context.Context, watch bool) error {
	if parent == nil {
		parent = context.Background()
	}
	logger, err := observability.NewLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	configPath, err := config.Path()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		logger.Error("config", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()

	outbox := httphandler.NewOutbox(cfg.DeliveryTimeout, logger.Named("outbox"))
	eng := engine.New(outbox, engine.Config{
		RefreshInterval: cfg.RefreshInterval,
		RefreshTimeout:  cfg.RefreshTimeout,
		Clock24h:        cfg.Clock24h,
		CityMaxLength:   cfg.CityMaxLength,
		Policy:          cfg.Outfit,
	}, logger.Named("engine"))
	outbox.OnResult(func(id appsync.SendID, err error) {
		if postErr := eng.PostSendResult(engineCtx, id, err); postErr != nil {
			logger.Debug("send result dropped", zap.Error(postErr))
		}
	})

	observability.RegisterWeatherAgeGauge(func() float64 {
		age, ok := eng.View().Age(time.Now())
		if !ok {
			return -1
		}
		return age.Seconds()
	})

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := eng.Run(engineCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("engine loop stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := eng.RunClock(engineCtx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, engine.ErrStopped) {
			logger.Error("clock stopped", zap.Error(err))
		}
	}()
	logger.Info("engine started",
		zap.Duration("refresh_interval", cfg.RefreshInterval),
		zap.Duration("refresh_timeout", cfg.RefreshTimeout),
		zap.Bool("clock_24h", cfg.Clock24h))

	if watch {
		go func() {
			err := config.Watch(engineCtx, configPath, logger.Named("config"), func(next *config.Config) {
				if next.RefreshInterval != cfg.RefreshInterval || next.ServerPort != cfg.ServerPort {
					logger.Warn("refresh interval and server port changes need a restart")
				}
				if err := eng.Reconfigure(engineCtx, engine.Settings{Policy: next.Outfit, Clock24h: next.Clock24h}); err != nil {
					logger.Warn("reconfigure failed", zap.Error(err))
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("config watch stopped", zap.Error(err))
			}
		}()
	}

	healthConfig := &httphandler.HealthConfig{
		RefreshInterval:   cfg.RefreshInterval,
		DegradedWindow:    cfg.DegradedWindow,
		DegradedRejectPct: cfg.DegradedRejectPct,
		StartTime:         time.Now(),
	}
	handler := httphandler.NewHandler(eng, outbox, healthConfig, logger)

	var limiter *rate.Limiter
	if cfg.InboundRateRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.InboundRateRPS), cfg.InboundRateBurst)
	}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		InboundLimiter: limiter,
		RequestTimeout: cfg.RequestTimeout,
		TestingMode:    cfg.TestingMode,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("graceful shutdown triggered")
	case runErr = <-serveErr:
		logger.Error("server", zap.Error(runErr))
	}
	stop()

	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	// The engine outlives the server so in-flight companion requests get their replies.
	stopEngine()
	<-engineDone

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return runErr
}
