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

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"trolley-pm/config"
	"trolley-pm/internal/api"
	"trolley-pm/internal/db"
	"trolley-pm/internal/logging"
	"trolley-pm/internal/metrics"
	"trolley-pm/internal/notification"
	"trolley-pm/internal/reminder"
	"trolley-pm/internal/service"
	"trolley-pm/internal/store"
)

func main() {
	// A missing .env file is fine; the environment may be set by the host.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	if err := logging.Init(cfg.Log.Env); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Close()
	logging.Info("configuration loaded", "path", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logging.Fatal("failed to initialize database", "error", err)
	}

	registry := metrics.New()
	appStore := store.NewGormStore(gormDB, cfg.Policy.IntervalDays)
	engine, err := service.New(appStore, cfg.Policy,
		service.WithLocation(cfg.Server.Location()),
		service.WithMetrics(registry),
	)
	if err != nil {
		logging.Fatal("failed to build engine", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var webpushOptions *webpush.Options
	var dispatcher reminder.Dispatcher
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, registry)
		pool.Start(ctx)
		dispatcher = pool
	} else {
		logging.Warn("VAPID keys not configured; push notifications disabled")
	}

	sweeper := reminder.NewService(cfg.Reminder, engine, dispatcher, registry)

	router := api.NewRouter(cfg.Server, engine, webpushOptions, registry)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("shutdown signal received, stopping services")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logging.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logging.Info("server gracefully stopped")
}
