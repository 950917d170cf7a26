package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/api"
	"github.com/hackgods/clinic-slot-scheduling/internal/app"
	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
	"github.com/hackgods/clinic-slot-scheduling/internal/metrics"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting up", zap.String("env", cfg.Env), zap.String("http_port", cfg.HTTPPort))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := app.Connect(rootCtx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer infra.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc := app.NewService(cfg, infra, metrics.NewSchedulingMetrics(reg), log)

	// Seed the grid once; existing slots are left alone.
	if n, err := svc.GenerateSlots(rootCtx, app.Grid(cfg)); err != nil {
		log.Warn("initial slot generation failed", zap.Error(err))
	} else if n > 0 {
		log.Info("seeded slot grid", zap.Int("created", n))
	}

	router := api.NewRouter(api.RouterConfig{
		Service:   svc,
		Health:    api.NewHealthHandler(healthChecks(infra), cfg.Env, version),
		Gatherer:  reg,
		Logger:    log,
		Grid:      app.Grid(cfg),
		RateLimit: cfg.RateLimit,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}

	log.Info("api-server stopped")
}

func healthChecks(infra *app.Infra) []api.Check {
	pingers := infra.Pingers()
	names := make([]string, 0, len(pingers))
	for name := range pingers {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]api.Check, 0, len(names))
	for _, name := range names {
		checks = append(checks, api.Check{
			Name:     name,
			Critical: name == "postgres",
			Ping:     pingers[name],
		})
	}
	return checks
}
