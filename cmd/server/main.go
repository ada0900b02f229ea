package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	router "crossdock/internal/http"
	"crossdock/internal/inventory/handler"
	"crossdock/internal/inventory/metrics"
	"crossdock/internal/inventory/reaper"
	"crossdock/internal/inventory/service"
	"crossdock/internal/inventory/store"
	"crossdock/internal/platform/config"
	"crossdock/internal/platform/httpserver"
	"crossdock/internal/platform/logger"
	"crossdock/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logger.New()
	if err := run(log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}

	if cfg.Migrate {
		if err := migrations.Apply(ctx, db); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	st := store.NewPostgres(db)
	svc := service.New(st,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithHoldTTL(cfg.HoldTTL),
	)
	sweeper := reaper.New(svc,
		reaper.WithLogger(log),
		reaper.WithMetrics(m),
		reaper.WithInterval(cfg.SweepInterval),
		reaper.WithSweepLimit(cfg.SweepLimit),
	)

	h := handler.New(svc, log)
	srv := httpserver.New(cfg.Addr, router.NewRouter(h, log, registry))

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return sweeper.Run(ctx)
	})
	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
