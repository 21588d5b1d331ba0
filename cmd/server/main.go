package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"devcompliance/internal/compliance/handler"
	compliancemetrics "devcompliance/internal/compliance/metrics"
	"devcompliance/internal/compliance/service"
	"devcompliance/internal/platform/config"
	"devcompliance/internal/platform/health"
	"devcompliance/internal/platform/httpserver"
	"devcompliance/internal/platform/logger"
	"devcompliance/internal/platform/metrics"
	"devcompliance/internal/platform/middleware"
	"devcompliance/pkg/platform/middleware/requesttime"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "device-compliance: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New(os.Stdout, cfg.Logging)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error("closing compliance store", "error", err)
		}
	}()

	svc, err := service.New(records,
		service.WithLogger(log),
		service.WithMetrics(compliancemetrics.New()),
		service.WithStrictInitialize(cfg.StrictInitialize),
	)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(requesttime.Middleware)
	router.Use(middleware.Latency(metrics.New()))

	health.New(records, 0, log).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	handler.New(svc, log).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting device-compliance",
			"addr", cfg.Addr,
			"store_driver", cfg.StoreDriver,
			"strict_initialize", cfg.StrictInitialize,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}
