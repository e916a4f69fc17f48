// Command reconcile runs one counter reconciliation pass and prints the report.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pesio-ai/be-proc-requests/internal/common/config"
	"github.com/pesio-ai/be-proc-requests/internal/common/database"
	"github.com/pesio-ai/be-proc-requests/internal/common/logger"
	"github.com/pesio-ai/be-proc-requests/internal/metrics"
	"github.com/pesio-ai/be-proc-requests/internal/recompute"
	"github.com/pesio-ai/be-proc-requests/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name + "-reconcile",
		Version:     cfg.Service.Version,
		Output:      os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// A private registry keeps the one-shot run off the global default.
	m := metrics.New(prometheus.NewRegistry(), metrics.Config{
		ServiceName: cfg.Service.Name,
		Environment: cfg.Service.Environment,
	})

	reconciler := recompute.NewReconciler(
		repository.NewRequestRepository(db),
		repository.NewIdeaRepository(db),
		m,
		cfg.Reconcile.BatchSize,
		log.Component("reconciler"),
	)

	report, err := reconciler.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Reconciliation failed")
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Error().Err(err).Msg("Failed to write report")
		os.Exit(1)
	}
}
