package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-proc-requests/internal/assignment"
	"github.com/pesio-ai/be-proc-requests/internal/client"
	"github.com/pesio-ai/be-proc-requests/internal/combiner"
	"github.com/pesio-ai/be-proc-requests/internal/common/config"
	"github.com/pesio-ai/be-proc-requests/internal/common/database"
	"github.com/pesio-ai/be-proc-requests/internal/common/logger"
	"github.com/pesio-ai/be-proc-requests/internal/common/middleware"
	natsclient "github.com/pesio-ai/be-proc-requests/internal/common/nats"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
	"github.com/pesio-ai/be-proc-requests/internal/handler"
	"github.com/pesio-ai/be-proc-requests/internal/metrics"
	"github.com/pesio-ai/be-proc-requests/internal/migration"
	"github.com/pesio-ai/be-proc-requests/internal/recompute"
	"github.com/pesio-ai/be-proc-requests/internal/repository"
	"github.com/pesio-ai/be-proc-requests/internal/service"
	"github.com/pesio-ai/be-proc-requests/internal/statemachine"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Procurement Requests Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg := database.Config{
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
	}

	if cfg.Database.MigrateOnStart {
		version, err := migration.Run(dbCfg.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Uint("schema_version", version).Msg("Migrations applied")
	}

	// Initialize database
	db, err := database.New(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	requestRepo := repository.NewRequestRepository(db)
	historyRepo := repository.NewStatusHistoryRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	thresholdRepo := repository.NewThresholdRulesRepository(db)
	ideaRepo := repository.NewIdeaRepository(db)

	m := metrics.New(prometheus.DefaultRegisterer, metrics.Config{
		ServiceName: cfg.Service.Name,
		Environment: cfg.Service.Environment,
	})

	// Round-robin cursor
	var cursor assignment.CursorStore = settingsRepo
	if cfg.Workflow.CursorBackend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to redis")
		}
		defer rdb.Close()
		cursor = assignment.NewRedisCursorStore(rdb, "")
	}
	log.Info().Str("backend", cfg.Workflow.CursorBackend).Msg("Assignment cursor initialized")

	// Notification transport
	var natsPub client.Publisher
	if cfg.NATS.Enabled {
		nc, err := natsclient.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream, []string{client.SubjectPrefix + ">"})
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		defer nc.Close()
		natsPub = nc
		log.Info().Str("url", cfg.NATS.URL).Str("stream", cfg.NATS.Stream).Msg("NATS JetStream connected")
	} else {
		log.Warn().Msg("NATS disabled, notifications will not be published")
	}

	// Initialize service clients
	identityClient := client.NewIdentityClient(cfg.Identity.BaseURL, cfg.Identity.Timeout, cfg.Identity.CacheTTL)
	vendorsClient := client.NewVendorsClient(cfg.Vendors.BaseURL, cfg.Vendors.Timeout)
	notifier := client.NewNotificationPublisher(natsPub, log.Component("notifications"))
	notifier.OnFailure(m.ObserveNotificationFailure)

	log.Info().
		Str("identity_url", cfg.Identity.BaseURL).
		Str("vendors_url", cfg.Vendors.BaseURL).
		Msg("Service clients initialized")

	// Workflow engine
	statuses, err := combinableStatuses(cfg.Workflow.CombinableStatuses)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid workflow configuration")
	}
	machine := statemachine.New(statemachine.WithMaxResubmissions(cfg.Workflow.MaxResubmissions))
	comb := combiner.New(statuses)
	balancer := assignment.NewBalancer(requestRepo, cursor)

	reconciler := recompute.NewReconciler(requestRepo, ideaRepo, m, cfg.Reconcile.BatchSize, log.Component("reconciler"))

	// Initialize services
	workflowService := service.NewWorkflowService(service.WorkflowDeps{
		Requests:    requestRepo,
		History:     historyRepo,
		Assignments: assignmentRepo,
		Audit:       auditRepo,
		Settings:    settingsRepo,
		Thresholds:  thresholdRepo,
		Identity:    identityClient,
		Notifier:    notifier,
		Vendors:     vendorsClient,
		Machine:     machine,
		Balancer:    balancer,
		Combiner:    comb,
		Metrics:     m,
	}, log)
	requestService := service.NewRequestService(requestRepo, auditRepo, identityClient, log)
	ideaService := service.NewIdeaService(ideaRepo, identityClient, log)
	settingsService := service.NewSettingsService(settingsRepo, thresholdRepo, reconciler, identityClient, log)

	// Setup HTTP routes
	mux := http.NewServeMux()
	handler.NewHTTPHandler(workflowService, requestService, ideaService, settingsService, log).Register(mux)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	if cfg.Reconcile.Enabled {
		go reconciler.Start(ctx, cfg.Reconcile.Interval)
	}

	// Start gRPC server
	grpcLog := log.Component("grpc")
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.UnaryRecovery(grpcLog),
		handler.UnaryLogging(grpcLog),
	))
	handler.NewGRPCHandler(workflowService, requestService, log.Logger).Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(handler.WorkflowServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer) // Enable reflection for debugging

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(cfg.Server.ShutdownTimeout):
		grpcServer.Stop()
	}

	log.Info().Msg("Server stopped")
}

func combinableStatuses(names []string) ([]domain.Status, error) {
	out := make([]domain.Status, 0, len(names))
	for _, n := range names {
		s, ok := domain.ParseStatus(n)
		if !ok {
			return nil, fmt.Errorf("unknown combinable status %q", n)
		}
		out = append(out, s)
	}
	return out, nil
}
