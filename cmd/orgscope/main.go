package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/orgscope/pkg/api"
	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/config"
	"github.com/platinummonkey/orgscope/pkg/directory"
	"github.com/platinummonkey/orgscope/pkg/grants"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/httputil"
	"github.com/platinummonkey/orgscope/pkg/middleware"
	"github.com/platinummonkey/orgscope/pkg/observability"
	"github.com/platinummonkey/orgscope/pkg/scope"
	"github.com/platinummonkey/orgscope/pkg/storage/postgres"
	"github.com/platinummonkey/orgscope/pkg/swagger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Auth.TokenFile == "" {
		log.Fatalf("ORGSCOPE_TOKEN_FILE is required: the API authenticates every request")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", cfg.Observability.OTelServiceVersion).Info("starting orgscope")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var providers *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		providers, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
		}
	}

	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: cfg.Database.Replicas(),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	cm.StartHealthCheckRoutine(ctx, 30*time.Second)

	if err := runMigrations(ctx, cm); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = postgres.NewRedisClient(postgres.RedisConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
			PoolSize:   cfg.Redis.PoolSize,
		})
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		logger.WithField("addr", cfg.Redis.Addr).Info("redis connected")
	}

	var cache scope.ScopeCache
	if cfg.Cache.Enabled {
		cache = scope.NewTieredCache(cfg.Cache.MaxEntries, redisClient, cfg.Cache.TTL)
	}
	db := cm.Primary()
	resolver := scope.NewResolver(
		grants.NewStore(db),
		hierarchy.NewStore(db),
		directory.NewStore(db),
		cache,
	)

	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		log.Fatalf("Failed to create audit logger: %v", err)
	}
	var auditLogger audit.Logger = dbAudit
	if cfg.Audit.FileEnabled {
		fileAudit, err := audit.NewFileLogger(audit.FileLoggerConfig{
			BasePath: cfg.Audit.FileDir,
			Rotate:   true,
		})
		if err != nil {
			log.Fatalf("Failed to create file audit logger: %v", err)
		}
		auditLogger = audit.NewMultiLogger(dbAudit, fileAudit)
	}

	tokens, err := middleware.NewTokenStore(cfg.Auth.TokenFile, logger)
	if err != nil {
		log.Fatalf("Failed to load token file: %v", err)
	}
	logger.WithField("tokens", tokens.Count()).Info("service tokens loaded")

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	apiServer := api.NewServer(db, resolver, auditLogger, dbAudit, logger)

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.InjectLogger(logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
	}
	if metrics != nil {
		mws = append(mws, observability.HTTPMetricsMiddleware(metrics))
	}
	if providers != nil {
		mws = append(mws, observability.TracingMiddleware(cfg.Observability.OTelServiceName))
	}
	mws = append(mws,
		middleware.NewAuth(tokens).Handler,
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(1<<20),
	)

	// API docs stay outside the auth chain; everything else goes through it.
	root := mux.NewRouter()
	swagger.NewSwaggerHandlers().RegisterRoutes(root)
	root.PathPrefix("/").Handler(httputil.Chain(mws...)(apiServer))

	mainServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics live on their own port so probes and scrapes never
	// pass through auth.
	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db, redisClient, cfg.Observability.OTelServiceVersion)
	observability.RegisterHealthRoutes(healthMux, checker)
	if metrics != nil {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthMux,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, mainServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(healthServer.Shutdown)
	shutdown.RegisterShutdownFunc(func(context.Context) error { return tokens.Close() })
	shutdown.RegisterShutdownFunc(func(context.Context) error { return auditLogger.Close() })
	shutdown.RegisterShutdownFunc(func(context.Context) error { return cm.Close() })
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error { return redisClient.Close() })
	}
	if providers != nil {
		shutdown.RegisterShutdownFunc(func(sctx context.Context) error {
			return observability.ShutdownOTel(sctx, providers, logger)
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", mainServer.Addr).Info("API server listening")
		if err := mainServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return shutdown.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("orgscope stopped")
}

// runMigrations brings all four schemas up to date on the primary.
func runMigrations(ctx context.Context, cm *postgres.ConnectionManager) error {
	db := cm.Primary()
	if err := hierarchy.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := grants.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := directory.RunMigrations(ctx, db); err != nil {
		return err
	}
	return audit.RunMigrations(ctx, db)
}
