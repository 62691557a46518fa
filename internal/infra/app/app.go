package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/core/port"
	"github.com/avalon-platform/identity-service/internal/infra/config"
	"github.com/avalon-platform/identity-service/internal/infra/database"
	kafkainfra "github.com/avalon-platform/identity-service/internal/infra/kafka"
	"github.com/avalon-platform/identity-service/internal/infra/logger"
	redisinfra "github.com/avalon-platform/identity-service/internal/infra/redis"
	"github.com/avalon-platform/identity-service/internal/infra/security"
	"github.com/avalon-platform/identity-service/internal/infra/telemetry"
	"github.com/avalon-platform/identity-service/internal/provider"
	postgresrepo "github.com/avalon-platform/identity-service/internal/repository/postgres"
	redisrepo "github.com/avalon-platform/identity-service/internal/repository/redis"
	"github.com/avalon-platform/identity-service/internal/transport/http/middleware"
	"github.com/avalon-platform/identity-service/internal/transport/http/routes"
	"github.com/avalon-platform/identity-service/internal/usecase"
)

// Option adjusts optional wiring, such as injecting a directory client.
type Option func(*settings)

type settings struct {
	directory port.DirectoryClient
}

// WithDirectoryClient supplies the external directory client required by the
// Directory provider variant.
func WithDirectoryClient(client port.DirectoryClient) Option {
	return func(s *settings) {
		s.directory = client
	}
}

type Application struct {
	cfg         *config.AppConfig
	engine      *gin.Engine
	logger      *zap.Logger
	pool        *pgxpool.Pool
	redis       *redisinfra.Client
	producer    *kafkainfra.Producer
	tracer      *telemetry.TracerProvider
	initializer *database.Initializer
	provider    port.Provider
}

func New(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*Application, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	metrics := telemetry.NewIdentityMetrics(nil)

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	initializer := database.NewInitializer(cfg.Postgres, pool, log, metrics)

	repos := postgresrepo.NewRepositories(pool)
	resolver := usecase.NewResolverService(repos.Roles, repos.Permissions)

	var eventPublisher port.EventPublisher
	var producer *kafkainfra.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	kind, err := provider.ParseKind(cfg.Provider.Kind)
	if err != nil {
		return nil, fmt.Errorf("parse provider kind: %w", err)
	}

	deps := provider.Deps{
		Users:       repos.Users,
		Roles:       repos.Roles,
		Permissions: repos.Permissions,
		Tx:          repos,
		Resolver:    resolver,
		Publisher:   eventPublisher,
		Logger:      log,
	}

	var redisClient *redisinfra.Client
	switch kind {
	case domain.ProviderLocalCredential:
		deps.Credentials = repos.Credentials
		deps.Passwords = security.NewPasswordPolicy(cfg.Local.PasswordMinLength, cfg.Local.PasswordMinScore)
	case domain.ProviderDirectory:
		redisClient, err = redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		deps.Cache = redisrepo.NewRolePermissionCache(redisClient.Client(), cfg.Directory.CachePrefix, cfg.Directory.CacheTTL)
		deps.Directory = s.directory
	}

	prov, err := provider.New(kind, deps)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, fmt.Errorf("init identity provider: %w", err)
	}
	prov = provider.Instrument(prov, metrics)

	log.Info("identity provider selected", zap.String("provider", string(kind)))

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	routeDeps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		InitStatus:  initializer.Status,
		Database:    pool,
		HTTPMetrics: httpMetrics,
	}
	if redisClient != nil {
		routeDeps.Cache = redisClient
	}
	engine := routes.Register(routeDeps)

	return &Application{
		cfg:         cfg,
		engine:      engine,
		logger:      log,
		pool:        pool,
		redis:       redisClient,
		producer:    producer,
		tracer:      tracer,
		initializer: initializer,
		provider:    prov,
	}, nil
}

// Provider returns the active identity provider once constructed. Callers
// must still wait for Ready before issuing store operations.
func (a *Application) Provider() port.Provider {
	return a.provider
}

// Ready is closed when store initialization reaches a terminal state.
func (a *Application) Ready() <-chan struct{} {
	return a.initializer.Ready()
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = a.tracer.Shutdown(shutdownCtx)
		}
	}()

	initErrCh := make(chan error, 1)
	go func() {
		initErrCh <- a.initializer.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity service",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown server: %w", err)
			}
			return nil
		case err := <-serverErrCh:
			return err
		case err := <-initErrCh:
			if err != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				_ = srv.Shutdown(shutdownCtx)
				cancel()
				return fmt.Errorf("store initialization: %w", err)
			}
			a.logger.Info("store initialization committed, service ready")
			initErrCh = nil
		}
	}
}
