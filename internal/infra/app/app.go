package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/regportal/iam-service/internal/core/port"
	"github.com/regportal/iam-service/internal/infra/config"
	"github.com/regportal/iam-service/internal/infra/database"
	kafkainfra "github.com/regportal/iam-service/internal/infra/kafka"
	"github.com/regportal/iam-service/internal/infra/logger"
	redisinfra "github.com/regportal/iam-service/internal/infra/redis"
	"github.com/regportal/iam-service/internal/infra/security"
	postgresrepo "github.com/regportal/iam-service/internal/repository/postgres"
	redisrepo "github.com/regportal/iam-service/internal/repository/redis"
	"github.com/regportal/iam-service/internal/transport/http/middleware"
	"github.com/regportal/iam-service/internal/transport/http/routes"
	"github.com/regportal/iam-service/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	tokenService, err := security.NewTokenService(security.TokenSettings{
		Secret:          cfg.JWT.Secret,
		Issuer:          cfg.JWT.Issuer,
		Audience:        cfg.JWT.Audience,
		AccessTokenTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTokenTTL: cfg.JWT.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init token service: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	var eventPublisher port.EventPublisher
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	lockout := usecase.LockoutSettings{
		MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
		LockoutDuration:   cfg.Lockout.Duration,
	}

	authService, err := usecase.NewAuthService(repos.Users, repos.RBAC, repos.Tokens, tokenService, eventPublisher, lockout, log)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init auth service: %w", err)
	}

	passwordService, err := usecase.NewPasswordService(repos.Users, repos.Tokens, security.DefaultPasswordValidator(), eventPublisher, log)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init password service: %w", err)
	}

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimitWindow := cfg.RateLimit.WindowDuration
		if rateLimitWindow <= 0 {
			rateLimitWindow = time.Minute
		}
		rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: cfg.Redis.RateLimitPrefix,
			TTL:       rateLimitWindow * 2,
		})
		rateLimiter = middleware.NewRateLimiter(rateLimitStore, log)
	}

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Tokens:      tokenService,
		Metrics:     metrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:      authService,
			Passwords: passwordService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
	}, nil
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

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting IAM API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

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
	}
}
