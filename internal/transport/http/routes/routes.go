package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/regportal/iam-service/internal/infra/config"
	"github.com/regportal/iam-service/internal/transport/http/handlers"
	"github.com/regportal/iam-service/internal/transport/http/middleware"
	"github.com/regportal/iam-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth      *usecase.AuthService
	Passwords *usecase.PasswordService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	Tokens      middleware.TokenValidator
	Metrics     *middleware.HTTPMetrics
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.CORS.AllowedOrigins))

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")

		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Passwords, deps.Tokens)
		authHandler.RegisterRoutes(authGroup, handlers.AuthRouteOptions{
			LoginMiddlewares:   buildRateLimitMiddlewares(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts),
			RefreshMiddlewares: buildRateLimitMiddlewares(deps, "auth_refresh_ip", deps.Config.RateLimit.RefreshMaxAttempts),
		})

		accountGroup := api.Group("/accounts")

		accountHandler := handlers.NewAccountHandler(deps.Services.Auth, deps.Tokens)
		accountHandler.RegisterRoutes(accountGroup)
	}

	return r
}

func buildRateLimitMiddlewares(deps Dependencies, ruleName string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil || !deps.Config.RateLimit.Enabled {
		return nil
	}

	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       ruleName,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
