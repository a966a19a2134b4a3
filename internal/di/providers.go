package di

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/app"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/config"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/database"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/directory"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/http/handler"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/http/middleware"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/http/router"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/observability"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/repository"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/security"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/service"
)

func ProvideConfig() (*config.Config, error) {
	return config.Load()
}

func ProvideLogger(cfg *config.Config) *slog.Logger {
	logger := observability.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)
	observability.SetEventLogger(logger)
	return logger
}

func ProvideControlPlane(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.OpenControlPlane(cfg)
	if err != nil {
		return nil, fmt.Errorf("open control plane: %w", err)
	}
	if err := database.MigrateControlPlane(db); err != nil {
		return nil, fmt.Errorf("migrate control plane: %w", err)
	}
	return db, nil
}

func ProvideSecretCipher(cfg *config.Config) *security.SecretCipher {
	return security.NewSecretCipher(cfg.ConnectionSecretKey, cfg.AccessTokenSecretKey, cfg.RefreshTokenSecretKey)
}

func ProvideTenantRepository(db *gorm.DB) repository.TenantRepository {
	return repository.NewTenantRepository(db)
}

func ProvideDirectory(tenants repository.TenantRepository, cipher *security.SecretCipher, cfg *config.Config) *directory.Directory {
	return directory.New(tenants, cipher, cfg.DefaultSessionLimit)
}

func ProvideConnectionPool() *database.ConnectionPool {
	return database.NewConnectionPool(database.PostgresOpener())
}

func ProvideTokenIssuer(cfg *config.Config) *security.TokenIssuer {
	return security.NewTokenIssuer(cfg.JWTIssuer)
}

func ProvideCookieManager(cfg *config.Config) *security.CookieManager {
	return security.NewCookieManager(cfg.CookieDomain, cfg.CookieSecure, cfg.CookieSameSite)
}

func ProvideNotifier(cfg *config.Config, logger *slog.Logger) service.Notifier {
	return service.NewLogNotifier(logger, !cfg.IsProduction())
}

func ProvideSessionService() *service.SessionService {
	return service.NewSessionService()
}

func ProvideAuthService(issuer *security.TokenIssuer, sessions *service.SessionService, notifier service.Notifier, cfg *config.Config) *service.AuthService {
	return service.NewAuthService(issuer, sessions, notifier, cfg)
}

// Limiters are the two rate limiting tiers: a tight one on credential flows
// and a looser one on the rest of the API.
type Limiters struct {
	Auth *middleware.RateLimiter
	API  *middleware.RateLimiter
}

func ProvideLimiters(cfg *config.Config) (Limiters, error) {
	if cfg.RateLimitBackend == "redis" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return Limiters{}, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		backend := middleware.NewRedisFixedWindowLimiter(client, "rl")
		return Limiters{
			Auth: middleware.NewDistributedRateLimiter(backend, cfg.AuthRateLimitPerMin, time.Minute, middleware.FailClosed, "auth"),
			API:  middleware.NewDistributedRateLimiter(backend, cfg.APIRateLimitPerMin, time.Minute, middleware.FailOpen, "api"),
		}, nil
	}
	return Limiters{
		Auth: middleware.NewRateLimiter(cfg.AuthRateLimitPerMin, time.Minute, "auth"),
		API:  middleware.NewRateLimiter(cfg.APIRateLimitPerMin, time.Minute, "api"),
	}, nil
}

func ProvideTenantResolver(dir *directory.Directory, pool *database.ConnectionPool) *middleware.TenantResolver {
	return middleware.NewTenantResolver(dir, pool)
}

func ProvideAuthenticator(auth *service.AuthService) *middleware.Authenticator {
	return middleware.NewAuthenticator(auth)
}

func ProvideAuthHandler(auth *service.AuthService, cookies *security.CookieManager) *handler.AuthHandler {
	return handler.NewAuthHandler(auth, cookies)
}

func ProvideUserHandler(auth *service.AuthService, sessions *service.SessionService) *handler.UserHandler {
	return handler.NewUserHandler(auth, sessions)
}

func ProvideRouter(limiters Limiters, tenant *middleware.TenantResolver, authMW *middleware.Authenticator, authHandler *handler.AuthHandler, userHandler *handler.UserHandler) http.Handler {
	return router.New(router.Deps{
		AuthLimiter: limiters.Auth,
		APILimiter:  limiters.API,
		Tenant:      tenant,
		Auth:        authMW,
		AuthHandler: authHandler,
		UserHandler: userHandler,
	})
}

func ProvideServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func ProvideCleanupWorker(pool *database.ConnectionPool, cfg *config.Config, logger *slog.Logger) *service.SessionCleanupWorker {
	return service.NewSessionCleanupWorker(pool, cfg.SessionCleanupInterval, logger)
}

var AppSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	ProvideControlPlane,
	ProvideSecretCipher,
	ProvideTenantRepository,
	ProvideDirectory,
	ProvideConnectionPool,
	ProvideTokenIssuer,
	ProvideCookieManager,
	ProvideNotifier,
	ProvideSessionService,
	ProvideAuthService,
	ProvideLimiters,
	ProvideTenantResolver,
	ProvideAuthenticator,
	ProvideAuthHandler,
	ProvideUserHandler,
	ProvideRouter,
	ProvideServer,
	ProvideCleanupWorker,
	app.New,
)
