package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/fleetops/authz-core/internal/api/http"
	"github.com/fleetops/authz-core/internal/api/http/handlers"
	"github.com/fleetops/authz-core/internal/auth"
	"github.com/fleetops/authz-core/internal/cache"
	"github.com/fleetops/authz-core/internal/config"
	"github.com/fleetops/authz-core/internal/domain"
	"github.com/fleetops/authz-core/internal/events"
	"github.com/fleetops/authz-core/internal/observability"
	"github.com/fleetops/authz-core/internal/persistence"
	"github.com/fleetops/authz-core/internal/policy"
	"github.com/fleetops/authz-core/internal/ratelimit"
	"github.com/fleetops/authz-core/internal/repository"
	"github.com/fleetops/authz-core/internal/service"
	"github.com/fleetops/authz-core/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var redisConn *persistence.Redis
	if cfg.Cache.Backend == config.BackendRedis || cfg.RateLimit.Backend == config.BackendRedis {
		redisConn = persistence.NewRedis(ctx, cfg.Redis, cfg.RateLimit.StoreTimeout(), logger)
		defer redisConn.Close()
	}

	catalog := policy.DefaultCatalog()
	if cfg.Policy.ActionsFile != "" {
		catalog, err = policy.LoadCatalog(cfg.Policy.ActionsFile)
		if err != nil {
			logger.Fatal("failed to load action catalog", zap.Error(err))
		}
	}
	logger.Info("action catalog loaded", zap.Strings("actions", catalog.Names()))

	keys := auth.NewKeySet(auth.KeySetOptions{
		URL:                cfg.Auth.JWKSURL,
		HTTPClient:         &http.Client{Timeout: cfg.Auth.KeyFetchTimeout()},
		TTL:                cfg.Auth.KeyCacheTTL(),
		MinRefreshInterval: cfg.Auth.KeyRefreshMinInterval(),
		FetchTimeout:       cfg.Auth.KeyFetchTimeout(),
	}, logger.Named("keyset"))
	verifier := auth.NewTokenVerifier(keys, auth.VerifierConfig{
		Issuer:      cfg.Auth.Issuer,
		Audience:    cfg.Auth.Audience,
		TokenUse:    domain.TokenUse(cfg.Auth.TokenUse),
		AllowedAlgs: cfg.Auth.AllowedAlgs,
		ClockSkew:   cfg.Auth.ClockSkew(),
	})
	authenticator := auth.NewAuthenticator(verifier, auth.NewClaimsExtractor(cfg.Auth.RoleClaim, cfg.Auth.EmailClaim))

	// warm the key cache; after a failure requests fail closed until the refresh interval passes
	if _, err := keys.ForceRefresh(ctx); err != nil {
		logger.Warn("initial key set fetch failed", zap.Error(err))
	}

	decisionCache, err := buildDecisionCache(cfg, redisConn)
	if err != nil {
		logger.Fatal("failed to build decision cache", zap.Error(err))
	}
	limiter := ratelimit.NewLimiter(buildRateStore(cfg, redisConn), ratelimit.Config{
		Limit:        int64(cfg.RateLimit.MaxActions),
		Window:       cfg.RateLimit.Window(),
		StoreTimeout: cfg.RateLimit.StoreTimeout(),
	})
	generator := policy.NewGenerator(limiter, policy.Config{EmergencySubjects: cfg.Auth.EmergencySubjects})
	if cfg.Auth.FingerprintKey == "" && cfg.Cache.Backend == config.BackendRedis {
		logger.Warn("AUTH_FINGERPRINT_KEY not set; shared cache keys are unkeyed hashes")
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger.Named("events"))

	var (
		auditRepo   repository.AuditRepository
		auditWriter *worker.AuditWriter
		auditSink   service.AuditSink
	)
	if pg.Enabled() {
		auditRepo = repository.NewAuditRepository(pg.PoolHandle())
		auditWriter = worker.NewAuditWriter(auditRepo, cfg.Audit.BufferSize, logger.Named("audit"))
		auditWriter.Start(ctx)
		auditSink = auditWriter
	}
	service.NewAuditService(dispatcher, logger.Named("audit"), auditSink, metrics).RegisterHandlers()

	authzService := service.NewAuthorizationService(*cfg, service.AuthorizationDependencies{
		Authenticator: authenticator,
		Cache:         decisionCache,
		Fingerprinter: auth.NewFingerprinter(cfg.Auth.FingerprintKey),
		Policy:        generator,
		Dispatcher:    dispatcher,
		Metrics:       metrics,
		Logger:        logger.Named("authz"),
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	checks := []handlers.ReadinessCheck{{Name: "keys", Check: func(context.Context) error {
		if !keys.Ready() {
			return errors.New("signing keys not loaded")
		}
		return nil
	}}}
	if redisConn != nil {
		checks = append(checks, handlers.ReadinessCheck{Name: "redis", Check: redisConn.Ping})
	}
	if pg.Enabled() {
		checks = append(checks, handlers.ReadinessCheck{Name: "postgres", Check: pg.Ping})
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks...),
		Authorize:      handlers.NewAuthorizeHandler(authzService, catalog),
		Session:        handlers.NewSessionHandler(),
		Audit:          handlers.NewAuditHandler(auditRepo),
		Metrics:        handlers.NewMetricsHandler(metrics),
		AuthMiddleware: auth.NewAuthzMiddleware(authzService),
		Catalog:        catalog,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if auditWriter != nil {
		if err := auditWriter.Stop(shutdownCtx); err != nil {
			logger.Warn("audit writer did not drain", zap.Error(err))
		}
	}
}

func buildDecisionCache(cfg *config.Config, redisConn *persistence.Redis) (cache.DecisionCache, error) {
	switch cfg.Cache.Backend {
	case config.BackendNone:
		return cache.Nop{}, nil
	case config.BackendRedis:
		return cache.NewRedis(redisConn.Client, cache.RedisConfig{
			Ceiling: cfg.Cache.TTL(),
			Timeout: cfg.RateLimit.StoreTimeout(),
		}), nil
	default:
		return cache.NewMemory(cache.MemoryConfig{
			MaxEntries: cfg.Cache.MaxEntries,
			Ceiling:    cfg.Cache.TTL(),
		})
	}
}

func buildRateStore(cfg *config.Config, redisConn *persistence.Redis) ratelimit.Store {
	if cfg.RateLimit.Backend == config.BackendRedis {
		return ratelimit.NewRedisStore(redisConn.Client)
	}
	return ratelimit.NewMemoryStore(ratelimit.MemoryStoreConfig{MaxKeys: cfg.RateLimit.MaxTrackedKeys})
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
