package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/formloft/formloft/pkg/api"
	"github.com/formloft/formloft/pkg/auth"
	"github.com/formloft/formloft/pkg/authz"
	"github.com/formloft/formloft/pkg/config"
	"github.com/formloft/formloft/pkg/entities"
	"github.com/formloft/formloft/pkg/middleware"
	"github.com/formloft/formloft/pkg/observability"
)

func main() {
	startup := logrus.New()
	startup.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		startup.WithError(err).Fatal("failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics()

	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		startup.WithError(err).Fatal("failed to open database")
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)
	if err := db.Ping(); err != nil {
		startup.WithError(err).Fatal("failed to ping database")
	}

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		MaxRetries: cfg.Redis.MaxRetries,
		PoolSize:   cfg.Redis.PoolSize,
	})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		// Cache misses fall through to the database, so a cold Redis is
		// survivable at startup.
		logger.WithError(err).Warn("redis unreachable at startup, authorization caching degraded")
	}

	// Provider set
	providers, err := config.LoadProviders(cfg.Auth.ProvidersFile)
	if err != nil {
		startup.WithError(err).Fatal("failed to load auth providers")
	}

	authzStore := authz.NewStore(db)
	cache := authz.NewCache(rdb, &authz.CacheConfig{
		SafetyBuffer: cfg.Cache.SafetyBuffer,
		FallbackTTL:  cfg.Cache.FallbackTTL,
	}, logger, metrics)

	registry := auth.NewProviderRegistry()
	verifiers := make(map[string]auth.Verifier, len(providers.Providers))
	strategies := make([]authz.Strategy, 0, len(providers.Providers))
	mappers := make(map[string]*authz.StaticRoleMapper)

	for _, p := range providers.Providers {
		issuer := p.Issuer

		if err := registry.Register(auth.Registration{
			Scheme:   p.Scheme,
			Priority: p.Priority,
			Default:  p.Default,
			MatchIssuer: func(iss string) bool {
				return iss == issuer
			},
		}); err != nil {
			startup.WithError(err).WithField("scheme", p.Scheme).Fatal("failed to register auth provider")
		}

		switch p.Type {
		case config.ProviderTypeInternal:
			audience := p.Audience
			if audience == "" {
				audience = cfg.Auth.InternalAudience
			}
			verifier, err := auth.NewHMACVerifier(p.Issuer, audience, []byte(cfg.Auth.InternalHMACSecret))
			if err != nil {
				startup.WithError(err).WithField("scheme", p.Scheme).Fatal("failed to initialize HMAC verifier")
			}
			verifiers[p.Scheme] = verifier
			strategies = append(strategies, authz.NewInternalStrategy(p.Issuer, authzStore, logger))

		case config.ProviderTypeOIDC:
			verifier, err := auth.NewOIDCVerifier(context.Background(), p.Issuer, p.Introspection.ClientID)
			if err != nil {
				startup.WithError(err).WithField("scheme", p.Scheme).Fatal("failed to initialize OIDC verifier")
			}
			verifiers[p.Scheme] = verifier

			mapper := authz.NewStaticRoleMapper(p.RoleMappings)
			mappers[p.Scheme] = mapper

			strategy, err := authz.NewIntrospectionStrategy(authz.IntrospectionConfig{
				Issuer:       p.Issuer,
				Endpoint:     p.Introspection.Endpoint,
				ClientID:     p.Introspection.ClientID,
				ClientSecret: p.Introspection.ClientSecret,
				TokenURL:     p.Introspection.TokenURL,
				RolesClaim:   p.Introspection.RolesClaim,
				TenantClaim:  p.Introspection.TenantClaim,
				Timeout:      p.Introspection.Timeout,
			}, mapper, authzStore, logger, metrics)
			if err != nil {
				startup.WithError(err).WithField("scheme", p.Scheme).Fatal("failed to initialize introspection strategy")
			}
			strategies = append(strategies, strategy)
		}
	}

	if err := registry.Validate(); err != nil {
		startup.WithError(err).Fatal("invalid auth provider registry")
	}

	selector := auth.NewSchemeSelector(registry)
	enricher := authz.NewEnricher(cache, strategies, logger)

	entityStore := entities.NewSQLStore(db)
	ownership := authz.NewOwnershipCache(entityStore, cfg.Cache.OwnershipSize, cfg.Cache.OwnershipTTL, logger, metrics)
	permHandler := authz.NewPermissionHandler(ownership, nil, logger, metrics)

	authenticator := middleware.NewAuthenticator(selector, verifiers, enricher, false, logger, metrics)

	// Role mapping edits in the provider file take effect without a
	// restart; stale cached authorization is flushed on reload.
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	err = config.WatchProviders(watchCtx, cfg.Auth.ProvidersFile, logger, func(reloaded *config.Providers) {
		for scheme, mapper := range mappers {
			mapper.Reload(reloaded.MappingsFor(scheme))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := cache.InvalidateAll(ctx); err != nil {
			logger.WithError(err).Warn("cache flush after provider reload failed")
		}
	})
	if err != nil {
		logger.WithError(err).Warn("provider file watching unavailable, role mapping edits require restart")
	}

	// API server
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(logger))
	if cfg.Observability.MetricsEnabled {
		router.Use(middleware.Metrics(metrics))
	}
	router.Use(authenticator.Handler)

	server := api.NewServer(db, cache, authzStore, permHandler, logger)
	server.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, rdb))
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("formloft server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			startup.WithError(err).Fatal("server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("database", func(ctx context.Context) error {
		return db.Close()
	})
	shutdown.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})
	shutdown.Register("provider watcher", func(ctx context.Context) error {
		cancelWatch()
		return nil
	})
	shutdown.Register("health server", func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
}
