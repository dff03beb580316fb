// Package main is the entrypoint for the AnyLLM gateway API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/anyllm/gateway/internal/auth"
	"github.com/anyllm/gateway/internal/cache"
	"github.com/anyllm/gateway/internal/config"
	"github.com/anyllm/gateway/internal/handler"
	"github.com/anyllm/gateway/internal/ledger"
	"github.com/anyllm/gateway/internal/metrics"
	"github.com/anyllm/gateway/internal/middleware"
	"github.com/anyllm/gateway/internal/notifier"
	"github.com/anyllm/gateway/internal/repository"
	"github.com/anyllm/gateway/internal/server"
	"github.com/anyllm/gateway/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()

	// Auth core
	signer := auth.NewTokenSigner([]byte(cfg.SigningSecret()), cfg.AccessTokenTTL)
	resolver := auth.NewResolver(cfg.MasterKey, signer, repo, repo)

	// Security event delivery
	events := notifier.New(cfg.SecurityWebhookURL, cfg.SecurityWebhookSecret, logger)
	if events.Enabled() {
		logger.Info("security event webhook enabled")
	}

	// Services
	verifier := service.NewHTTPVerifier(cfg.VerifyTimeout)
	provisioner := service.NewProvisioner(repo, verifier, service.ProvisionDefaults{
		MaxBudget:         cfg.DefaultMaxBudget,
		BudgetDurationSec: cfg.DefaultBudgetDurationSec,
	}, recorder, logger)
	sessions := service.NewSessionManager(repo, signer, events, cfg.RefreshTokenTTL, recorder, logger)

	// Usage ledger
	publisher := ledger.NewPublisher(cacheClient.Client(), logger, recorder)
	credit := ledger.NewCreditChecker(repo, recorder, logger)

	// Handlers
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	authHandler := handler.NewAuthHandler(logger, provisioner, sessions)
	profileHandler := handler.NewProfileHandler(logger, repo, credit)
	apiKeyHandler := handler.NewAPIKeyHandler(logger, repo, cacheClient)
	usageHandler := handler.NewUsageHandler(logger, publisher, credit)
	adminHandler := handler.NewAdminHandler(logger, repo, events)

	r := setupRouter(routerDeps{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		cache:    cacheClient,
		resolver: resolver,
		recorder: recorder,
		health:   healthHandler,
		auth:     authHandler,
		profile:  profileHandler,
		apiKeys:  apiKeyHandler,
		usage:    usageHandler,
		admin:    adminHandler,
	})

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	if !cfg.UsageWorkerDisabled {
		worker := ledger.NewWorker(cacheClient.Client(), repo, logger, ledger.NewConsumerID(), recorder)
		worker.SetBatchSize(cfg.UsageBatchSize)
		worker.SetBlockTimeout(cfg.UsageBlockTimeout)

		workerCtx, workerCancel := context.WithCancel(ctx)
		go func() {
			if err := worker.Run(workerCtx); err != nil && err != context.Canceled {
				logger.Error("ledger worker exited", slog.String("error", err.Error()))
			}
		}()
		srv.OnShutdown("ledger-worker", func(ctx context.Context) error {
			defer workerCancel()
			return worker.Shutdown(ctx)
		})
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type routerDeps struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     *repository.Repository
	cache    *cache.Cache
	resolver *auth.Resolver
	recorder metrics.Recorder
	health   *handler.HealthHandler
	auth     *handler.AuthHandler
	profile  *handler.ProfileHandler
	apiKeys  *handler.APIKeyHandler
	usage    *handler.UsageHandler
	admin    *handler.AdminHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(deps routerDeps) *chi.Mux {
	cfg := deps.cfg
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:      cfg.IsDevelopment(),
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.logger))
	r.Use(middleware.Recoverer(deps.logger))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))

	// Health endpoints (no auth required)
	r.Get("/healthz", deps.health.Healthz)
	r.Get("/readyz", deps.health.Readyz)

	authCfg := middleware.AuthConfig{
		Logger:     deps.logger,
		Resolver:   deps.resolver,
		Cache:      deps.cache,
		Repository: deps.repo,
		Metrics:    deps.recorder,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:         deps.logger,
		Cache:          deps.cache,
		Enabled:        cfg.RateLimitEnabled,
		UserPerMinute:  cfg.RateLimitUserPerMin,
		UserBurst:      cfg.RateLimitUserBurst,
		LoginPerSecond: cfg.RateLimitLoginPerSec,
		LoginBurst:     cfg.RateLimitLoginBurst,
	}

	r.Route("/v1", func(r chi.Router) {
		// Public session lifecycle. Login is brute-force limited per IP.
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.RateLimitLogin(rateLimitCfg)).Post("/login", deps.auth.Login)
			r.Post("/refresh", deps.auth.Refresh)
			r.Post("/logout", deps.auth.Logout)
		})

		// Everything else is behind the credential resolver.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authCfg))
			r.Use(middleware.RateLimitUser(rateLimitCfg))

			r.Route("/profile", func(r chi.Router) {
				r.With(middleware.RequireProfile()).Get("/", deps.profile.Profile)

				r.Route("/keys", func(r chi.Router) {
					r.Use(middleware.RequireSelf())
					r.Get("/", deps.apiKeys.List)
					r.Post("/", deps.apiKeys.Create)
					r.Delete("/{id}", deps.apiKeys.Revoke)
				})
			})

			r.With(middleware.RequireProfile()).Get("/usage", deps.profile.Usage)
			r.With(middleware.RequireProfile()).Get("/credit", deps.profile.Credit)
			r.With(middleware.RequireCall()).Post("/usage/events", deps.usage.Record)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin())
				r.Get("/users", deps.admin.ListUsers)
				r.Post("/users/{id}/block", deps.admin.BlockUser)
				r.Post("/users/{id}/unblock", deps.admin.UnblockUser)
				r.Patch("/budgets/{id}", deps.admin.UpdateBudget)
			})
		})
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
