// Package main is the entry point for the agent marketplace service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/flexinfer/agentmarket/internal/api"
	"github.com/flexinfer/agentmarket/internal/attachments"
	"github.com/flexinfer/agentmarket/internal/auth"
	"github.com/flexinfer/agentmarket/internal/catalog"
	"github.com/flexinfer/agentmarket/internal/config"
	"github.com/flexinfer/agentmarket/internal/execution"
	"github.com/flexinfer/agentmarket/internal/flowstore"
	"github.com/flexinfer/agentmarket/internal/session"
	"github.com/flexinfer/agentmarket/internal/tracing"
	"github.com/flexinfer/agentmarket/internal/validator"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("marketplace exited", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting marketplace",
		slog.String("port", cfg.Port),
		slog.String("log_level", cfg.LogLevel),
		slog.Duration("processing_delay", cfg.ProcessingDelay),
		slog.Bool("review_steps", cfg.ReviewSteps),
	)

	tp, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    "agentmarket",
		ServiceVersion: tracing.DefaultConfig().ServiceVersion,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TraceSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	cat, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cat.Close()

	templates, err := loadTemplates(cfg, logger)
	if err != nil {
		return err
	}

	flows, err := openFlowStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer flows.Close()

	files, err := attachments.New(ctx, &attachments.Config{
		Type:    cfg.AttachmentStore,
		MaxSize: cfg.AttachmentMaxSize,
		S3: attachments.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UseSSL:          cfg.S3UseSSL,
			PathPrefix:      cfg.S3PathPrefix,
		},
	})
	if err != nil {
		return err
	}
	logger.Info("attachment store ready", slog.String("type", cfg.AttachmentStore))

	v, err := validator.New()
	if err != nil {
		return fmt.Errorf("create validator: %w", err)
	}

	processor, err := execution.NewProcessor(cfg.Processor)
	if err != nil {
		return err
	}
	sessions := session.NewManager(&session.Config{
		EventMaxLen: cfg.EventMaxLen,
		IdleTTL:     cfg.SessionIdleTTL,
		Machine: &execution.Config{
			ProcessingDelay: cfg.ProcessingDelay,
			ReviewSteps:     cfg.ReviewSteps,
		},
	}, logger,
		execution.WithProcessor(processor),
		execution.WithAgents(cat),
	)
	defer sessions.Close(context.Background())

	if cfg.SessionIdleTTL > 0 {
		go sessions.RunJanitor(ctx, cfg.SessionIdleTTL/2)
	}

	handlers := api.NewHandlers(api.Deps{
		Catalog:     cat,
		Templates:   templates,
		Flows:       flows,
		Sessions:    sessions,
		Attachments: files,
		Validator:   v,
	}, cfg, logger)

	middleware, limiter, err := buildMiddleware(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer limiter.Stop()

	server := api.NewServer(handlers, middleware...)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(server.Router(), "agentmarket"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	// Ending the sessions closes their streams so Shutdown does not wait on them.
	sessions.Close(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

// redisOptions accepts a redis:// URL or a bare host:port address.
func redisOptions(cfg *config.Config) (*redis.Options, error) {
	if strings.Contains(cfg.RedisURL, "://") {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		if cfg.RedisPassword != "" {
			opts.Password = cfg.RedisPassword
		}
		if cfg.RedisDB != 0 {
			opts.DB = cfg.RedisDB
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

func loadTemplates(cfg *config.Config, logger *slog.Logger) (*catalog.TemplateSet, error) {
	templates := catalog.DefaultTemplates()
	if cfg.CatalogFile != "" {
		fromFile, err := catalog.LoadTemplateFile(cfg.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("load templates: %w", err)
		}
		if len(fromFile) > 0 {
			templates = fromFile
		}
	}
	logger.Info("templates loaded", slog.Int("count", len(templates)))
	return catalog.NewTemplateSet(templates), nil
}

func openCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (catalog.Catalog, error) {
	var cat catalog.Catalog
	switch cfg.CatalogStore {
	case "redis":
		opts, err := redisOptions(cfg)
		if err != nil {
			return nil, err
		}
		rc, err := catalog.NewRedisCatalog(&catalog.RedisConfig{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis catalog: %w", err)
		}
		cat = rc
		logger.Info("using Redis catalog", slog.String("addr", opts.Addr))
	default:
		cat = catalog.NewMemoryCatalog()
		logger.Info("using in-memory catalog")
	}

	reqs := catalog.DefaultRequests()
	if cfg.CatalogFile != "" {
		fromFile, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			cat.Close()
			return nil, fmt.Errorf("load catalog file: %w", err)
		}
		reqs = fromFile
	}
	added, err := catalog.Seed(ctx, cat, reqs)
	if err != nil {
		cat.Close()
		return nil, err
	}
	logger.Info("catalog seeded", slog.Int("added", added), slog.Int("listed", len(reqs)))
	return cat, nil
}

func openFlowStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (flowstore.FlowStore, error) {
	switch cfg.FlowStore {
	case "redis":
		opts, err := redisOptions(cfg)
		if err != nil {
			return nil, err
		}
		store, err := flowstore.NewRedisStore(opts)
		if err != nil {
			return nil, fmt.Errorf("open redis flow store: %w", err)
		}
		logger.Info("using Redis flow store", slog.String("addr", opts.Addr))
		return store, nil
	case "postgres":
		store, err := flowstore.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres flow store: %w", err)
		}
		logger.Info("using Postgres flow store")
		return store, nil
	default:
		logger.Info("using in-memory flow store")
		return flowstore.NewMemoryStore(), nil
	}
}

// buildMiddleware assembles authentication and rate limiting. Auth runs first
// so the limiter can key on the caller's subject.
func buildMiddleware(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]mux.MiddlewareFunc, *auth.PerClientRateLimiter, error) {
	var verifiers auth.ChainVerifier
	if cfg.AuthHMACSecret != "" {
		hv, err := auth.NewHMACVerifier([]byte(cfg.AuthHMACSecret), cfg.AuthIssuer)
		if err != nil {
			return nil, nil, fmt.Errorf("create token verifier: %w", err)
		}
		verifiers = append(verifiers, hv)
	}
	if cfg.OIDCEnabled {
		op, err := auth.NewOIDCProvider(ctx, &auth.OIDCConfig{
			Issuer:       cfg.OIDCIssuer,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create OIDC provider: %w", err)
		}
		verifiers = append(verifiers, op)
		logger.Info("OIDC authentication enabled", slog.String("issuer", cfg.OIDCIssuer))
	}

	authn := auth.NewMiddleware(verifiers, &auth.MiddlewareConfig{
		Enabled:     cfg.AuthEnabled(),
		ErrorWriter: api.WriteError,
		Logger:      logger,
	})

	rlCfg := auth.DefaultRateLimitConfig()
	rlCfg.RequestsPerSecond = cfg.RateLimitRPS
	rlCfg.Burst = cfg.RateLimitBurst
	rlCfg.ErrorWriter = api.WriteError
	limiter := auth.NewPerClientRateLimiter(rlCfg)

	if !cfg.AuthEnabled() {
		logger.Warn("authentication disabled; all API routes are public")
	}
	return []mux.MiddlewareFunc{authn.Handler, limiter.Handler}, limiter, nil
}
