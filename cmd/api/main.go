package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/maraichr/pictor/internal/api"
	"github.com/maraichr/pictor/internal/auth"
	"github.com/maraichr/pictor/internal/caption"
	"github.com/maraichr/pictor/internal/config"
	"github.com/maraichr/pictor/internal/progress"
	"github.com/maraichr/pictor/internal/store"
	minioclient "github.com/maraichr/pictor/internal/store/minio"
	"github.com/maraichr/pictor/internal/store/postgres"
	vk "github.com/maraichr/pictor/internal/store/valkey"
	"github.com/maraichr/pictor/internal/uploader"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize database pool
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	s := store.New(pool)

	deps := &api.RouterDeps{Bulk: cfg.Bulk}

	// MinIO (optional, enables uploads)
	mc, err := minioclient.NewClient(cfg.MinIO)
	if err != nil {
		logger.Warn("minio connection failed, uploads disabled", slog.String("error", err.Error()))
	} else {
		if err := mc.EnsureBucket(ctx); err != nil {
			logger.Warn("minio ensure bucket failed", slog.String("error", err.Error()))
		}
		deps.MinIO = mc
		logger.Info("connected to minio", slog.String("bucket", mc.Bucket()))
	}

	// Valkey (optional, enables the caption cache)
	vkClient, err := vk.NewClient(cfg.Valkey)
	if err != nil {
		logger.Warn("valkey connection failed, caption cache disabled", slog.String("error", err.Error()))
	} else {
		deps.Cache = caption.NewCache(vkClient)
		defer vkClient.Close()
		logger.Info("connected to valkey")
	}

	// Captioning (auto-selects: OpenRouter > Bedrock > disabled)
	captioner, err := caption.NewCaptioner(cfg)
	if err != nil {
		logger.Warn("captioner init failed, captioning disabled", slog.String("error", err.Error()))
	} else if captioner != nil {
		deps.Captioner = captioner
		logger.Info("captioning enabled", slog.String("provider", fmt.Sprintf("%T", captioner)), slog.String("model", captioner.ModelID()))
	}

	// Auth (optional, requires AUTH_ENABLED=true + valid issuer URL)
	if cfg.Auth.Enabled {
		if cfg.Auth.IssuerURL == "" {
			logger.Error("AUTH_ENABLED=true but AUTH_ISSUER_URL is empty")
			os.Exit(1)
		}
		verifier, err := auth.NewVerifier(ctx, cfg.Auth.IssuerURL, cfg.Auth.PublicIssuer, cfg.Auth.Audience)
		if err != nil {
			logger.Error("failed to init OIDC verifier", slog.String("error", err.Error()))
			os.Exit(1)
		}
		deps.Verifier = verifier
		logger.Info("OIDC auth enabled", slog.String("issuer", cfg.Auth.IssuerURL))
	}

	// Upload pipeline (requires MinIO)
	registry := progress.NewRegistry(cfg.Progress.EvictGrace, logger)
	deps.Registry = registry
	if deps.MinIO != nil {
		deps.Uploads = uploader.New(logger, deps.MinIO, s, deps.Captioner, deps.Cache, registry, cfg.Bulk.MaxConcurrency)
	}

	router := api.NewRouter(logger, s, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting API server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
