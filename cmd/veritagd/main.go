package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"veritag/internal/config"
	"veritag/internal/domain"
	"veritag/internal/infra/db"
	"veritag/internal/infra/feed"
	httpinfra "veritag/internal/infra/http"
	"veritag/internal/infra/policyopa"
	"veritag/internal/infra/ratelimit"
	"veritag/internal/infra/telemetry"
	"veritag/internal/usecase"
)

func main() {
	ctx := context.Background()

	// Existing environment variables win over .env entries.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	telemetry.SetupLogger(cfg.LogLevel)

	tp, err := telemetry.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	store, err := db.NewStore(cfg)
	if err != nil {
		slog.Error("failed to init store", "error", err)
		os.Exit(1)
	}

	tagRepo := db.NewTagRepository(store.DB)
	auditRepo := db.NewAuditEventRepository(store.DB)
	emitter := usecase.NewAuditEmitter(auditRepo, usecase.SystemClock{})

	var waiver domain.WaiverPolicy
	if cfg.WaiverBundlePath != "" {
		engine, err := policyopa.NewEngineFromBundlePath(ctx, cfg.WaiverBundlePath)
		if err != nil {
			slog.Error("failed to load waiver policy bundle", "path", cfg.WaiverBundlePath, "error", err)
			os.Exit(1)
		}
		waiver = engine
	} else {
		waiver = policyopa.NewStatic(cfg.DemoIdentifiers)
	}

	var limiter domain.RateLimiter
	if cfg.RateLimitRequests > 0 {
		if cfg.RedisAddr != "" {
			limiter, err = ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, time.Now)
			if err != nil {
				slog.Error("failed to init redis rate limiter", "addr", cfg.RedisAddr, "error", err)
				os.Exit(1)
			}
		} else {
			limiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{})
		}
	}

	verifyUC := &usecase.VerifyScan{
		Tags:           tagRepo,
		Waiver:         waiver,
		Audit:          emitter,
		Clock:          usecase.SystemClock{},
		StorageTimeout: cfg.StorageTimeout,
		RetryAttempts:  cfg.VerifyRetryAttempts,
	}
	registerUC := &usecase.RegisterTag{
		Tags:  tagRepo,
		Audit: emitter,
		Clock: usecase.SystemClock{},
	}

	if cfg.ImportFeedPath != "" {
		runner := &feed.Runner{
			Import: &usecase.ImportFeed{
				Tags:   tagRepo,
				Source: feed.CSVSource{Path: cfg.ImportFeedPath},
				Audit:  emitter,
				Clock:  usecase.SystemClock{},
			},
			Interval: time.Duration(cfg.ImportIntervalMinutes) * time.Minute,
		}
		go runner.Run(ctx)
	}

	srv := httpinfra.NewServer(cfg, httpinfra.ServerDeps{
		Verify:      verifyUC,
		Register:    registerUC,
		Tags:        tagRepo,
		Audit:       emitter,
		AuditLog:    auditRepo,
		RateLimiter: limiter,
	})

	slog.Info("starting server", "addr", cfg.HTTPAddr)
	if err := srv.Run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
