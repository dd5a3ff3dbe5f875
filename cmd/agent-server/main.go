// cmd/agent-server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"trenddrop-agent/internal/agent/catalog"
	"trenddrop-agent/internal/agent/dedup"
	"trenddrop-agent/internal/agent/pipeline"
	"trenddrop-agent/internal/agent/provider"
	"trenddrop-agent/internal/agent/quality"
	"trenddrop-agent/internal/agent/scheduler"
	"trenddrop-agent/internal/agent/status"
	"trenddrop-agent/internal/agent/structured"
	"trenddrop-agent/internal/agent/validator"
	"trenddrop-agent/internal/api"
	"trenddrop-agent/internal/common/aws"
	"trenddrop-agent/internal/common/config"
	"trenddrop-agent/internal/common/database"
	"trenddrop-agent/internal/common/logger"
	"trenddrop-agent/internal/common/observability"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting trenddrop agent server...")

	obs := observability.New("agent-server")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis (optional status fan-out) ---
	var redis *database.RedisClient
	if cfg.Database.Redis.Enabled() {
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		zapLog.Info("Redis connected successfully")
	} else {
		zapLog.Info("Redis not configured, status fan-out is in-process only")
	}

	// --- Providers ---
	router := provider.NewRouter(log,
		provider.NewOpenAI(cfg.Providers.OpenAI, log),
		provider.NewGrok(cfg.Providers.Grok, log),
		provider.NewLMStudio(cfg.Providers.LMStudio, log),
	)
	zapLog.Info("LLM providers configured", zap.Strings("providers", router.ConfiguredNames()))

	executor := structured.NewExecutor(router, log)

	// --- Agent components ---
	gateway := catalog.NewPostgresGateway(pg.DB, log)
	index := dedup.NewIndex(log)
	val := validator.New(cfg.Validation, executor, log)
	verifier := quality.NewVerifier(executor, log)

	pipe := pipeline.New(executor, index, val, verifier, gateway, pipeline.Options{
		MinQualityScore: cfg.Agent.MinQualityScore,
		Retries:         cfg.Agent.Retries,
		Temperature:     cfg.Agent.Temperature,
		MaxTokens:       cfg.Agent.MaxTokens,
	}, log)

	bcast := status.NewBroadcaster(log)
	if redis != nil {
		bcast = bcast.WithSink(redis, cfg.Database.Redis.Channel)
	}

	var mailer scheduler.Mailer
	if cfg.Alerts.Enabled {
		sesMailer, err := aws.NewSESMailer(ctx, cfg.Alerts.AWSRegion, cfg.Alerts.FromEmail, cfg.Alerts.ToEmail)
		if err != nil {
			zapLog.Fatal("ses mailer init failed", zap.Error(err))
		}
		mailer = sesMailer
		zapLog.Info("SES error alerting enabled")
	}

	sched := scheduler.New(pipe, gateway, index, bcast, obs, mailer, scheduler.Options{
		BatchSize:   cfg.Agent.BatchSize,
		Interval:    config.GetDuration(cfg.Agent.IntervalMs),
		MaxProducts: cfg.Agent.MaxProducts,
	}, log)

	if err := sched.Initialize(ctx); err != nil {
		zapLog.Fatal("scheduler initialization failed", zap.Error(err))
	}
	zapLog.Info("Agent initialized, dedup index rebuilt from catalog")

	// --- HTTP Control Surface ---
	handler := api.NewHandler(sched, bcast, log)
	engine := api.SetupRouter(cfg, handler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		zapLog.Info("Control server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("control server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping agent...")
	sched.Stop()
	sched.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("control server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Agent server stopped gracefully")
}
