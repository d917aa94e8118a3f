package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codevault/internal/config"
	pg "codevault/internal/infra/db/postgres"
	"codevault/internal/infra/logging"
	"codevault/internal/infra/metrics"
	red "codevault/internal/infra/redis"
	"codevault/internal/infra/sched"
	"codevault/internal/infra/web"
	"codevault/internal/usecase"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// ---- Redis (optional, redemption rate limiter only) ----
	var limiter *red.RateLimiter
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisClient.Close()
		limiter = red.NewRateLimiter(redisClient)
	} else {
		logger.Warn().Msg("redis not configured; redemption rate limiting disabled")
	}

	// ---- Repositories & use cases ----
	codeRepo := pg.NewCodeRepo(pool)
	txm := pg.NewTxManager(pool)
	generator := usecase.NewCodeGenerator(codeRepo, cfg.Codes.MaxAttempts, cfg.Codes.GroupSize)
	codeUC := usecase.NewCodeUseCase(codeRepo, generator, cfg.Codes.DefaultLength, cfg.Codes.MaxQuantity, logger)
	statsUC := usecase.NewStatsUseCase(codeRepo, txm, logger)

	// ---- Background stats refresher ----
	statsWorker := sched.NewStatsWorker(cfg.Stats.RefreshInterval(), statsUC, pool, logger)
	go func() {
		if err := statsWorker.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("stats worker stopped")
		}
	}()

	// ---- HTTP API ----
	auth := web.NewAuthManager(cfg.Auth.HMACSecret)
	srv := web.NewServer(codeUC, statsUC, auth, limiter, cfg.Codes, logger)
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("API server stopped")
			cancel()
		}
	}()

	// ---- Metrics endpoint ----
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler: adminMux,
	}
	go func() {
		logger.Info().Int("port", cfg.Admin.Port).Msg("metrics server listening")
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)
	cancel()
}
