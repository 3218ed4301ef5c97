package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httpadapter "ecomverify/internal/adapters/http"
	"ecomverify/internal/adapters/memory"
	pg "ecomverify/internal/adapters/postgres"
	rediscache "ecomverify/internal/adapters/redis"
	"ecomverify/internal/config"
	"ecomverify/internal/logger"
	"ecomverify/internal/ports"
	"ecomverify/internal/risk"
	sentryutil "ecomverify/internal/sentry"
	"ecomverify/internal/services/analyzer"
	"ecomverify/internal/services/reports"
	"ecomverify/internal/workers/analysisrunner"
)

func main() {
	cfg, cfgErr := config.Load()
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(err)
	}
	defer logger.Sync()
	sentryutil.Init(cfg)
	defer sentryutil.Flush()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store  ports.AnalysisRepository
		jobs   ports.JobRepository
		cache  ports.ResultCache
		checks = map[string]ports.Pinger{}
	)

	switch {
	case errors.Is(cfgErr, config.ErrNoDatabase):
		logger.Warn("DATABASE_URL not set, using the in-memory store")
		mem := memory.New()
		store, jobs = mem, mem
	default:
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db connect error", zap.Error(err))
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx, "up"); err != nil {
				logger.Fatal("migrations failed", zap.Error(err))
			}
		}
		store, jobs = db, db
		checks["db"] = db
	}

	if cfg.RedisURL != "" && !cfg.CacheDisabled {
		client, err := rediscache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			// The cache is optional; analyses still work without it.
			logger.Warn("redis unavailable, result cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			c := rediscache.New(client, cfg.CacheTTL)
			cache = c
			checks["cache"] = c
		}
	}

	rules, err := risk.LoadRules(cfg.RulesFile)
	if err != nil {
		logger.Fatal("load rules", zap.Error(err))
	}
	rules = rules.WithUserAgent(cfg.UserAgent).WithProbeBudget(cfg.ProbeBudget)
	engine := risk.NewEngine(rules, nil)

	svc := analyzer.New(engine, store, cache, jobs)
	srv := httpadapter.New(svc, reports.New(store), httpadapter.Options{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Workers:        cfg.AnalysisWorkers,
		Checks:         checks,
	})

	workersDone := make(chan struct{})
	if cfg.AnalysisWorkers > 0 {
		go func() {
			analysisrunner.Run(ctx, jobs, svc, cfg.AnalysisWorkers, cfg.PollInterval)
			close(workersDone)
		}()
		logger.Info("analysis workers started", zap.Int("workers", cfg.AnalysisWorkers))
	} else {
		close(workersDone)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	logger.Info("listening", zap.String("addr", cfg.ListenAddr), zap.String("env", cfg.Env))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	cancel()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		logger.Warn("workers did not stop before the shutdown deadline")
	}
}
