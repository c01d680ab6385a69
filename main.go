package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/activities"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/cache"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/config"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/connectors"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/db"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/gap"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/health"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/httpapi"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/llm"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/microplan"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/pricing"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/ratecontrol"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/reanswer"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/registry"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/research"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/schedules"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/temporal"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/tracing"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/validation"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := newLogger(cfg.Service)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	pricing.SetLogger(logger)

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	// Health and metrics come up first so probes answer while Temporal is
	// still being dialled.
	hm := health.NewManager(30*time.Second, logger)
	adminMux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(adminMux)
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Service.AdminPort),
		Handler:      adminMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Admin HTTP server listening", zap.Int("port", cfg.Service.AdminPort))
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()

	dbClient, err := db.NewClient(db.Config{
		DSN:             cfg.Postgres.DSN(),
		MaxConnections:  cfg.Postgres.MaxOpenConns,
		IdleConnections: cfg.Postgres.MaxIdleConns,
		MaxLifetime:     5 * time.Minute,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database client", zap.Error(err))
	}
	defer dbClient.Close()
	_ = hm.RegisterChecker(health.NewDatabaseChecker(dbClient.Wrapper()))

	var synthesisCache llm.ByteStore = cache.NewLocalLRU(512)
	redisStore, err := cache.NewRedisStore(cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Warn("Redis unavailable; synthesis cache is process-local", zap.Error(err))
	} else {
		defer redisStore.Close()
		synthesisCache = redisStore
		_ = hm.RegisterChecker(health.NewRedisChecker(redisStore.Client()))
	}

	completer, err := newCompleter(cfg, synthesisCache, logger)
	if err != nil {
		logger.Fatal("Failed to initialize LLM client", zap.Error(err))
	}

	detector := gap.NewDetector(cfg.GapPolicy, logger)
	limiters := ratecontrol.NewLimiters(cfg.Connectors.Limits)
	capabilities := validation.NewCredentialRegistry(cfg.Credentials)
	service := research.NewService(
		dbClient,
		detector,
		microplan.NewSynthesizer(completer, cfg.Plan, logger).WithSampling(cfg.LLM.MaxTokens, cfg.LLM.Temperature),
		validation.NewValidator(capabilities, cfg.Plan, logger),
		logger,
	)

	gateway := connectors.NewGatewayClient(cfg.Connectors.GatewayURL, cfg.Connectors.Timeout, logger)
	executor := research.NewExecutor(
		dbClient,
		connectors.NewRunner(gateway, limiters, cfg.Connectors.Timeout, logger),
		reanswer.NewClient(cfg.Services.ReanswerURL, cfg.Services.ReanswerTimeout, logger),
		research.ExecutorConfig{
			MaxSnippetChars:   cfg.Execution.MaxSnippetChars,
			ErrorMessageChars: cfg.Execution.ErrorMessageChars,
		},
		logger,
	)
	sweeper := research.NewSweeper(dbClient, logger)
	_ = hm.RegisterChecker(health.NewHTTPChecker("connector-gateway", cfg.Connectors.GatewayURL, false))
	_ = hm.RegisterChecker(health.NewHTTPChecker("reanswer", cfg.Services.ReanswerURL, false))
	_ = hm.RegisterChecker(health.NewBreakerChecker(circuitbreaker.GlobalMetricsCollector.OpenBreakers))

	runtime := config.NewRuntime(cfg, logger)
	runtime.OnChange(func(_, next *config.Config) {
		detector.SetPolicy(next.GapPolicy)
		limiters.Update(next.Connectors.Limits)
	})
	if path := config.FindConfigFile(); path != "" {
		cfgMgr, err := config.NewManager(filepath.Dir(path), logger)
		if err != nil {
			logger.Warn("Config manager init failed", zap.Error(err))
		} else {
			runtime.Attach(cfgMgr, filepath.Base(path))
			cfgMgr.RegisterHandler("pricing.yaml", func(ev config.ChangeEvent) error {
				if ev.Action == "delete" {
					return nil
				}
				return pricing.LoadFile(ev.Path)
			})
			if err := cfgMgr.Start(ctx); err != nil {
				logger.Warn("Config hot reload disabled", zap.Error(err))
			} else {
				defer cfgMgr.Stop()
			}
		}
	}

	acts := activities.NewActivities(executor, sweeper, dbClient, func() (time.Duration, int) {
		cur := runtime.Current()
		return cur.Execution.StaleTimeout(), cur.Retention.Days
	}, logger)

	runner := httpapi.NewSwitchRunner(httpapi.InlineRunner{Executor: executor})
	apiMux := http.NewServeMux()
	httpapi.NewHandler(service, executor, runner, logger).RegisterRoutes(apiMux)
	apiServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.Port),
		Handler:           apiMux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("Micro-research API listening", zap.Int("port", cfg.Service.Port))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Micro-research API failed", zap.Error(err))
		}
	}()

	hm.Start(ctx)
	defer hm.Stop()

	// Temporal client and worker in background; until they are ready plans
	// execute inline in the request goroutine.
	var (
		tClient client.Client
		w       worker.Worker
	)
	temporalReady := make(chan struct{})
	go func() {
		defer close(temporalReady)
		c, err := temporal.Dial(ctx, temporal.Options{Host: cfg.Temporal.Host, Namespace: cfg.Temporal.Namespace}, logger)
		if err != nil {
			logger.Warn("Temporal unavailable; executing plans inline", zap.Error(err))
			return
		}
		tClient = c
		_ = hm.RegisterChecker(health.NewTemporalChecker(c))

		w = worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
			MaxConcurrentActivityExecutionSize:     getEnvOrDefaultInt("WORKER_ACT", 10),
			MaxConcurrentWorkflowTaskExecutionSize: getEnvOrDefaultInt("WORKER_WF", 10),
		})
		registry.New(acts, logger).Register(w)
		if err := w.Start(); err != nil {
			logger.Error("Temporal worker failed to start", zap.Error(err))
			w = nil
			return
		}
		logger.Info("Temporal worker started", zap.String("queue", cfg.Temporal.TaskQueue))
		runner.Set(httpapi.WorkflowRunner{Client: c, TaskQueue: cfg.Temporal.TaskQueue})

		if cfg.Schedules.Enabled {
			sm := schedules.NewManager(c.ScheduleClient(), cfg.Temporal.TaskQueue, 1, logger)
			if err := sm.EnsureDefaults(ctx, schedules.Config{
				SweepCron:     cfg.Schedules.SweepCron,
				RetentionCron: cfg.Schedules.RetentionCron,
				Timezone:      cfg.Schedules.Timezone,
			}); err != nil {
				logger.Error("Failed to ensure maintenance schedules", zap.Error(err))
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down micro-research service")

	cancel()
	<-temporalReady

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", zap.Error(err))
	}
	if w != nil {
		w.Stop()
	}
	if tClient != nil {
		tClient.Close()
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Admin server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Tracer shutdown failed", zap.Error(err))
	}
}

func newLogger(sc config.ServiceConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if sc.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	if sc.LogLevel != "" {
		level, err := zapcore.ParseLevel(sc.LogLevel)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

// newCompleter builds the planner LLM backend. "none" leaves the synthesizer
// on its deterministic fallback table.
func newCompleter(cfg *config.Config, store llm.ByteStore, logger *zap.Logger) (llm.Completer, error) {
	var base llm.Completer
	switch cfg.LLM.Provider {
	case "none":
		return nil, nil
	case "openai":
		c, err := llm.NewOpenAICompleter(llm.OpenAIConfig{
			APIKey:  cfg.Credentials.OpenAIAPIKey,
			BaseURL: cfg.LLM.OpenAIBaseURL,
			Model:   cfg.LLM.Model,
		}, logger)
		if err != nil {
			return nil, err
		}
		base = c
	default:
		base = llm.NewServiceCompleter(cfg.LLM.ServiceURL, "micro_research_plan", cfg.LLM.Timeout, logger)
	}
	if cfg.LLM.CacheTTL <= 0 {
		return base, nil
	}
	return llm.NewCachingCompleter(base, store, "mr:plan:", cfg.LLM.CacheTTL, logger), nil
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
