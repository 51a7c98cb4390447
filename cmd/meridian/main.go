package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kocoro-lab/Meridian/internal/agents"
	"github.com/Kocoro-lab/Meridian/internal/budget"
	"github.com/Kocoro-lab/Meridian/internal/cache"
	"github.com/Kocoro-lab/Meridian/internal/config"
	"github.com/Kocoro-lab/Meridian/internal/evaluator"
	"github.com/Kocoro-lab/Meridian/internal/health"
	"github.com/Kocoro-lab/Meridian/internal/llm"
	"github.com/Kocoro-lab/Meridian/internal/orchestrator"
	"github.com/Kocoro-lab/Meridian/internal/search"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	var (
		query          = flag.String("query", "", "Research question to investigate (required)")
		depth          = flag.String("depth", "standard", "Depth preset: quick_scan, standard, deep_investigation")
		reportMode     = flag.String("report-mode", "", "Report mode: technical_whitepaper, executive_summary, risk_assessment, academic_structured")
		strictness     = flag.String("strictness", "", "Evidence strictness: relaxed, factual, moderate, strict")
		contradictions = flag.String("contradictions", "", "Contradiction sensitivity: ignore_minor, flag_all, escalate_on_any")
		threshold      = flag.Float64("confidence-threshold", 0, "Override the preset confidence threshold (0 keeps preset)")
		maxIterations  = flag.Int("max-iterations", 0, "Override the preset iteration cap (0 keeps preset)")
		concurrency    = flag.Int("concurrency", 0, "Max concurrent engine tasks (0 uses config)")
		timeout        = flag.Duration("timeout", 0, "Wall-clock limit for the run (0 uses config)")
		output         = flag.String("output", "", "Write the report JSON to this file instead of stdout")
	)
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: meridian -query \"...\" [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	fileCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.FromEnvOrDefaults(fileCfg)

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cacheOpts := []cache.Option{cache.WithLogger(logger)}
	var rdb *redis.Client
	if cfg.Cache.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("Redis unavailable, falling back to in-process cache only",
				zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		} else {
			cacheOpts = append(cacheOpts, cache.WithRedis(rdb))
		}
	}

	healthMgr := health.NewManager(logger)
	healthMgr.Register(health.NewHTTPChecker("llm", cfg.Services.LLMURL+"/health", true))
	healthMgr.Register(health.NewHTTPChecker("search", cfg.Services.SearchURL+"/health", true))
	if rdb != nil {
		healthMgr.Register(health.NewRedisChecker(rdb))
	}

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.Handle("/health", healthMgr.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Admin server listening", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Warn("Admin server stopped", zap.Error(err))
			}
		}()
	}
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	searchCache := cache.New(cfg.Cache.SearchMaxSize, ttl, append([]cache.Option{cache.WithName("search")}, cacheOpts...)...)
	analysisCache := cache.New(cfg.Cache.AnalysisMaxSize, ttl, append([]cache.Option{cache.WithName("analysis")}, cacheOpts...)...)

	tokenBudget := budget.NewTokenBudget(logger,
		budget.WithLimits(cfg.Budget.PerIterationTokens, cfg.Budget.PerRunTokens),
		budget.WithSoftThreshold(cfg.Budget.SoftThreshold),
	)

	llmClient := llm.NewClient(cfg.Services.LLMURL, tokenBudget, logger)
	searchClient := search.NewClient(cfg.Services.SearchURL, searchCache, logger)

	plannerAgent := agents.NewPlannerAgent(llmClient, logger)
	analystAgent := agents.NewAnalystAgent(llmClient, analysisCache, logger)
	gapAgent := agents.NewGapAgent(llmClient, logger)
	writerAgent := agents.NewWriterAgent(llmClient, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Planner:   plannerAgent,
		Searcher:  searchClient,
		Analyst:   analystAgent,
		Evaluator: evaluator.New(gapAgent, logger),
		Writer:    writerAgent,
		Skeleton:  agents.SkeletonReport,
		Budget:    tokenBudget,
		Config:    cfg,
		Logger:    logger,
	})

	req := orchestrator.Request{
		Query:                    *query,
		DepthMode:                *depth,
		ContradictionSensitivity: *contradictions,
		EvidenceStrictness:       *strictness,
		ReportMode:               *reportMode,
		MaxConcurrentTasks:       *concurrency,
		RunTimeout:               *timeout,
	}
	if *threshold > 0 {
		req.ConfidenceThreshold = threshold
	}
	if *maxIterations > 0 {
		req.MaxIterations = maxIterations
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := orch.Run(ctx, req)
	if err != nil {
		logger.Error("Research run failed", zap.Error(err))
		os.Exit(1)
	}

	snap := tokenBudget.Snapshot()
	logger.Info("Research run complete",
		zap.String("termination_reason", string(report.TerminationReason)),
		zap.Float64("confidence", report.ConfidenceScore),
		zap.Int("iterations", len(report.ResearchTrace)),
		zap.Int("tokens_used", snap.RunUsed),
	)

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Error("Failed to encode report", zap.Error(err))
		os.Exit(1)
	}
	if *output != "" {
		if err := os.WriteFile(*output, encoded, 0o644); err != nil {
			logger.Error("Failed to write report file", zap.String("path", *output), zap.Error(err))
			os.Exit(1)
		}
		logger.Info("Report written", zap.String("path", *output))
		return
	}
	fmt.Println(string(encoded))
}

func buildLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Logging.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	// Report JSON goes to stdout; keep logs on stderr.
	zapCfg.OutputPaths = []string{"stderr"}
	return zapCfg.Build()
}
