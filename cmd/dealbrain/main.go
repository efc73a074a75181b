// Deal Brain - Explainable price intelligence for hardware listings.
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

	"github.com/miethe/deal-brain-sub014/internal/api"
	"github.com/miethe/deal-brain-sub014/internal/bus"
	"github.com/miethe/deal-brain-sub014/internal/cache"
	"github.com/miethe/deal-brain-sub014/internal/domain"
	"github.com/miethe/deal-brain-sub014/internal/fields"
	"github.com/miethe/deal-brain-sub014/internal/repository"
	"github.com/miethe/deal-brain-sub014/internal/rules"
	"github.com/miethe/deal-brain-sub014/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("DEALBRAIN_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting deal brain",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("DEALBRAIN_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	if path := os.Getenv("DEALBRAIN_RULESETS"); path != "" {
		cfg.RulesetPath = path
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"ruleset_path", cfg.RulesetPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Valuation Engine over the registered field schema
	resolver := fields.NewResolver(fields.DefaultSchema())
	engine := rules.NewEngine(resolver, cfg.Engine)

	// Load rulesets from the configured file. Missing file is not fatal:
	// rulesets can be supplied inline per request.
	activeRuleset := os.Getenv("DEALBRAIN_ACTIVE_RULESET")
	if rulesets, err := rules.LoadRulesetsFile(cfg.RulesetPath); err != nil {
		slog.Warn("no rulesets loaded", "path", cfg.RulesetPath, "error", err)
	} else {
		if err := engine.ReloadRulesets(rulesets); err != nil {
			slog.Error("failed to load rulesets", "error", err)
			os.Exit(1)
		}
		if activeRuleset == "" {
			if loaded := engine.GetLoadedRulesets(); len(loaded) > 0 {
				activeRuleset = loaded[0].ID
			}
		}
	}
	slog.Info("valuation engine initialized",
		"rulesets", engine.RulesetCount(),
		"active_ruleset", activeRuleset,
	)

	// Initialize async Worker for the ingestion pipeline
	var asyncWorker *worker.Worker
	if activeRuleset != "" && (cfg.Tier == domain.TierPro || os.Getenv("DEALBRAIN_ASYNC_WORKER") == "true") {
		asyncWorker = worker.NewWorker(busImpl, repo, engine, worker.Config{
			RulesetID:           activeRuleset,
			RepriceThresholdPct: cfg.Engine.RepriceThresholdPct,
		})
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "ruleset_id", activeRuleset)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, cfg.RulesetPath, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("deal brain is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("deal brain shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ============================================")
	fmt.Println("               DEAL BRAIN")
	fmt.Println("     Hardware Listing Valuation Engine")
	fmt.Println("  ============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /evaluate                  - Value a listing")
	fmt.Println("    POST /evaluate/batch            - Value a batch of listings")
	fmt.Println("    GET  /valuations/{id}           - Get valuation by ID")
	fmt.Println("    GET  /listings/{id}/valuations  - Valuation history for a listing")
	fmt.Println("    GET  /rulesets                  - List loaded rulesets")
	fmt.Println("    POST /rulesets/validate         - Validate a ruleset definition")
	fmt.Println("    POST /rulesets/reload           - Hot-reload rulesets from file")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println()
}
