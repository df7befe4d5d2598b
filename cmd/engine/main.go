package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/profile-agent/internal/ai"
	"github.com/profile-agent/internal/business"
	"github.com/profile-agent/internal/config"
	"github.com/profile-agent/internal/engine"
	"github.com/profile-agent/internal/replies"
	"github.com/profile-agent/internal/source/rss"
	"github.com/profile-agent/internal/storage"
	"github.com/profile-agent/internal/storage/sqlite"
	"github.com/profile-agent/pkg/cache"
	"github.com/profile-agent/pkg/logger"
	"github.com/profile-agent/pkg/ratelimit"
	"github.com/profile-agent/pkg/resilience"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	repo    storage.Repository
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "profile-engine",
		Short: "Background automation engine for Business Profile locations",
		Long: `Runs the content publishing and review auto-reply loops in the
background. This daemon should be run as a service for autonomous operation.`,
		RunE: runEngine,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runEngine(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting Business Profile automation engine")

	// Initialize storage
	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Start health check server for the hosting platform
	go startHealthServer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared infrastructure
	limiter := ratelimit.NewDefaultLimiter()
	apiCache := cache.New()
	wrapper := resilience.New(log)

	// Warm the cache from the last persisted snapshot
	flusher := engine.NewFlusher(apiCache, repo, cfg.Engine.FlushInterval, log)
	if err := flusher.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache restore failed; starting cold")
	}

	// Upstream clients
	aiClient := ai.NewClient(cfg.Anthropic, limiter, log)
	oauthManager := business.NewOAuthManager(cfg.Google, repo, log)
	profileClient := business.NewClient(oauthManager, limiter, apiCache, cfg.Google.AccountID, log)

	// Optional industry-news hook for post generation
	var hooks engine.HookSource
	if cfg.Sources.RSS.Enabled {
		hooks = rss.New(cfg.Sources.RSS, limiter, log)
	}

	// Tasks and their poll loops
	contentTask := engine.NewContentTask(
		repo, aiClient, profileClient, hooks, wrapper,
		cfg.Engine.CallTimeout, cfg.Engine.TestMode, log,
	)
	replyProcessor := replies.New(repo, profileClient, profileClient, aiClient, wrapper, log)
	reviewTask := engine.NewReviewTask(repo, replyProcessor, cfg.Engine.CallTimeout, log)

	contentPoller := engine.NewPoller(contentTask, cfg.Engine.ContentPollInterval, log)
	reviewPoller := engine.NewPoller(reviewTask, cfg.Engine.ReviewPollInterval, log)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		contentPoller.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		reviewPoller.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		flusher.Start(ctx)
	}()

	// Nightly maintenance: prune old ledger rows and expired cache rows
	c := cron.New(cron.WithLogger(cronLogger{log}))
	_, err = c.AddFunc(cfg.Engine.CleanupCron, runMaintenance)
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance job: %w", err)
	}
	c.Start()
	log.Info().Str("cron", cfg.Engine.CleanupCron).Msg("Maintenance job scheduled")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info().Msg("Shutting down engine")
	c.Stop()
	wg.Wait()

	return nil
}

// runMaintenance prunes ledger rows past the retention window and cache
// rows past their TTL.
func runMaintenance() {
	ctx := context.Background()

	cutoff := time.Now().AddDate(0, 0, -cfg.Engine.LedgerRetentionDays)
	pruned, err := repo.PruneProcessedReviews(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Ledger prune failed")
	}

	expired, err := repo.DeleteExpiredCacheEntries(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("Cache entry cleanup failed")
	}

	log.Info().
		Int64("ledger_pruned", pruned).
		Int64("cache_expired", expired).
		Msg("Maintenance completed")
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Msgf(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Msgf(msg, keysAndValues...)
}

// startHealthServer starts a simple HTTP server for health checks
func startHealthServer() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "10000"
	}

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Business Profile Automation Engine"))
	})

	log.Info().Str("port", port).Msg("Health check server starting")
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Error().Err(err).Msg("Health server failed")
	}
}
