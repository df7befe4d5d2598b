package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/profile-agent/internal/models"
	"github.com/profile-agent/internal/replies"
	"github.com/profile-agent/internal/storage"
	"github.com/profile-agent/pkg/logger"
	"github.com/profile-agent/pkg/resilience"
)

// LocationProcessor handles one location's reviews for a tick.
type LocationProcessor interface {
	ProcessLocation(ctx context.Context, cfg *models.ReviewReplyConfig, businessName string) (*replies.Result, error)
}

// ReviewTask scans every auto-reply location on each tick. Unlike the
// content task there is no per-location schedule; the dedup ledger makes
// repeated scans cheap and safe.
type ReviewTask struct {
	repo        storage.Repository
	processor   LocationProcessor
	callTimeout time.Duration
	log         *logger.Logger
}

// NewReviewTask creates the review loop's task.
func NewReviewTask(repo storage.Repository, processor LocationProcessor, callTimeout time.Duration, log *logger.Logger) *ReviewTask {
	return &ReviewTask{
		repo:        repo,
		processor:   processor,
		callTimeout: callTimeout,
		log:         log.WithComponent("reviews"),
	}
}

// Name implements Task.
func (t *ReviewTask) Name() string { return "reviews" }

// Due returns a job for every location with auto-reply switched on.
func (t *ReviewTask) Due(ctx context.Context, now time.Time) ([]Job, error) {
	configs, err := t.repo.ListAutoReplyConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reply configs: %w", err)
	}

	var jobs []Job
	for _, cfg := range configs {
		cfg := cfg
		jobs = append(jobs, Job{
			LocationID: cfg.LocationID,
			Run: func(ctx context.Context) {
				t.Execute(ctx, cfg)
			},
		})
	}
	return jobs, nil
}

// Execute processes one location's reviews.
func (t *ReviewTask) Execute(ctx context.Context, cfg *models.ReviewReplyConfig) {
	log := t.log.WithLocation(cfg.LocationID)

	businessName := ""
	if auto, err := t.repo.GetAutomationConfig(ctx, cfg.LocationID); err == nil {
		businessName = auto.BusinessName
	}

	callCtx, cancel := context.WithTimeout(ctx, t.callTimeout)
	defer cancel()

	result, err := t.processor.ProcessLocation(callCtx, cfg, businessName)
	if err != nil {
		if resilience.IsSuspended(err) {
			log.Debug().Err(err).Msg("Review path suspended; will retry after cooldown")
		} else {
			log.Error().Err(err).Msg("Review scan failed")
		}
		return
	}

	if result.Replied > 0 || result.Failed > 0 {
		log.Info().
			Int("fetched", result.Fetched).
			Int("skipped", result.Skipped).
			Int("replied", result.Replied).
			Int("failed", result.Failed).
			Msg("Review scan completed")
	}
}
