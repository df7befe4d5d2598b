package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/profile-agent/internal/ai"
	"github.com/profile-agent/internal/business"
	"github.com/profile-agent/internal/models"
	"github.com/profile-agent/internal/schedule"
	"github.com/profile-agent/internal/storage"
	"github.com/profile-agent/pkg/logger"
	"github.com/profile-agent/pkg/resilience"
)

// ContentGenerator turns business context into post text.
type ContentGenerator interface {
	GeneratePost(ctx context.Context, req ai.PostRequest) (*ai.GeneratedPost, error)
}

// PostPublisher delivers a post to the business-profile platform.
type PostPublisher interface {
	CreateLocalPost(ctx context.Context, locationID string, post business.LocalPost) (*business.PublishedPost, error)
}

// HookSource offers an optional topical angle for a category.
type HookSource interface {
	Hook(ctx context.Context, category string) string
}

// ContentTask schedules and executes post publishing per location.
type ContentTask struct {
	repo        storage.Repository
	generator   ContentGenerator
	publisher   PostPublisher
	hooks       HookSource // may be nil
	resilience  *resilience.Wrapper
	callTimeout time.Duration
	testMode    bool
	now         func() time.Time
	log         *logger.Logger
}

// NewContentTask creates the content loop's task.
func NewContentTask(
	repo storage.Repository,
	generator ContentGenerator,
	publisher PostPublisher,
	hooks HookSource,
	wrapper *resilience.Wrapper,
	callTimeout time.Duration,
	testMode bool,
	log *logger.Logger,
) *ContentTask {
	return &ContentTask{
		repo:        repo,
		generator:   generator,
		publisher:   publisher,
		hooks:       hooks,
		resilience:  wrapper,
		callTimeout: callTimeout,
		testMode:    testMode,
		now:         time.Now,
		log:         log.WithComponent("content"),
	}
}

// Name implements Task.
func (t *ContentTask) Name() string { return "content" }

// Due returns a job for every enabled location whose schedule has been
// reached. A missing nextRunAt is recomputed and persisted on the spot.
func (t *ContentTask) Due(ctx context.Context, now time.Time) ([]Job, error) {
	configs, err := t.repo.ListEnabledAutomationConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load configs: %w", err)
	}

	var jobs []Job
	for _, cfg := range configs {
		ready, err := t.ready(ctx, cfg, now)
		if err != nil {
			t.quarantine(ctx, cfg, err)
			continue
		}
		if !ready {
			continue
		}

		locationID := cfg.LocationID
		jobs = append(jobs, Job{
			LocationID: locationID,
			Run: func(ctx context.Context) {
				t.Execute(ctx, locationID)
			},
		})
	}
	return jobs, nil
}

// ready decides whether a location is due at now.
func (t *ContentTask) ready(ctx context.Context, cfg *models.AutomationConfig, now time.Time) (bool, error) {
	if cfg.Frequency == models.FrequencyTestFast {
		if !t.testMode {
			return false, nil
		}
		// Fast probe: readiness comes from lastRunAt, not nextRunAt.
		if cfg.LastRunAt == nil {
			return true, nil
		}
		return now.Sub(*cfg.LastRunAt) >= schedule.TestFastInterval, nil
	}

	if cfg.NextRunAt == nil {
		next, err := schedule.Next(schedule.SpecOf(cfg), now)
		if err != nil {
			return false, err
		}
		cfg.NextRunAt = &next
		if err := t.repo.SaveAutomationConfig(ctx, cfg); err != nil {
			t.log.Error().Err(err).Str("location_id", cfg.LocationID).Msg("Failed to persist next run")
		}
		return false, nil
	}

	return !now.Before(*cfg.NextRunAt), nil
}

// quarantine disables a location whose schedule cannot be computed; it
// stays off until the config is corrected.
func (t *ContentTask) quarantine(ctx context.Context, cfg *models.AutomationConfig, cause error) {
	t.log.Error().
		Err(cause).
		Str("location_id", cfg.LocationID).
		Msg("Malformed schedule; disabling location")

	cfg.Enabled = false
	if err := t.repo.SaveAutomationConfig(ctx, cfg); err != nil {
		t.log.Error().Err(err).Str("location_id", cfg.LocationID).Msg("Failed to disable location")
	}
}

// Execute runs one generate-and-publish cycle for a location and
// performs the completion bookkeeping whatever the outcome.
func (t *ContentTask) Execute(ctx context.Context, locationID string) {
	log := t.log.WithLocation(locationID)

	cfg, err := t.repo.GetAutomationConfig(ctx, locationID)
	if err != nil {
		log.Error().Err(err).Msg("Config vanished before execution")
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, t.callTimeout)
	defer cancel()

	runErr := t.run(callCtx, cfg, log)
	t.complete(ctx, cfg, runErr, log)
}

func (t *ContentTask) run(ctx context.Context, cfg *models.AutomationConfig, log *logger.Logger) error {
	category := ""
	if len(cfg.Categories) > 0 {
		category = cfg.Categories[0]
	}

	hook := ""
	if t.hooks != nil && category != "" {
		hook = t.hooks.Hook(ctx, category)
	}

	var post *ai.GeneratedPost
	err := t.resilience.Do(ctx, "generate:"+cfg.LocationID, func(ctx context.Context) error {
		var gerr error
		post, gerr = t.generator.GeneratePost(ctx, ai.PostRequest{
			BusinessName: cfg.BusinessName,
			LocationName: cfg.LocationName,
			WebsiteURL:   cfg.WebsiteURL,
			Category:     category,
			Keywords:     cfg.Keywords,
			NewsHook:     hook,
		})
		return gerr
	})
	if err != nil {
		return fmt.Errorf("generate content: %w", err)
	}

	localPost := business.LocalPost{
		Summary:      post.Summary,
		CallToAction: t.callToAction(cfg, post.SuggestedAction),
	}

	err = t.resilience.Do(ctx, "publish:"+cfg.LocationID, func(ctx context.Context) error {
		_, perr := t.publisher.CreateLocalPost(ctx, cfg.LocationID, localPost)
		return perr
	})
	if err != nil {
		if errors.Is(err, resilience.ErrNotFound) {
			// Location disappeared upstream; treated as a failed run,
			// the operator sees it in the stats.
			return fmt.Errorf("publish: location not found upstream")
		}
		return fmt.Errorf("publish: %w", err)
	}

	log.Info().Msg("Post published")
	return nil
}

// callToAction resolves the configured button, letting the generator's
// suggestion drive the auto type.
func (t *ContentTask) callToAction(cfg *models.AutomationConfig, suggestion string) *business.CallToAction {
	if cfg.ButtonType != models.ButtonAuto || !cfg.ButtonEnabled {
		return business.CallToActionFor(cfg)
	}

	buttonURL := cfg.ButtonURL
	if buttonURL == "" {
		buttonURL = cfg.WebsiteURL
	}

	switch suggestion {
	case "book":
		return &business.CallToAction{ActionType: "BOOK", URL: buttonURL}
	case "order":
		return &business.CallToAction{ActionType: "ORDER", URL: buttonURL}
	case "buy":
		return &business.CallToAction{ActionType: "SHOP", URL: buttonURL}
	case "sign_up":
		return &business.CallToAction{ActionType: "SIGN_UP", URL: buttonURL}
	case "call":
		return &business.CallToAction{ActionType: "CALL"}
	case "none":
		return nil
	default:
		return business.CallToActionFor(cfg)
	}
}

// complete updates stats, lastRunAt and nextRunAt after a run. The
// recomputation happens on failure too, so a failing location retries at
// its next natural slot instead of every tick.
func (t *ContentTask) complete(ctx context.Context, cfg *models.AutomationConfig, runErr error, log *logger.Logger) {
	now := t.now()
	cfg.RecordRun(now, runErr == nil)

	if cfg.Frequency != models.FrequencyTestFast {
		next, err := schedule.Next(schedule.SpecOf(cfg), now)
		if err != nil {
			log.Error().Err(err).Msg("Schedule recomputation failed")
			cfg.NextRunAt = nil
		} else {
			cfg.NextRunAt = &next
		}
	}

	if err := t.repo.SaveAutomationConfig(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("Failed to persist run bookkeeping")
		return
	}

	if runErr != nil {
		log.Error().Err(runErr).
			Int("failure_count", cfg.FailureCount).
			Msg("Run failed")
	} else {
		log.Info().
			Int("total_runs", cfg.TotalRuns).
			Msg("Run completed")
	}
}
