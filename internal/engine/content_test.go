package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profile-agent/internal/ai"
	"github.com/profile-agent/internal/business"
	"github.com/profile-agent/internal/models"
	"github.com/profile-agent/internal/storage/sqlite"
	"github.com/profile-agent/pkg/logger"
	"github.com/profile-agent/pkg/resilience"
)

type fakeGenerator struct {
	post *ai.GeneratedPost
	err  error
}

func (f *fakeGenerator) GeneratePost(ctx context.Context, req ai.PostRequest) (*ai.GeneratedPost, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.post, nil
}

type fakePublisher struct {
	posts []business.LocalPost
	err   error
}

func (f *fakePublisher) CreateLocalPost(ctx context.Context, locationID string, post business.LocalPost) (*business.PublishedPost, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.posts = append(f.posts, post)
	return &business.PublishedPost{Name: "localPosts/p-1"}, nil
}

func newTestRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newContentTask(t *testing.T, repo *sqlite.Repository, gen *fakeGenerator, pub *fakePublisher, testMode bool) *ContentTask {
	t.Helper()
	return NewContentTask(
		repo,
		gen,
		pub,
		nil,
		resilience.New(logger.Discard()),
		time.Minute,
		testMode,
		logger.Discard(),
	)
}

func savedConfig(t *testing.T, repo *sqlite.Repository, mutate func(*models.AutomationConfig)) *models.AutomationConfig {
	t.Helper()
	cfg := models.NewAutomationConfig("loc-1", "Blue Bakery")
	cfg.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, repo.SaveAutomationConfig(context.Background(), cfg))
	return cfg
}

func TestDueIgnoresDisabledLocations(t *testing.T) {
	repo := newTestRepo(t)
	task := newContentTask(t, repo, &fakeGenerator{}, &fakePublisher{}, false)
	savedConfig(t, repo, func(c *models.AutomationConfig) { c.Enabled = false })

	jobs, err := task.Due(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestDueComputesMissingNextRunWithoutDispatching(t *testing.T) {
	repo := newTestRepo(t)
	task := newContentTask(t, repo, &fakeGenerator{}, &fakePublisher{}, false)
	savedConfig(t, repo, nil)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	jobs, err := task.Due(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, jobs, "first sighting only seeds the schedule")

	cfg, err := repo.GetAutomationConfig(context.Background(), "loc-1")
	require.NoError(t, err)
	require.NotNil(t, cfg.NextRunAt)
	assert.True(t, cfg.NextRunAt.Equal(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)))

	// On the next tick the computed slot has arrived.
	jobs, err = task.Due(context.Background(), time.Date(2026, 3, 10, 9, 0, 1, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestExecuteSuccessRecordsStatsAndAdvancesSchedule(t *testing.T) {
	repo := newTestRepo(t)
	pub := &fakePublisher{}
	gen := &fakeGenerator{post: &ai.GeneratedPost{Summary: "Fresh sourdough daily"}}
	task := newContentTask(t, repo, gen, pub, false)

	finished := time.Date(2026, 3, 10, 9, 0, 5, 0, time.UTC)
	task.now = func() time.Time { return finished }

	past := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	savedConfig(t, repo, func(c *models.AutomationConfig) { c.NextRunAt = &past })

	task.Execute(context.Background(), "loc-1")

	require.Len(t, pub.posts, 1)
	assert.Equal(t, "Fresh sourdough daily", pub.posts[0].Summary)

	cfg, err := repo.GetAutomationConfig(context.Background(), "loc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.TotalRuns)
	assert.Equal(t, 1, cfg.SuccessCount)
	assert.Equal(t, models.RunStatusSuccess, cfg.LastStatus)
	require.NotNil(t, cfg.LastRunAt)
	assert.True(t, cfg.LastRunAt.Equal(finished))
	require.NotNil(t, cfg.NextRunAt)
	assert.True(t, cfg.NextRunAt.Equal(time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)),
		"next slot is tomorrow, past the just-finished run")
}

func TestExecuteFailureStillAdvancesSchedule(t *testing.T) {
	repo := newTestRepo(t)
	pub := &fakePublisher{err: errors.New("upstream down")}
	gen := &fakeGenerator{post: &ai.GeneratedPost{Summary: "x"}}
	task := newContentTask(t, repo, gen, pub, false)

	finished := time.Date(2026, 3, 10, 9, 0, 5, 0, time.UTC)
	task.now = func() time.Time { return finished }

	past := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	savedConfig(t, repo, func(c *models.AutomationConfig) { c.NextRunAt = &past })

	task.Execute(context.Background(), "loc-1")

	cfg, err := repo.GetAutomationConfig(context.Background(), "loc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.TotalRuns)
	assert.Equal(t, 1, cfg.FailureCount)
	assert.Equal(t, models.RunStatusFailed, cfg.LastStatus)
	require.NotNil(t, cfg.NextRunAt, "a failing location retries at its next slot, not every tick")
	assert.True(t, cfg.NextRunAt.After(finished))
}

func TestTestFastRequiresTestMode(t *testing.T) {
	repo := newTestRepo(t)
	savedConfig(t, repo, func(c *models.AutomationConfig) { c.Frequency = models.FrequencyTestFast })

	off := newContentTask(t, repo, &fakeGenerator{}, &fakePublisher{}, false)
	jobs, err := off.Due(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, jobs)

	on := newContentTask(t, repo, &fakeGenerator{}, &fakePublisher{}, true)
	jobs, err = on.Due(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "never-run test-fast location is immediately due")
}

func TestTestFastWaitsOutTheProbeInterval(t *testing.T) {
	repo := newTestRepo(t)
	ran := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	savedConfig(t, repo, func(c *models.AutomationConfig) {
		c.Frequency = models.FrequencyTestFast
		c.LastRunAt = &ran
	})
	task := newContentTask(t, repo, &fakeGenerator{}, &fakePublisher{}, true)

	jobs, err := task.Due(context.Background(), ran.Add(10*time.Second))
	require.NoError(t, err)
	assert.Empty(t, jobs)

	jobs, err = task.Due(context.Background(), ran.Add(31*time.Second))
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestMalformedScheduleDisablesLocation(t *testing.T) {
	repo := newTestRepo(t)
	task := newContentTask(t, repo, &fakeGenerator{}, &fakePublisher{}, false)
	savedConfig(t, repo, func(c *models.AutomationConfig) {
		c.Frequency = models.FrequencyCustom
		c.CustomTimes = nil
	})

	jobs, err := task.Due(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, jobs)

	cfg, err := repo.GetAutomationConfig(context.Background(), "loc-1")
	require.NoError(t, err)
	assert.False(t, cfg.Enabled, "location stays off until the schedule is corrected")
}

func TestExecuteForwardsConfiguredButton(t *testing.T) {
	repo := newTestRepo(t)
	pub := &fakePublisher{}
	gen := &fakeGenerator{post: &ai.GeneratedPost{Summary: "Order today"}}
	task := newContentTask(t, repo, gen, pub, false)
	task.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 5, 0, time.UTC) }

	past := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	savedConfig(t, repo, func(c *models.AutomationConfig) {
		c.NextRunAt = &past
		c.ButtonEnabled = true
		c.ButtonType = models.ButtonOrder
		c.ButtonURL = "https://bluebakery.example/order"
	})

	task.Execute(context.Background(), "loc-1")

	require.Len(t, pub.posts, 1)
	require.NotNil(t, pub.posts[0].CallToAction)
	assert.Equal(t, "ORDER", pub.posts[0].CallToAction.ActionType)
	assert.Equal(t, "https://bluebakery.example/order", pub.posts[0].CallToAction.URL)
}
