package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profile-agent/internal/models"
	"github.com/profile-agent/internal/replies"
	"github.com/profile-agent/pkg/logger"
)

type fakeProcessor struct {
	result *replies.Result
	err    error

	calls         []string // location IDs in processing order
	businessNames []string
}

func (f *fakeProcessor) ProcessLocation(ctx context.Context, cfg *models.ReviewReplyConfig, businessName string) (*replies.Result, error) {
	f.calls = append(f.calls, cfg.LocationID)
	f.businessNames = append(f.businessNames, businessName)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestReviewDueListsOnlyAutoReplyLocations(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveReviewReplyConfig(ctx, &models.ReviewReplyConfig{
		LocationID: "loc-on", Enabled: true, AutoReplyEnabled: true,
	}))
	require.NoError(t, repo.SaveReviewReplyConfig(ctx, &models.ReviewReplyConfig{
		LocationID: "loc-manual", Enabled: true, AutoReplyEnabled: false,
	}))
	require.NoError(t, repo.SaveReviewReplyConfig(ctx, &models.ReviewReplyConfig{
		LocationID: "loc-off", Enabled: false, AutoReplyEnabled: true,
	}))

	task := NewReviewTask(repo, &fakeProcessor{result: &replies.Result{}}, time.Minute, logger.Discard())
	jobs, err := task.Due(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "loc-on", jobs[0].LocationID)
}

func TestReviewExecuteResolvesBusinessName(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	auto := models.NewAutomationConfig("loc-1", "Blue Bakery")
	require.NoError(t, repo.SaveAutomationConfig(ctx, auto))
	cfg := &models.ReviewReplyConfig{LocationID: "loc-1", Enabled: true, AutoReplyEnabled: true}
	require.NoError(t, repo.SaveReviewReplyConfig(ctx, cfg))

	proc := &fakeProcessor{result: &replies.Result{Fetched: 3, Replied: 1}}
	task := NewReviewTask(repo, proc, time.Minute, logger.Discard())

	task.Execute(ctx, cfg)

	require.Len(t, proc.calls, 1)
	assert.Equal(t, "loc-1", proc.calls[0])
	assert.Equal(t, "Blue Bakery", proc.businessNames[0])
}

func TestReviewExecuteToleratesMissingAutomationConfig(t *testing.T) {
	repo := newTestRepo(t)
	cfg := &models.ReviewReplyConfig{LocationID: "loc-orphan", Enabled: true, AutoReplyEnabled: true}
	require.NoError(t, repo.SaveReviewReplyConfig(context.Background(), cfg))

	proc := &fakeProcessor{result: &replies.Result{}}
	task := NewReviewTask(repo, proc, time.Minute, logger.Discard())

	task.Execute(context.Background(), cfg)

	require.Len(t, proc.calls, 1)
	assert.Equal(t, "", proc.businessNames[0])
}

func TestReviewExecuteSwallowsProcessorError(t *testing.T) {
	repo := newTestRepo(t)
	cfg := &models.ReviewReplyConfig{LocationID: "loc-1", Enabled: true, AutoReplyEnabled: true}
	require.NoError(t, repo.SaveReviewReplyConfig(context.Background(), cfg))

	proc := &fakeProcessor{err: assert.AnError}
	task := NewReviewTask(repo, proc, time.Minute, logger.Discard())

	require.NotPanics(t, func() {
		task.Execute(context.Background(), cfg)
	})
}
