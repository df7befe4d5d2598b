package replies

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profile-agent/internal/business"
	"github.com/profile-agent/internal/models"
	"github.com/profile-agent/internal/storage/sqlite"
	"github.com/profile-agent/pkg/logger"
	"github.com/profile-agent/pkg/resilience"
)

type fakeSource struct {
	reviews []business.Review
	cached  []business.Review
	err     error
	calls   int
}

func (f *fakeSource) ListReviews(ctx context.Context, locationID string) ([]business.Review, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.reviews, nil
}

func (f *fakeSource) CachedReviews(locationID string) ([]business.Review, bool) {
	return f.cached, f.cached != nil
}

type fakeTransport struct {
	posted map[string]string // reviewID -> text
	err    error
}

func (f *fakeTransport) PostReply(ctx context.Context, locationID, reviewID, comment string) error {
	if f.err != nil {
		return f.err
	}
	if f.posted == nil {
		f.posted = make(map[string]string)
	}
	f.posted[reviewID] = comment
	return nil
}

type fakeGenerator struct {
	reply string
	err   error
}

func (f *fakeGenerator) GenerateReply(ctx context.Context, businessName, reviewerName string, rating int, comment string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type quotaErr struct{}

func (quotaErr) Error() string   { return "quota exceeded" }
func (quotaErr) StatusCode() int { return 429 }

func newTestProcessor(t *testing.T, source *fakeSource, transport *fakeTransport, generator *fakeGenerator) (*Processor, *sqlite.Repository) {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { repo.Close() })

	wrapper := resilience.New(logger.Discard())
	return New(repo, source, transport, generator, wrapper, logger.Discard()), repo
}

func intPtr(v int) *int { return &v }

func review(id string, rating int, comment string) business.Review {
	stars := []string{"", "ONE", "TWO", "THREE", "FOUR", "FIVE"}
	return business.Review{
		ReviewID:   id,
		StarRating: stars[rating],
		Comment:    comment,
		Reviewer:   business.Reviewer{DisplayName: "Ada"},
		CreateTime: time.Now(),
	}
}

func TestReplaySameReviewsPostsOnce(t *testing.T) {
	source := &fakeSource{reviews: []business.Review{review("rev-1", 5, "Great spot")}}
	transport := &fakeTransport{}
	p, _ := newTestProcessor(t, source, transport, &fakeGenerator{reply: "Thanks!"})
	cfg := &models.ReviewReplyConfig{LocationID: "loc-1", Enabled: true, AutoReplyEnabled: true}

	first, err := p.ProcessLocation(context.Background(), cfg, "Blue Bakery")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Replied)

	// Same poll result again: the ledger wins, nothing is posted twice.
	second, err := p.ProcessLocation(context.Background(), cfg, "Blue Bakery")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Replied)
	assert.Equal(t, 0, second.Skipped)
	assert.Len(t, transport.posted, 1)
}

func TestRatingBelowMinimumIsSkippedWithLedgerEntry(t *testing.T) {
	source := &fakeSource{reviews: []business.Review{review("rev-low", 2, "Not great")}}
	transport := &fakeTransport{}
	p, repo := newTestProcessor(t, source, transport, &fakeGenerator{reply: "x"})
	cfg := &models.ReviewReplyConfig{LocationID: "loc-1", MinRating: intPtr(3)}

	result, err := p.ProcessLocation(context.Background(), cfg, "Blue Bakery")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, transport.posted)

	has, err := repo.HasProcessedReview(context.Background(), "loc-1", "rev-low")
	require.NoError(t, err)
	assert.True(t, has, "rejection is terminal and must be recorded")
}

func TestSkippedReviewNotReconsideredAfterFilterChange(t *testing.T) {
	source := &fakeSource{reviews: []business.Review{review("rev-low", 2, "Meh")}}
	transport := &fakeTransport{}
	p, _ := newTestProcessor(t, source, transport, &fakeGenerator{reply: "x"})

	strict := &models.ReviewReplyConfig{LocationID: "loc-1", MinRating: intPtr(3)}
	_, err := p.ProcessLocation(context.Background(), strict, "Blue Bakery")
	require.NoError(t, err)

	// Loosening the filter later does not resurrect the review: the
	// ledger check runs before filtering.
	loose := &models.ReviewReplyConfig{LocationID: "loc-1"}
	result, err := p.ProcessLocation(context.Background(), loose, "Blue Bakery")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Replied)
	assert.Empty(t, transport.posted)
}

func TestEmptyCommentSkipped(t *testing.T) {
	source := &fakeSource{reviews: []business.Review{review("rev-silent", 5, "   ")}}
	transport := &fakeTransport{}
	p, _ := newTestProcessor(t, source, transport, &fakeGenerator{reply: "x"})

	result, err := p.ProcessLocation(context.Background(), &models.ReviewReplyConfig{LocationID: "loc-1"}, "B")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, transport.posted)
}

func TestExistingUpstreamReplySkipped(t *testing.T) {
	r := review("rev-answered", 4, "Nice")
	r.Reply = &business.ReviewReply{Comment: "Thanks for coming!"}
	source := &fakeSource{reviews: []business.Review{r}}
	transport := &fakeTransport{}
	p, _ := newTestProcessor(t, source, transport, &fakeGenerator{reply: "x"})

	result, err := p.ProcessLocation(context.Background(), &models.ReviewReplyConfig{LocationID: "loc-1"}, "B")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, transport.posted)
}

func TestTemplateReply(t *testing.T) {
	source := &fakeSource{reviews: []business.Review{review("rev-1", 5, "Lovely bread")}}
	transport := &fakeTransport{}
	p, _ := newTestProcessor(t, source, transport, &fakeGenerator{err: errors.New("should not be called")})
	cfg := &models.ReviewReplyConfig{
		LocationID:    "loc-1",
		ReplyTemplate: "Thanks {reviewerName}! {businessName} appreciates your {rating}-star review.",
	}

	result, err := p.ProcessLocation(context.Background(), cfg, "Blue Bakery")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Replied)
	assert.Equal(t, "Thanks Ada! Blue Bakery appreciates your 5-star review.", transport.posted["rev-1"])
}

func TestReplyFailureIsTerminalNotRetried(t *testing.T) {
	source := &fakeSource{reviews: []business.Review{review("rev-1", 5, "Great")}}
	transport := &fakeTransport{err: fmt.Errorf("publish: %w", errors.New("boom"))}
	p, repo := newTestProcessor(t, source, transport, &fakeGenerator{reply: "Thanks!"})
	cfg := &models.ReviewReplyConfig{LocationID: "loc-1"}

	result, err := p.ProcessLocation(context.Background(), cfg, "B")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	// Ledger row exists, so the next pass will not attempt again even
	// though no reply was delivered. Explicit policy: never double-reply
	// beats never-miss-a-reply.
	transport.err = nil
	again, err := p.ProcessLocation(context.Background(), cfg, "B")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Replied)
	assert.Empty(t, transport.posted)

	has, err := repo.HasProcessedReview(context.Background(), "loc-1", "rev-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestFetchQuotaErrorPropagatesAndSuspends(t *testing.T) {
	source := &fakeSource{err: &quotaErr{}}
	p, _ := newTestProcessor(t, source, &fakeTransport{}, &fakeGenerator{})
	cfg := &models.ReviewReplyConfig{LocationID: "loc-1"}

	_, err := p.ProcessLocation(context.Background(), cfg, "B")
	require.Error(t, err)
	assert.Equal(t, 1, source.calls)

	// While suspended the upstream is not touched again.
	_, err = p.ProcessLocation(context.Background(), cfg, "B")
	require.Error(t, err)
	assert.Equal(t, 1, source.calls)
}

func TestSuspendedFetchFallsBackToCachedReviews(t *testing.T) {
	source := &fakeSource{
		err:    &quotaErr{},
		cached: []business.Review{review("rev-warm", 5, "Still lovely")},
	}
	transport := &fakeTransport{}
	p, _ := newTestProcessor(t, source, transport, &fakeGenerator{reply: "Thanks!"})
	cfg := &models.ReviewReplyConfig{LocationID: "loc-1"}

	// First pass hits the quota and suspends the fetch path.
	_, err := p.ProcessLocation(context.Background(), cfg, "Blue Bakery")
	require.Error(t, err)
	assert.Equal(t, 1, source.calls)

	// While suspended the cached set still gets processed.
	result, err := p.ProcessLocation(context.Background(), cfg, "Blue Bakery")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls, "upstream stays untouched during cooldown")
	assert.Equal(t, 1, result.Replied)
	assert.Equal(t, "Thanks!", transport.posted["rev-warm"])
}

func TestRenderTemplateAnonymousReviewer(t *testing.T) {
	r := business.Review{ReviewID: "x", StarRating: "FOUR", Comment: "Good"}
	got := RenderTemplate("Hi {reviewerName}, thanks from {businessName}", "Cafe", r)
	assert.Equal(t, "Hi there, thanks from Cafe", got)
}
