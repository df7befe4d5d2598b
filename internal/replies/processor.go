// Package replies scans a location's reviews and posts owner replies to
// the ones that pass the configured filter, exactly once per review.
package replies

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/profile-agent/internal/business"
	"github.com/profile-agent/internal/models"
	"github.com/profile-agent/internal/storage"
	"github.com/profile-agent/pkg/logger"
	"github.com/profile-agent/pkg/resilience"
)

// ReviewSource lists the current reviews for a location.
type ReviewSource interface {
	ListReviews(ctx context.Context, locationID string) ([]business.Review, error)
}

// CachedReviewSource is an optional ReviewSource extension serving the
// last fetched review set without touching the upstream.
type CachedReviewSource interface {
	CachedReviews(locationID string) ([]business.Review, bool)
}

// ReplyTransport delivers an owner reply upstream.
type ReplyTransport interface {
	PostReply(ctx context.Context, locationID, reviewID, comment string) error
}

// ReplyGenerator produces reply text when no template is configured.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, businessName, reviewerName string, rating int, comment string) (string, error)
}

// Processor drives review deduplication and auto-reply for one tick.
type Processor struct {
	repo       storage.Repository
	source     ReviewSource
	transport  ReplyTransport
	generator  ReplyGenerator
	resilience *resilience.Wrapper
	log        *logger.Logger
}

// New creates a processor.
func New(
	repo storage.Repository,
	source ReviewSource,
	transport ReplyTransport,
	generator ReplyGenerator,
	wrapper *resilience.Wrapper,
	log *logger.Logger,
) *Processor {
	return &Processor{
		repo:       repo,
		source:     source,
		transport:  transport,
		generator:  generator,
		resilience: wrapper,
		log:        log.WithComponent("replies"),
	}
}

// Result summarizes one location pass.
type Result struct {
	Fetched int
	Skipped int
	Replied int
	Failed  int
}

// ProcessLocation fetches the location's reviews and handles every one
// not yet in the ledger. The ledger existence check runs before any
// filtering, so a review rejected on an earlier pass is never
// reconsidered.
func (p *Processor) ProcessLocation(ctx context.Context, cfg *models.ReviewReplyConfig, businessName string) (*Result, error) {
	log := p.log.WithLocation(cfg.LocationID)

	var reviews []business.Review
	err := p.resilience.Do(ctx, "reviews:"+cfg.LocationID, func(ctx context.Context) error {
		var ferr error
		reviews, ferr = p.source.ListReviews(ctx, cfg.LocationID)
		return ferr
	})
	if err != nil {
		if err == resilience.ErrNotFound {
			// Location has no reviews yet; nothing to do.
			return &Result{}, nil
		}
		// A suspended fetch path can still make progress on the last
		// cached set; the ledger makes reprocessing it safe.
		if resilience.IsSuspended(err) {
			if src, ok := p.source.(CachedReviewSource); ok {
				if cached, hit := src.CachedReviews(cfg.LocationID); hit {
					log.Debug().Msg("Review fetch suspended; using cached reviews")
					reviews = cached
					err = nil
				}
			}
		}
		if err != nil {
			return nil, fmt.Errorf("fetch reviews: %w", err)
		}
	}

	result := &Result{Fetched: len(reviews)}
	for _, review := range reviews {
		if review.ReviewID == "" {
			continue
		}

		processed, err := p.repo.HasProcessedReview(ctx, cfg.LocationID, review.ReviewID)
		if err != nil {
			log.Error().Err(err).Str("review_id", review.ReviewID).Msg("Ledger lookup failed")
			continue
		}
		if processed {
			continue
		}

		switch p.handleNew(ctx, cfg, businessName, review, log) {
		case models.ReviewStatusSkipped:
			result.Skipped++
		case models.ReviewStatusReplied:
			result.Replied++
		case models.ReviewStatusReplyFailed:
			result.Failed++
		}
	}

	return result, nil
}

// handleNew applies the acceptance filter and, for accepted reviews,
// generates and posts the reply. The ledger row is written at filter
// decision time: a posting failure afterwards is logged and not retried,
// trading a rare missed reply for a hard no-duplicate-reply guarantee.
func (p *Processor) handleNew(ctx context.Context, cfg *models.ReviewReplyConfig, businessName string, review business.Review, log *logger.Logger) models.ReviewStatus {
	if reason, skip := p.filter(cfg, review); skip {
		if err := p.repo.CreateProcessedReview(ctx, &models.ProcessedReview{
			LocationID: cfg.LocationID,
			ReviewID:   review.ReviewID,
			Status:     models.ReviewStatusSkipped,
			Detail:     reason,
		}); err != nil {
			log.Error().Err(err).Str("review_id", review.ReviewID).Msg("Ledger write failed")
			return ""
		}
		log.Debug().
			Str("review_id", review.ReviewID).
			Str("reason", reason).
			Msg("Review skipped")
		return models.ReviewStatusSkipped
	}

	// Claim the review before posting anything.
	if err := p.repo.CreateProcessedReview(ctx, &models.ProcessedReview{
		LocationID: cfg.LocationID,
		ReviewID:   review.ReviewID,
		Status:     models.ReviewStatusReplying,
	}); err != nil {
		log.Error().Err(err).Str("review_id", review.ReviewID).Msg("Ledger write failed")
		return ""
	}

	replyText, err := p.replyText(ctx, cfg, businessName, review)
	if err == nil {
		err = p.resilience.Do(ctx, "reply:"+cfg.LocationID, func(ctx context.Context) error {
			return p.transport.PostReply(ctx, cfg.LocationID, review.ReviewID, replyText)
		})
	}

	if err != nil {
		log.Error().Err(err).Str("review_id", review.ReviewID).Msg("Reply failed; not retried")
		if uerr := p.repo.UpdateProcessedReviewStatus(ctx, cfg.LocationID, review.ReviewID, models.ReviewStatusReplyFailed, err.Error()); uerr != nil {
			log.Error().Err(uerr).Str("review_id", review.ReviewID).Msg("Ledger status update failed")
		}
		return models.ReviewStatusReplyFailed
	}

	if uerr := p.repo.UpdateProcessedReviewStatus(ctx, cfg.LocationID, review.ReviewID, models.ReviewStatusReplied, ""); uerr != nil {
		log.Error().Err(uerr).Str("review_id", review.ReviewID).Msg("Ledger status update failed")
	}
	log.Info().
		Str("review_id", review.ReviewID).
		Int("rating", review.Rating()).
		Msg("Review replied")
	return models.ReviewStatusReplied
}

// filter returns a skip reason for reviews that should not get a reply.
func (p *Processor) filter(cfg *models.ReviewReplyConfig, review business.Review) (string, bool) {
	if review.HasReply() {
		return "already has a reply", true
	}
	if strings.TrimSpace(review.Comment) == "" {
		return "no review text", true
	}
	rating := review.Rating()
	if cfg.MinRating != nil && rating < *cfg.MinRating {
		return fmt.Sprintf("rating %d below minimum %d", rating, *cfg.MinRating), true
	}
	if cfg.MaxRating != nil && rating > *cfg.MaxRating {
		return fmt.Sprintf("rating %d above maximum %d", rating, *cfg.MaxRating), true
	}
	return "", false
}

func (p *Processor) replyText(ctx context.Context, cfg *models.ReviewReplyConfig, businessName string, review business.Review) (string, error) {
	if cfg.ReplyTemplate != "" {
		return RenderTemplate(cfg.ReplyTemplate, businessName, review), nil
	}
	return p.generator.GenerateReply(ctx, businessName, review.Reviewer.DisplayName, review.Rating(), review.Comment)
}

// RenderTemplate substitutes the supported placeholders into a custom
// reply template.
func RenderTemplate(template, businessName string, review business.Review) string {
	reviewerName := review.Reviewer.DisplayName
	if reviewerName == "" {
		reviewerName = "there"
	}

	replacer := strings.NewReplacer(
		"{businessName}", businessName,
		"{reviewerName}", reviewerName,
		"{rating}", strconv.Itoa(review.Rating()),
		"{comment}", review.Comment,
	)
	return replacer.Replace(template)
}
