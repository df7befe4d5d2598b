package storage

import (
	"context"
	"errors"
	"time"

	"github.com/profile-agent/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for data persistence
type Repository interface {
	// Automation config operations
	GetAutomationConfig(ctx context.Context, locationID string) (*models.AutomationConfig, error)
	ListAutomationConfigs(ctx context.Context) ([]*models.AutomationConfig, error)
	ListEnabledAutomationConfigs(ctx context.Context) ([]*models.AutomationConfig, error)
	SaveAutomationConfig(ctx context.Context, cfg *models.AutomationConfig) error

	// Review reply config operations
	GetReviewReplyConfig(ctx context.Context, locationID string) (*models.ReviewReplyConfig, error)
	ListAutoReplyConfigs(ctx context.Context) ([]*models.ReviewReplyConfig, error)
	SaveReviewReplyConfig(ctx context.Context, cfg *models.ReviewReplyConfig) error

	// Idempotency ledger operations. CreateProcessedReview is
	// existence-check-then-insert: inserting an already-present
	// (locationID, reviewID) pair fails.
	HasProcessedReview(ctx context.Context, locationID, reviewID string) (bool, error)
	CreateProcessedReview(ctx context.Context, rec *models.ProcessedReview) error
	UpdateProcessedReviewStatus(ctx context.Context, locationID, reviewID string, status models.ReviewStatus, detail string) error
	PruneProcessedReviews(ctx context.Context, before time.Time) (int64, error)

	// Cache snapshot operations
	SaveCacheSnapshot(ctx context.Context, entries []models.CacheEntry) error
	LoadCacheSnapshot(ctx context.Context) ([]models.CacheEntry, error)
	DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error)

	// OAuth token operations
	SaveToken(ctx context.Context, token *models.OAuthToken) error
	GetToken(ctx context.Context, provider string) (*models.OAuthToken, error)

	// DeleteLocation removes a location's automation config, reply
	// config and ledger entries in one transaction (disconnect cascade).
	DeleteLocation(ctx context.Context, locationID string) error

	// Maintenance
	Close() error
	Migrate() error
}
