package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/profile-agent/internal/models"
	"github.com/profile-agent/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.AutomationConfig{},
		&models.ReviewReplyConfig{},
		&models.ProcessedReview{},
		&models.CacheEntry{},
		&models.OAuthToken{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Automation config operations

func (r *Repository) GetAutomationConfig(ctx context.Context, locationID string) (*models.AutomationConfig, error) {
	var cfg models.AutomationConfig
	if err := r.db.WithContext(ctx).Where("location_id = ?", locationID).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *Repository) ListAutomationConfigs(ctx context.Context) ([]*models.AutomationConfig, error) {
	var configs []*models.AutomationConfig
	if err := r.db.WithContext(ctx).Order("location_id").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *Repository) ListEnabledAutomationConfigs(ctx context.Context) ([]*models.AutomationConfig, error) {
	var configs []*models.AutomationConfig
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("location_id").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *Repository) SaveAutomationConfig(ctx context.Context, cfg *models.AutomationConfig) error {
	// Upsert keyed by location_id
	if cfg.ID == 0 {
		var existing models.AutomationConfig
		if err := r.db.WithContext(ctx).Where("location_id = ?", cfg.LocationID).First(&existing).Error; err == nil {
			cfg.ID = existing.ID
			cfg.CreatedAt = existing.CreatedAt
		}
	}
	return r.db.WithContext(ctx).Save(cfg).Error
}

// Review reply config operations

func (r *Repository) GetReviewReplyConfig(ctx context.Context, locationID string) (*models.ReviewReplyConfig, error) {
	var cfg models.ReviewReplyConfig
	if err := r.db.WithContext(ctx).Where("location_id = ?", locationID).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *Repository) ListAutoReplyConfigs(ctx context.Context) ([]*models.ReviewReplyConfig, error) {
	var configs []*models.ReviewReplyConfig
	if err := r.db.WithContext(ctx).
		Where("enabled = ? AND auto_reply_enabled = ?", true, true).
		Order("location_id").
		Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *Repository) SaveReviewReplyConfig(ctx context.Context, cfg *models.ReviewReplyConfig) error {
	if cfg.ID == 0 {
		var existing models.ReviewReplyConfig
		if err := r.db.WithContext(ctx).Where("location_id = ?", cfg.LocationID).First(&existing).Error; err == nil {
			cfg.ID = existing.ID
			cfg.CreatedAt = existing.CreatedAt
		}
	}
	return r.db.WithContext(ctx).Save(cfg).Error
}

// Idempotency ledger operations

func (r *Repository) HasProcessedReview(ctx context.Context, locationID, reviewID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ProcessedReview{}).
		Where("location_id = ? AND review_id = ?", locationID, reviewID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) CreateProcessedReview(ctx context.Context, rec *models.ProcessedReview) error {
	// The unique index on (location_id, review_id) makes duplicate
	// inserts fail; callers rely on that for idempotency.
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repository) UpdateProcessedReviewStatus(ctx context.Context, locationID, reviewID string, status models.ReviewStatus, detail string) error {
	return r.db.WithContext(ctx).
		Model(&models.ProcessedReview{}).
		Where("location_id = ? AND review_id = ?", locationID, reviewID).
		Updates(map[string]interface{}{"status": status, "detail": detail}).Error
}

func (r *Repository) PruneProcessedReviews(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("processed_at < ?", before).
		Delete(&models.ProcessedReview{})
	return result.RowsAffected, result.Error
}

// Cache snapshot operations

func (r *Repository) SaveCacheSnapshot(ctx context.Context, entries []models.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "written_at", "expires_at"}),
		}).
		Create(&entries).Error
}

func (r *Repository) LoadCacheSnapshot(ctx context.Context) ([]models.CacheEntry, error) {
	var entries []models.CacheEntry
	if err := r.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Repository) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.CacheEntry{})
	return result.RowsAffected, result.Error
}

// OAuth token operations

func (r *Repository) SaveToken(ctx context.Context, token *models.OAuthToken) error {
	// Upsert - update if exists, create if not
	var existing models.OAuthToken
	if err := r.db.WithContext(ctx).Where("provider = ?", token.Provider).First(&existing).Error; err == nil {
		token.ID = existing.ID
	}
	return r.db.WithContext(ctx).Save(token).Error
}

func (r *Repository) GetToken(ctx context.Context, provider string) (*models.OAuthToken, error) {
	var token models.OAuthToken
	if err := r.db.WithContext(ctx).Where("provider = ?", provider).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}

// DeleteLocation removes all state owned by one location in a single
// transaction.
func (r *Repository) DeleteLocation(ctx context.Context, locationID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("location_id = ?", locationID).Delete(&models.AutomationConfig{}).Error; err != nil {
			return err
		}
		if err := tx.Where("location_id = ?", locationID).Delete(&models.ReviewReplyConfig{}).Error; err != nil {
			return err
		}
		if err := tx.Where("location_id = ?", locationID).Delete(&models.ProcessedReview{}).Error; err != nil {
			return err
		}
		// Location-scoped cache keys end in ":{locationID}".
		return tx.Where("cache_key LIKE ?", "%:"+locationID).Delete(&models.CacheEntry{}).Error
	})
}

// Ensure Repository implements storage.Repository
var _ storage.Repository = (*Repository)(nil)
