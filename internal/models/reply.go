package models

import "time"

// ReviewReplyConfig holds per-location settings for automatic review
// replies. One row per location.
type ReviewReplyConfig struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	LocationID string `gorm:"uniqueIndex;not null" json:"location_id"`

	Enabled          bool `gorm:"default:false" json:"enabled"`
	AutoReplyEnabled bool `gorm:"default:false;index" json:"auto_reply_enabled"`

	// ReplyTemplate supports {businessName}, {reviewerName}, {rating} and
	// {comment} placeholders. Empty means reply text is generated.
	ReplyTemplate string `gorm:"type:text" json:"reply_template"`

	// Inclusive rating bounds; nil means unbounded on that side.
	MinRating *int `json:"min_rating"`
	MaxRating *int `json:"max_rating"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReviewStatus represents the terminal (or in-flight) state of a review
// in the processing ledger.
type ReviewStatus string

const (
	ReviewStatusSkipped     ReviewStatus = "skipped"
	ReviewStatusReplying    ReviewStatus = "replying"
	ReviewStatusReplied     ReviewStatus = "replied"
	ReviewStatusReplyFailed ReviewStatus = "reply_failed"
)

// ProcessedReview is the idempotency ledger: one row per
// (locationID, reviewID) pair ever considered. Its presence is the sole
// authority on whether a review is skipped on later polls; the status
// field records the outcome for auditing.
type ProcessedReview struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	LocationID  string       `gorm:"uniqueIndex:ux_location_review,priority:1;not null" json:"location_id"`
	ReviewID    string       `gorm:"uniqueIndex:ux_location_review,priority:2;not null" json:"review_id"`
	Status      ReviewStatus `gorm:"not null" json:"status"`
	Detail      string       `json:"detail"` // skip reason or reply error
	ProcessedAt time.Time    `gorm:"autoCreateTime;index" json:"processed_at"`
}
