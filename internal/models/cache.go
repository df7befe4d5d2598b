package models

import "time"

// CacheEntry is the persisted form of one in-memory cache record,
// flushed periodically so warm reads survive a restart. The schema
// version lives inside CacheKey itself.
type CacheEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CacheKey  string    `gorm:"uniqueIndex;not null" json:"cache_key"`
	Value     []byte    `gorm:"type:blob" json:"value"`
	WrittenAt time.Time `gorm:"not null" json:"written_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

func (CacheEntry) TableName() string {
	return "cache_entries"
}
