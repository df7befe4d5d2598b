package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Frequency represents how often a location publishes a post
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyAlternate Frequency = "alternate" // every second day
	FrequencyWeekly    Frequency = "weekly"
	FrequencyCustom    Frequency = "custom"
	FrequencyTestFast  Frequency = "test-fast" // 30s probe, verification flows only
)

// ButtonType represents the call-to-action attached to a published post
type ButtonType string

const (
	ButtonAuto      ButtonType = "auto"
	ButtonNone      ButtonType = "none"
	ButtonBook      ButtonType = "book"
	ButtonOrder     ButtonType = "order"
	ButtonBuy       ButtonType = "buy"
	ButtonLearnMore ButtonType = "learnMore"
	ButtonSignUp    ButtonType = "signUp"
	ButtonCallNow   ButtonType = "callNow"
)

// RunStatus represents the outcome of the most recent automation run
type RunStatus string

const (
	RunStatusNever   RunStatus = "never"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// StringSlice is a custom type for storing string arrays as JSON
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	}
	return nil
}

// AutomationConfig holds per-location settings for scheduled post
// publishing. One row per location. LastRunAt, NextRunAt and the stats
// fields are mutated only by the engine, never by configuration editors.
type AutomationConfig struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	LocationID   string      `gorm:"uniqueIndex;not null" json:"location_id"`
	BusinessName string      `gorm:"not null" json:"business_name"`
	LocationName string      `json:"location_name"`
	WebsiteURL   string      `json:"website_url"`
	Categories   StringSlice `gorm:"type:json" json:"categories"`
	Keywords     StringSlice `gorm:"type:json" json:"keywords"`

	// Enabled is the master switch; disabled locations are invisible
	// to the poll loop.
	Enabled bool `gorm:"default:false;index" json:"enabled"`

	Frequency   Frequency   `gorm:"default:'daily'" json:"frequency"`
	TimeOfDay   string      `gorm:"default:'09:00'" json:"time_of_day"` // HH:MM, local time
	CustomTimes StringSlice `gorm:"type:json" json:"custom_times"`

	LastRunAt *time.Time `json:"last_run_at"`
	NextRunAt *time.Time `gorm:"index" json:"next_run_at"`

	// Call-to-action passthrough; forwarded to the publish call unchanged.
	ButtonEnabled bool       `gorm:"default:false" json:"button_enabled"`
	ButtonType    ButtonType `gorm:"default:'auto'" json:"button_type"`
	ButtonURL     string     `json:"button_url"`
	ButtonPhone   string     `json:"button_phone"`

	// Run stats, monotonically updated; reset only by deletion.
	TotalRuns    int       `gorm:"default:0" json:"total_runs"`
	SuccessCount int       `gorm:"default:0" json:"success_count"`
	FailureCount int       `gorm:"default:0" json:"failure_count"`
	LastStatus   RunStatus `gorm:"default:'never'" json:"last_status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecordRun updates stats and lastRunAt after an execution finishes.
func (c *AutomationConfig) RecordRun(finishedAt time.Time, succeeded bool) {
	c.TotalRuns++
	if succeeded {
		c.SuccessCount++
		c.LastStatus = RunStatusSuccess
	} else {
		c.FailureCount++
		c.LastStatus = RunStatusFailed
	}
	t := finishedAt
	c.LastRunAt = &t
}

// NewAutomationConfig creates a config with defaults for a location that
// is being connected for the first time.
func NewAutomationConfig(locationID, businessName string) *AutomationConfig {
	return &AutomationConfig{
		LocationID:   locationID,
		BusinessName: businessName,
		Enabled:      false,
		Frequency:    FrequencyDaily,
		TimeOfDay:    "09:00",
		ButtonType:   ButtonAuto,
		LastStatus:   RunStatusNever,
	}
}
