// Package schedule computes when a location's next post is due. It is a
// pure time computation: no storage, no network, and the reference time
// is always passed in.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/profile-agent/internal/models"
)

// TestFastInterval is the fixed offset used by the test-fast frequency.
// It exists for interactive verification flows, not real scheduling.
const TestFastInterval = 30 * time.Second

// Spec is the schedule portion of an automation config.
type Spec struct {
	Frequency   models.Frequency
	TimeOfDay   string   // HH:MM
	CustomTimes []string // HH:MM each; only read for FrequencyCustom
}

// SpecOf extracts the schedule fields from a config.
func SpecOf(cfg *models.AutomationConfig) Spec {
	return Spec{
		Frequency:   cfg.Frequency,
		TimeOfDay:   cfg.TimeOfDay,
		CustomTimes: cfg.CustomTimes,
	}
}

// ComputationError reports a malformed schedule. The owning location is
// left unscheduled until the config is corrected.
type ComputationError struct {
	Reason string
}

func (e *ComputationError) Error() string {
	return "schedule computation: " + e.Reason
}

// Next returns the next due time strictly after now for every frequency
// except test-fast, which is a fixed short offset from now.
func Next(spec Spec, now time.Time) (time.Time, error) {
	switch spec.Frequency {
	case models.FrequencyDaily:
		return nextAtInterval(spec.TimeOfDay, now, 1)
	case models.FrequencyAlternate:
		// Every second day, but a missed slot rolls to tomorrow rather
		// than the day after. This breaks strict two-day spacing once so
		// a missed run does not drift indefinitely.
		return nextAtInterval(spec.TimeOfDay, now, 1)
	case models.FrequencyWeekly:
		return nextAtInterval(spec.TimeOfDay, now, 7)
	case models.FrequencyCustom:
		return nextCustom(spec.CustomTimes, now)
	case models.FrequencyTestFast:
		return now.Add(TestFastInterval), nil
	default:
		return time.Time{}, &ComputationError{Reason: fmt.Sprintf("unknown frequency %q", spec.Frequency)}
	}
}

// nextAtInterval returns today's occurrence of timeOfDay if still ahead,
// otherwise the occurrence rollDays later.
func nextAtInterval(timeOfDay string, now time.Time, rollDays int) (time.Time, error) {
	hour, minute, err := parseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, rollDays)
	}
	return next, nil
}

// nextCustom picks the earliest configured time strictly after now; if
// none remain today it wraps to the earliest time tomorrow.
func nextCustom(times []string, now time.Time) (time.Time, error) {
	if len(times) == 0 {
		return time.Time{}, &ComputationError{Reason: "custom schedule has no times"}
	}

	type slot struct{ hour, minute int }
	slots := make([]slot, 0, len(times))
	for _, t := range times {
		hour, minute, err := parseTimeOfDay(t)
		if err != nil {
			return time.Time{}, err
		}
		slots = append(slots, slot{hour: hour, minute: minute})
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].hour != slots[j].hour {
			return slots[i].hour < slots[j].hour
		}
		return slots[i].minute < slots[j].minute
	})

	for _, s := range slots {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, now.Location())
		if candidate.After(now) {
			return candidate, nil
		}
	}

	earliest := slots[0]
	return time.Date(now.Year(), now.Month(), now.Day(), earliest.hour, earliest.minute, 0, 0, now.Location()).
		AddDate(0, 0, 1), nil
}

// parseTimeOfDay accepts exactly "HH:MM"; anything else, including
// trailing characters, is malformed.
func parseTimeOfDay(value string) (hour, minute int, err error) {
	t, perr := time.Parse("15:04", value)
	if perr != nil {
		return 0, 0, &ComputationError{Reason: fmt.Sprintf("invalid time of day %q", value)}
	}
	return t.Hour(), t.Minute(), nil
}
