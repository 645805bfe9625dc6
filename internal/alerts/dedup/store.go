// Package dedup implements the alert suppression window: a repeat of the
// same sensor/condition within the window produces no new alert.
package dedup

import (
	"context"
	"time"
)

// Entry tracks the last alert fired for one sensor/condition pair.
type Entry struct {
	AlertID string
	FiredAt time.Time
	Window  time.Duration
}

// Expired reports whether the entry no longer suppresses at the given time.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.FiredAt.Add(e.Window))
}

// Store is the suppression window. Implementations must be safe for
// concurrent use; expired entries must never suppress.
type Store interface {
	// ShouldSuppress reports whether an alert for the sensor/condition
	// fired within its recorded window.
	ShouldSuppress(ctx context.Context, sensorID, conditionKey string, now time.Time) (bool, error)
	// RecordFired starts (or resets) the suppression window after an
	// alert is created or re-fired.
	RecordFired(ctx context.Context, sensorID, conditionKey, alertID string, window time.Duration, now time.Time) error
}

func key(sensorID, conditionKey string) string {
	return sensorID + "|" + conditionKey
}
