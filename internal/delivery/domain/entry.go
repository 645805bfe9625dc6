package delivery

import (
	"errors"
	"time"
)

const (
	StatusQueued      = "QUEUED"
	StatusSent        = "SENT"
	StatusDelivered   = "DELIVERED"
	StatusFailed      = "FAILED"
	StatusUndelivered = "UNDELIVERED"
	StatusCanceled    = "CANCELED"
)

// ValidStatus returns true for statuses a provider callback may carry.
func ValidStatus(status string) bool {
	switch status {
	case StatusQueued, StatusSent, StatusDelivered, StatusFailed, StatusUndelivered, StatusCanceled:
		return true
	default:
		return false
	}
}

// ErrNotFound indicates a missing delivery log entry.
var ErrNotFound = errors.New("delivery: entry not found")

// Entry records one send attempt per (alert, recipient, channel). The log
// is append-only; webhooks only update the status columns.
type Entry struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenant_id"`
	AlertID           string    `json:"alert_id"`
	Channel           string    `json:"channel"`
	Destination       string    `json:"destination"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	Status            string    `json:"status"`
	ErrorCode         string    `json:"error_code,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// StatusUpdate is an asynchronous provider delivery-status callback,
// correlated to an Entry by provider message id.
type StatusUpdate struct {
	MessageID    string    `json:"messageId"`
	Status       string    `json:"status"`
	ErrorCode    string    `json:"errorCode,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	To           string    `json:"to,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}

// Validate checks callback invariants.
func (u StatusUpdate) Validate() error {
	if u.MessageID == "" {
		return errors.New("delivery: callback missing messageId")
	}
	if !ValidStatus(u.Status) {
		return errors.New("delivery: callback has unknown status " + u.Status)
	}
	return nil
}

// Filter narrows delivery log queries. Zero values are ignored.
type Filter struct {
	Status string
	From   time.Time
	To     time.Time
	Limit  int
}

// Stats aggregates send outcomes for analytics.
type Stats struct {
	Total       int     `json:"total"`
	Sent        int     `json:"sent"`
	Delivered   int     `json:"delivered"`
	Failed      int     `json:"failed"`
	Undelivered int     `json:"undelivered"`
	SuccessRate float64 `json:"success_rate"`
}

// DayFailures counts failed sends for one day.
type DayFailures struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}
