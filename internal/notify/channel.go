// Package notify renders alert messages and delivers them through
// provider-specific channel adapters.
package notify

import (
	"context"
	"errors"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
)

// Priority hints providers about delivery urgency.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// SendResult reports one provider send attempt.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	Destination       string
	Err               error
}

// Message is one destination/body pair for a bulk send.
type Message struct {
	Destination string
	Body        string
	Priority    Priority
}

// BulkResult aggregates per-recipient outcomes of a bulk send. A failed
// recipient never aborts the remaining recipients.
type BulkResult struct {
	SuccessCount int
	FailedCount  int
	Results      []SendResult
}

// Channel is a provider-specific sender. Implementations retry transient
// failures internally and classify permanent ones without retrying.
type Channel interface {
	Name() string
	Send(ctx context.Context, destination, body string, priority Priority) SendResult
	SendBulk(ctx context.Context, messages []Message) BulkResult
}

// TransientError marks a failure eligible for retry (network error,
// provider 5xx, timeout). Validation-class failures are left unwrapped.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
