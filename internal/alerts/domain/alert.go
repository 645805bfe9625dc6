package alerts

import (
	"strings"
	"time"
)

const (
	StateActive    = "active"
	StateEscalated = "escalated"
	StateResolved  = "resolved"
	StateIgnored   = "ignored"
)

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Terminal returns true for states that accept no further transitions.
func Terminal(state string) bool {
	return state == StateResolved || state == StateIgnored
}

// SeverityRank orders severities low < medium < high < critical.
func SeverityRank(value string) int {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// MaxSeverity returns the more severe of two classifications.
func MaxSeverity(a, b string) string {
	if SeverityRank(b) > SeverityRank(a) {
		return b
	}
	return a
}

// SeverityAtLeast reports whether value meets or exceeds target.
func SeverityAtLeast(value, target string) bool {
	return SeverityRank(value) >= SeverityRank(target)
}

// Violation snapshots one rule that fired, with the configured bound and
// how far the reading crossed it.
type Violation struct {
	Rule     string  `json:"rule"`
	Bound    float64 `json:"bound"`
	Exceeded float64 `json:"exceeded"`
}

// Alert is the durable record of a triggered sensor condition. Alerts are
// never deleted, only transitioned to a terminal state.
type Alert struct {
	ID              string      `json:"id"`
	TenantID        string      `json:"tenant_id"`
	SensorID        string      `json:"sensor_id"`
	LocationID      string      `json:"location_id,omitempty"`
	ProductID       string      `json:"product_id,omitempty"`
	Kind            string      `json:"kind"`
	Severity        string      `json:"severity"`
	Message         string      `json:"message"`
	ConditionKey    string      `json:"condition_key"`
	Violations      []Violation `json:"violations"`
	LastValue       float64     `json:"last_value"`
	Unit            string      `json:"unit,omitempty"`
	State           string      `json:"state"`
	EscalationLevel int         `json:"escalation_level"`
	EmailSent       bool        `json:"email_sent"`
	SMSSent         bool        `json:"sms_sent"`
	PushSent        bool        `json:"push_sent"`
	ResolutionNote  string      `json:"resolution_note,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	ResolvedAt      time.Time   `json:"resolved_at,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Notified returns true when at least one channel delivered.
func (a Alert) Notified() bool {
	return a.EmailSent || a.SMSSent || a.PushSent
}

// ListFilter narrows alert queries. Zero values are ignored.
type ListFilter struct {
	State    string
	Kind     string
	Severity string
	SensorID string
	Limit    int
	Offset   int
}
