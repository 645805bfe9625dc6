package sensors

import (
	"fmt"
	"time"
)

const (
	// DefaultDedupWindow suppresses repeat alerts for the same
	// sensor/condition when no per-configuration window is set.
	DefaultDedupWindow = 15 * time.Minute

	minVerificationMinutes = 1
	maxVerificationMinutes = 1440
)

// ValidationError reports the offending configuration field.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("threshold config: %s: %s", e.Field, e.Reason)
}

// ThresholdConfig holds per-sensor alerting thresholds and notification
// settings. Bounds are optional; a nil bound skips that check.
type ThresholdConfig struct {
	ID                  string      `json:"id"`
	TenantID            string      `json:"tenant_id"`
	SensorID            string      `json:"sensor_id"`
	Kind                Kind        `json:"kind"`
	SoftMin             *float64    `json:"soft_min,omitempty"`
	SoftMax             *float64    `json:"soft_max,omitempty"`
	HardMin             *float64    `json:"hard_min,omitempty"`
	HardMax             *float64    `json:"hard_max,omitempty"`
	DefaultSeverity     string      `json:"default_severity"`
	VerificationMinutes int         `json:"verification_minutes"`
	Active              bool        `json:"active"`
	EmailEnabled        bool        `json:"email_enabled"`
	SMSEnabled          bool        `json:"sms_enabled"`
	PushEnabled         bool        `json:"push_enabled"`
	DedupWindowSeconds  int         `json:"dedup_window_seconds"`
	Templates           map[string]string `json:"templates,omitempty"`
	Recipients          []Recipient `json:"recipients"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// Validate checks configuration invariants. The first violated field is
// reported so admin tooling can point at it.
func (c ThresholdConfig) Validate() error {
	if c.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Reason: "required"}
	}
	if c.SensorID == "" {
		return &ValidationError{Field: "sensor_id", Reason: "required"}
	}
	if !c.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: "unsupported kind " + string(c.Kind)}
	}
	if c.SoftMin != nil && c.SoftMax != nil && *c.SoftMin >= *c.SoftMax {
		return &ValidationError{Field: "soft_min", Reason: "must be below soft_max"}
	}
	if c.HardMin != nil && c.HardMax != nil && *c.HardMin >= *c.HardMax {
		return &ValidationError{Field: "hard_min", Reason: "must be below hard_max"}
	}
	if c.HardMin != nil && c.SoftMin != nil && *c.HardMin > *c.SoftMin {
		return &ValidationError{Field: "hard_min", Reason: "must not exceed soft_min"}
	}
	if c.HardMax != nil && c.SoftMax != nil && *c.HardMax < *c.SoftMax {
		return &ValidationError{Field: "hard_max", Reason: "must not be below soft_max"}
	}
	if c.VerificationMinutes < minVerificationMinutes || c.VerificationMinutes > maxVerificationMinutes {
		return &ValidationError{Field: "verification_minutes", Reason: "must be within [1, 1440]"}
	}
	if c.DedupWindowSeconds < 0 {
		return &ValidationError{Field: "dedup_window_seconds", Reason: "must not be negative"}
	}
	for i, recipient := range c.Recipients {
		if err := recipient.Validate(); err != nil {
			return &ValidationError{Field: fmt.Sprintf("recipients[%d]", i), Reason: err.Error()}
		}
	}
	return nil
}

// DedupWindow returns the configured suppression window.
func (c ThresholdConfig) DedupWindow() time.Duration {
	if c.DedupWindowSeconds > 0 {
		return time.Duration(c.DedupWindowSeconds) * time.Second
	}
	return DefaultDedupWindow
}

// TemplateFor resolves the message template for a channel. A kind-specific
// template ("sms.temperature") takes precedence over the channel default
// ("sms"). Empty string means no template is configured.
func (c ThresholdConfig) TemplateFor(channel string, kind Kind) string {
	if len(c.Templates) == 0 {
		return ""
	}
	if tpl, ok := c.Templates[channel+"."+string(kind)]; ok && tpl != "" {
		return tpl
	}
	return c.Templates[channel]
}

// ActiveRecipients returns active recipients in the given escalation tier.
func (c ThresholdConfig) ActiveRecipients(tier int) []Recipient {
	var out []Recipient
	for _, recipient := range c.Recipients {
		if recipient.Active && recipient.Tier == tier {
			out = append(out, recipient)
		}
	}
	return out
}

// MaxTier returns the highest recipient tier configured.
func (c ThresholdConfig) MaxTier() int {
	max := 0
	for _, recipient := range c.Recipients {
		if recipient.Tier > max {
			max = recipient.Tier
		}
	}
	return max
}
