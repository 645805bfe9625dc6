package notify

import (
	"regexp"
	"strings"
)

// SMSMaxLength is the hard body limit enforced after substitution.
const SMSMaxLength = 160

// TruncationMarker terminates a truncated SMS body.
const TruncationMarker = "..."

// FallbackValue substitutes unresolved placeholders.
const FallbackValue = "N/A"

// DefaultEmailTemplate is used when a configuration carries no email
// template of its own.
const DefaultEmailTemplate = `[{severity}] {kind} alert on sensor {sensor_id}

{message}
Value: {value} {unit}
Condition: {condition}
Recommendations: {recommendations}
Alert: {alert_id}`

// DefaultSMSTemplate is used when a configuration carries no SMS template.
const DefaultSMSTemplate = `[{severity}] {kind} alert {sensor_id}: {message}`

// DefaultPushTemplate is used for real-time push bodies.
const DefaultPushTemplate = `{message}`

// Constraints bound the rendered body for a channel.
type Constraints struct {
	MaxLength int
}

// ConstraintsFor returns the rendering constraints of a channel. Email has
// no length bound.
func ConstraintsFor(channel string) Constraints {
	if channel == ChannelSMS {
		return Constraints{MaxLength: SMSMaxLength}
	}
	return Constraints{}
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Render substitutes {name}-style placeholders and enforces channel
// constraints. Unresolved placeholders become FallbackValue instead of
// failing the render.
func Render(body string, vars map[string]string, constraints Constraints) string {
	rendered := placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		return FallbackValue
	})
	return truncate(rendered, constraints.MaxLength)
}

// Fallback synthesizes a minimal body when no template resolves.
func Fallback(kind, value, unit string) string {
	parts := []string{kind, "alert:", value}
	if unit != "" {
		parts = append(parts, unit)
	}
	return strings.Join(parts, " ")
}

// truncate cuts the body to exactly max runes, ending in the truncation
// marker. A zero max means unbounded.
func truncate(body string, max int) string {
	if max <= 0 {
		return body
	}
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	marker := []rune(TruncationMarker)
	if max <= len(marker) {
		return string(marker[:max])
	}
	return string(runes[:max-len(marker)]) + TruncationMarker
}
