package application

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	alerts "warehouse-sentinel/internal/alerts/domain"
	sensors "warehouse-sentinel/internal/sensors/domain"
)

const (
	StateNormal   = "NORMAL"
	StateAlert    = "ALERT"
	StateCritical = "CRITICAL"
)

// defaultCriticalMultiplier escalates a soft-bound breach to critical when
// the reading lands this far beyond the soft bound and no hard bound exists.
const defaultCriticalMultiplier = 0.5

// EvaluationResult is the transient outcome of one reading evaluation.
type EvaluationResult struct {
	State           string             `json:"state"`
	Severity        string             `json:"severity"`
	ConditionKey    string             `json:"condition_key"`
	Violations      []alerts.Violation `json:"violations"`
	Recommendations []string           `json:"recommendations"`
	Message         string             `json:"message"`
	NextCheckAt     time.Time          `json:"next_check_at"`
}

// Triggered returns true when the reading crossed at least one bound.
func (r EvaluationResult) Triggered() bool {
	return r.State != StateNormal
}

// Evaluator maps readings and threshold configuration to an evaluation
// result. Evaluate is pure: identical inputs yield identical results.
type Evaluator struct {
	multiplier float64
	logger     zerolog.Logger
}

// NewEvaluator constructs an evaluator.
func NewEvaluator(logger zerolog.Logger) *Evaluator {
	return &Evaluator{multiplier: defaultCriticalMultiplier, logger: logger}
}

// Evaluate checks a reading against its sensor's thresholds. A reading is
// evaluated only against its own kind's rules; unrecognized or mismatched
// kinds evaluate to NORMAL rather than failing.
func (e *Evaluator) Evaluate(reading sensors.Reading, cfg sensors.ThresholdConfig) EvaluationResult {
	result := EvaluationResult{
		State:       StateNormal,
		NextCheckAt: reading.Timestamp.Add(time.Duration(cfg.VerificationMinutes) * time.Minute),
	}

	if !reading.Kind.Valid() {
		e.logger.Warn().
			Str("sensor_id", reading.SensorID).
			Str("tenant_id", reading.TenantID).
			Str("kind", string(reading.Kind)).
			Msg("unrecognized reading kind, evaluating to normal")
		result.Message = normalMessage(reading)
		return result
	}
	if cfg.Kind != "" && cfg.Kind != reading.Kind {
		e.logger.Warn().
			Str("sensor_id", reading.SensorID).
			Str("tenant_id", reading.TenantID).
			Str("reading_kind", string(reading.Kind)).
			Str("config_kind", string(cfg.Kind)).
			Msg("reading kind does not match configuration, evaluating to normal")
		result.Message = normalMessage(reading)
		return result
	}

	baseSeverity := cfg.DefaultSeverity
	if alerts.SeverityRank(baseSeverity) == 0 {
		baseSeverity = alerts.SeverityMedium
	}

	if v, sev, ok := e.checkUpper(reading, cfg, baseSeverity); ok {
		result.Violations = append(result.Violations, v)
		result.Severity = alerts.MaxSeverity(result.Severity, sev)
		result.ConditionKey = string(reading.Kind) + "_max"
		result.Recommendations = append(result.Recommendations, adviceFor(reading.Kind, directionMax))
	}
	if v, sev, ok := e.checkLower(reading, cfg, baseSeverity); ok {
		result.Violations = append(result.Violations, v)
		result.Severity = alerts.MaxSeverity(result.Severity, sev)
		if result.ConditionKey == "" {
			result.ConditionKey = string(reading.Kind) + "_min"
		}
		result.Recommendations = append(result.Recommendations, adviceFor(reading.Kind, directionMin))
	}

	if len(result.Violations) == 0 {
		result.Message = normalMessage(reading)
		return result
	}

	if result.Severity == alerts.SeverityCritical {
		result.State = StateCritical
	} else {
		result.State = StateAlert
	}
	result.Message = violationMessage(reading, result.Violations)
	return result
}

// checkUpper evaluates the soft/hard maximum pair. Absent bounds are not
// violations. Crossing the hard bound, or landing beyond the soft bound by
// the critical multiplier when no hard bound exists, classifies critical.
func (e *Evaluator) checkUpper(reading sensors.Reading, cfg sensors.ThresholdConfig, baseSeverity string) (alerts.Violation, string, bool) {
	if cfg.HardMax != nil && reading.Value >= *cfg.HardMax {
		return alerts.Violation{
			Rule:     ruleName(reading.Kind, directionMax, *cfg.HardMax),
			Bound:    *cfg.HardMax,
			Exceeded: reading.Value - *cfg.HardMax,
		}, alerts.SeverityCritical, true
	}
	if cfg.SoftMax != nil && reading.Value > *cfg.SoftMax {
		severity := gradeSoftBreach(reading.Value-*cfg.SoftMax, *cfg.SoftMax, cfg.HardMax, baseSeverity, e.multiplier)
		return alerts.Violation{
			Rule:     ruleName(reading.Kind, directionMax, *cfg.SoftMax),
			Bound:    *cfg.SoftMax,
			Exceeded: reading.Value - *cfg.SoftMax,
		}, severity, true
	}
	return alerts.Violation{}, "", false
}

// checkLower mirrors checkUpper for the minimum pair.
func (e *Evaluator) checkLower(reading sensors.Reading, cfg sensors.ThresholdConfig, baseSeverity string) (alerts.Violation, string, bool) {
	if cfg.HardMin != nil && reading.Value <= *cfg.HardMin {
		return alerts.Violation{
			Rule:     ruleName(reading.Kind, directionMin, *cfg.HardMin),
			Bound:    *cfg.HardMin,
			Exceeded: *cfg.HardMin - reading.Value,
		}, alerts.SeverityCritical, true
	}
	if cfg.SoftMin != nil && reading.Value < *cfg.SoftMin {
		severity := gradeSoftBreach(*cfg.SoftMin-reading.Value, *cfg.SoftMin, cfg.HardMin, baseSeverity, e.multiplier)
		return alerts.Violation{
			Rule:     ruleName(reading.Kind, directionMin, *cfg.SoftMin),
			Bound:    *cfg.SoftMin,
			Exceeded: *cfg.SoftMin - reading.Value,
		}, severity, true
	}
	return alerts.Violation{}, "", false
}

// gradeSoftBreach derives severity from how far the reading sits between
// the soft and hard bounds. Halfway toward the hard bound grades high; a
// breach of multiplier-times the soft bound with no hard bound configured
// grades critical.
func gradeSoftBreach(overshoot, soft float64, hard *float64, baseSeverity string, multiplier float64) string {
	if hard != nil {
		span := *hard - soft
		if span < 0 {
			span = -span
		}
		if span > 0 && overshoot/span >= 0.5 {
			return alerts.MaxSeverity(baseSeverity, alerts.SeverityHigh)
		}
		return baseSeverity
	}
	ref := soft
	if ref < 0 {
		ref = -ref
	}
	if ref > 0 && overshoot/ref >= multiplier {
		return alerts.SeverityCritical
	}
	return baseSeverity
}

type direction string

const (
	directionMax direction = "Max"
	directionMin direction = "Min"
)

func ruleName(kind sensors.Kind, dir direction, bound float64) string {
	return string(kind) + string(dir) + "(" + strconv.FormatFloat(bound, 'f', -1, 64) + ")"
}

func normalMessage(reading sensors.Reading) string {
	return fmt.Sprintf("%s reading %s%s on sensor %s is within configured thresholds",
		reading.Kind, formatValue(reading.Value), unitSuffix(reading.Unit), reading.SensorID)
}

func violationMessage(reading sensors.Reading, violations []alerts.Violation) string {
	rules := make([]string, len(violations))
	for i, v := range violations {
		rules[i] = v.Rule
	}
	return fmt.Sprintf("%s reading %s%s on sensor %s violates %s",
		reading.Kind, formatValue(reading.Value), unitSuffix(reading.Unit), reading.SensorID, strings.Join(rules, ", "))
}

func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}

// adviceFor returns static, non-binding operator guidance per condition.
func adviceFor(kind sensors.Kind, dir direction) string {
	switch kind {
	case sensors.KindTemperature:
		if dir == directionMax {
			return "check cooling system"
		}
		return "check heating and door seals"
	case sensors.KindHumidity:
		if dir == directionMax {
			return "check ventilation and dehumidifier"
		}
		return "check humidifier operation"
	case sensors.KindWeight:
		if dir == directionMax {
			return "verify rack load limits"
		}
		return "check for missing stock"
	case sensors.KindPressure:
		if dir == directionMax {
			return "inspect pressure relief valves"
		}
		return "inspect seals for leaks"
	default:
		return "inspect the sensor and confirm the condition"
	}
}
