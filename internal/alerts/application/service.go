package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"warehouse-sentinel/internal/alerts/dedup"
	alerts "warehouse-sentinel/internal/alerts/domain"
	"warehouse-sentinel/internal/auth"
	"warehouse-sentinel/internal/notify"
	"warehouse-sentinel/internal/observability/metrics"
	sensorapp "warehouse-sentinel/internal/sensors/application"
	sensors "warehouse-sentinel/internal/sensors/domain"
)

const autoResolveNote = "auto-resolved: reading back within thresholds"

// AlertRepository persists alerts and their transitions.
type AlertRepository interface {
	Create(ctx context.Context, alert *alerts.Alert) error
	GetByID(ctx context.Context, id string) (*alerts.Alert, error)
	FindOpenBySensorCondition(ctx context.Context, tenantID, sensorID, conditionKey string) (*alerts.Alert, error)
	Refresh(ctx context.Context, id, severity string, value float64, message string, at time.Time) error
	MarkNotified(ctx context.Context, id string, email, sms, push bool, at time.Time) error
	MarkResolved(ctx context.Context, id, note string, at time.Time) error
	MarkIgnored(ctx context.Context, id, note string, at time.Time) error
	MarkEscalated(ctx context.Context, id string, level int, at time.Time) error
	List(ctx context.Context, tenantID string, filter alerts.ListFilter) ([]alerts.Alert, error)
	ListEscalatable(ctx context.Context, olderThan time.Time, maxLevel, limit int) ([]alerts.Alert, error)
}

// ConfigRepository resolves active threshold configurations.
type ConfigRepository interface {
	ListActiveBySensor(ctx context.Context, tenantID, sensorID string) ([]sensors.ThresholdConfig, error)
}

// Dispatcher fans a generated alert out across notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert alerts.Alert, cfg sensors.ThresholdConfig, recipients []sensors.Recipient, extraVars map[string]string) notify.Outcome
}

// AlertNotifier publishes alert lifecycle events to live subscribers.
type AlertNotifier interface {
	Notify(ctx context.Context, event AlertEvent)
}

// AlertEvent represents a lifecycle update.
type AlertEvent struct {
	Type  string       `json:"type"`
	Alert alerts.Alert `json:"alert"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// sensorLocks serializes the evaluate/suppress/create sequence per sensor
// so concurrent readings cannot race past the dedup check.
type sensorLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *sensorLocks) acquire(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

// Service handles reading evaluation and alert state transitions.
type Service struct {
	configs    ConfigRepository
	alerts     AlertRepository
	dedup      dedup.Store
	evaluator  *sensorapp.Evaluator
	dispatcher Dispatcher
	notifier   AlertNotifier
	clock      Clock
	logger     zerolog.Logger
	locks      sensorLocks
	tenantID   string
}

// ServiceOption customizes the alert service.
type ServiceOption func(*Service)

// WithNotifier assigns a lifecycle event notifier.
func WithNotifier(notifier AlertNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithFallbackTenant sets the tenant used when the context carries none.
func WithFallbackTenant(tenantID string) ServiceOption {
	return func(s *Service) {
		s.tenantID = tenantID
	}
}

// NewService constructs an alert service.
func NewService(configs ConfigRepository, alertsRepo AlertRepository, dedupStore dedup.Store, evaluator *sensorapp.Evaluator, dispatcher Dispatcher, logger zerolog.Logger, opts ...ServiceOption) (*Service, error) {
	if configs == nil || alertsRepo == nil {
		return nil, errors.New("alerts: nil repository")
	}
	if dedupStore == nil {
		return nil, errors.New("alerts: nil dedup store")
	}
	if evaluator == nil {
		return nil, errors.New("alerts: nil evaluator")
	}
	service := &Service{
		configs:    configs,
		alerts:     alertsRepo,
		dedup:      dedupStore,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		clock:      systemClock{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// ProcessReading evaluates one sensor reading against every active
// threshold configuration for that sensor. It returns the alert the
// reading created or re-fired, nil when the reading was normal or
// suppressed.
func (s *Service) ProcessReading(ctx context.Context, reading sensors.Reading) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if err := reading.Validate(); err != nil {
		return nil, err
	}

	configs, err := s.configs.ListActiveBySensor(ctx, reading.TenantID, reading.SensorID)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, nil
	}

	lock := s.locks.acquire(reading.TenantID + "|" + reading.SensorID)
	lock.Lock()
	defer lock.Unlock()

	var out *alerts.Alert
	for _, cfg := range configs {
		if cfg.Kind != "" && cfg.Kind != reading.Kind {
			continue
		}
		result := s.evaluator.Evaluate(reading, cfg)
		metrics.IncReadingEvaluated(result.State)
		alert, err := s.applyResult(ctx, reading, cfg, result)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = alert
		}
	}
	return out, nil
}

func (s *Service) applyResult(ctx context.Context, reading sensors.Reading, cfg sensors.ThresholdConfig, result sensorapp.EvaluationResult) (*alerts.Alert, error) {
	if !result.Triggered() {
		return nil, s.autoResolve(ctx, reading)
	}

	// The dedup window gates everything, including repeats against an
	// open alert: within the window a duplicate reading is discarded,
	// not merged.
	now := s.clock.Now().UTC()
	suppress, err := s.dedup.ShouldSuppress(ctx, reading.SensorID, result.ConditionKey, now)
	if err != nil {
		// A broken suppression store must never swallow alerts; fall
		// through to alerting.
		s.logger.Warn().
			Str("sensor_id", reading.SensorID).
			Str("condition", result.ConditionKey).
			Err(err).
			Msg("dedup check failed, alerting anyway")
		suppress = false
	}
	if suppress {
		metrics.IncAlertEvent(metrics.AlertEventSuppressed)
		s.logger.Debug().
			Str("sensor_id", reading.SensorID).
			Str("condition", result.ConditionKey).
			Msg("duplicate alert suppressed")
		return nil, nil
	}

	open, err := s.alerts.FindOpenBySensorCondition(ctx, reading.TenantID, reading.SensorID, result.ConditionKey)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return s.refresh(ctx, open, reading, cfg, result, now)
	}
	return s.createAlert(ctx, reading, cfg, result, now)
}

// autoResolve closes open alerts for a sensor whose reading returned to
// the normal range.
func (s *Service) autoResolve(ctx context.Context, reading sensors.Reading) error {
	for _, conditionKey := range []string{string(reading.Kind) + "_max", string(reading.Kind) + "_min"} {
		open, err := s.alerts.FindOpenBySensorCondition(ctx, reading.TenantID, reading.SensorID, conditionKey)
		if err != nil {
			return err
		}
		if open == nil {
			continue
		}
		resolvedAt := s.clock.Now().UTC()
		if err := s.alerts.MarkResolved(ctx, open.ID, autoResolveNote, resolvedAt); err != nil {
			return err
		}
		open.State = alerts.StateResolved
		open.ResolutionNote = autoResolveNote
		open.ResolvedAt = resolvedAt
		open.UpdatedAt = resolvedAt
		s.notify(ctx, metrics.AlertEventResolved, *open)
	}
	return nil
}

// refresh re-fires an already-open alert whose dedup window has lapsed:
// severity ratchets upward, the window restarts, and recipients are
// notified again.
func (s *Service) refresh(ctx context.Context, open *alerts.Alert, reading sensors.Reading, cfg sensors.ThresholdConfig, result sensorapp.EvaluationResult, now time.Time) (*alerts.Alert, error) {
	severity := alerts.MaxSeverity(open.Severity, result.Severity)
	if err := s.alerts.Refresh(ctx, open.ID, severity, reading.Value, result.Message, now); err != nil {
		return nil, err
	}
	open.Severity = severity
	open.LastValue = reading.Value
	open.Message = result.Message
	open.UpdatedAt = now
	if err := s.dedup.RecordFired(ctx, reading.SensorID, result.ConditionKey, open.ID, cfg.DedupWindow(), now); err != nil {
		s.logger.Warn().
			Str("alert_id", open.ID).
			Str("sensor_id", reading.SensorID).
			Err(err).
			Msg("dedup record failed")
	}
	s.notify(ctx, metrics.AlertEventRefired, *open)
	s.dispatch(ctx, open, cfg, tierRecipients(cfg, open.EscalationLevel), map[string]string{
		"recommendations": joinRecommendations(result.Recommendations),
	})
	return open, nil
}

func (s *Service) createAlert(ctx context.Context, reading sensors.Reading, cfg sensors.ThresholdConfig, result sensorapp.EvaluationResult, now time.Time) (*alerts.Alert, error) {
	alert := &alerts.Alert{
		ID:           uuid.NewString(),
		TenantID:     reading.TenantID,
		SensorID:     reading.SensorID,
		LocationID:   reading.LocationID,
		ProductID:    reading.ProductID,
		Kind:         string(reading.Kind),
		Severity:     result.Severity,
		Message:      result.Message,
		ConditionKey: result.ConditionKey,
		Violations:   result.Violations,
		LastValue:    reading.Value,
		Unit:         reading.Unit,
		State:        alerts.StateActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, err
	}
	if err := s.dedup.RecordFired(ctx, reading.SensorID, result.ConditionKey, alert.ID, cfg.DedupWindow(), now); err != nil {
		s.logger.Warn().
			Str("alert_id", alert.ID).
			Str("sensor_id", reading.SensorID).
			Err(err).
			Msg("dedup record failed")
	}
	s.notify(ctx, metrics.AlertEventCreated, *alert)
	s.dispatch(ctx, alert, cfg, tierRecipients(cfg, 0), map[string]string{
		"recommendations": joinRecommendations(result.Recommendations),
	})
	return alert, nil
}

// dispatch fans the alert out to the configured channels and records which
// ones delivered. Delivery failure is logged, never returned; the alert
// already exists either way.
func (s *Service) dispatch(ctx context.Context, alert *alerts.Alert, cfg sensors.ThresholdConfig, recipients []sensors.Recipient, extraVars map[string]string) {
	if s.dispatcher == nil {
		return
	}
	outcome := s.dispatcher.Dispatch(ctx, *alert, cfg, recipients, extraVars)
	alert.EmailSent = outcome.Succeeded(notify.ChannelEmail)
	alert.SMSSent = outcome.Succeeded(notify.ChannelSMS)
	alert.PushSent = outcome.Succeeded(notify.ChannelPush)
	if err := s.alerts.MarkNotified(ctx, alert.ID, alert.EmailSent, alert.SMSSent, alert.PushSent, s.clock.Now().UTC()); err != nil {
		s.logger.Error().
			Str("alert_id", alert.ID).
			Err(err).
			Msg("notified flags update failed")
	}
	if !outcome.Notified {
		s.logger.Error().
			Str("alert_id", alert.ID).
			Str("sensor_id", alert.SensorID).
			Str("severity", alert.Severity).
			Msg("alert generated but no channel delivered")
	}
}

// tierRecipients resolves the recipients for an escalation tier, falling
// back to the highest configured tier when the requested one is empty.
func tierRecipients(cfg sensors.ThresholdConfig, level int) []sensors.Recipient {
	recipients := cfg.ActiveRecipients(level)
	if len(recipients) == 0 {
		recipients = cfg.ActiveRecipients(cfg.MaxTier())
	}
	return recipients
}

// Resolve transitions an alert to resolved. Resolving an already terminal
// alert fails with ErrTerminalState.
func (s *Service) Resolve(ctx context.Context, id, note string) (*alerts.Alert, error) {
	return s.close(ctx, id, note, alerts.StateResolved)
}

// Ignore transitions an alert to ignored.
func (s *Service) Ignore(ctx context.Context, id, note string) (*alerts.Alert, error) {
	return s.close(ctx, id, note, alerts.StateIgnored)
}

func (s *Service) close(ctx context.Context, id, note, target string) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if id == "" {
		return nil, errors.New("alerts: alert id required")
	}
	alert, err := s.authorized(ctx, id)
	if err != nil {
		return nil, err
	}

	lock := s.locks.acquire(alert.TenantID + "|" + alert.SensorID)
	lock.Lock()
	defer lock.Unlock()

	// Re-load under the lock: the state may have moved between the
	// authorization read and the lock acquisition.
	alert, err = s.alerts.GetByID(ctx, alert.ID)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alerts.ErrNotFound
	}
	if alerts.Terminal(alert.State) {
		return nil, alerts.ErrTerminalState
	}
	at := s.clock.Now().UTC()
	event := metrics.AlertEventResolved
	if target == alerts.StateIgnored {
		event = metrics.AlertEventIgnored
		err = s.alerts.MarkIgnored(ctx, alert.ID, note, at)
	} else {
		err = s.alerts.MarkResolved(ctx, alert.ID, note, at)
	}
	if err != nil {
		return nil, err
	}
	alert.State = target
	alert.ResolutionNote = note
	alert.ResolvedAt = at
	alert.UpdatedAt = at
	s.notify(ctx, event, *alert)
	return alert, nil
}

// Escalate raises an alert to the escalated state and bumps its level.
// Only critical, non-terminal alerts are escalatable.
func (s *Service) Escalate(ctx context.Context, id string) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if id == "" {
		return nil, errors.New("alerts: alert id required")
	}
	alert, err := s.authorized(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.escalate(ctx, alert)
}

func (s *Service) escalate(ctx context.Context, alert *alerts.Alert) (*alerts.Alert, error) {
	lock := s.locks.acquire(alert.TenantID + "|" + alert.SensorID)
	lock.Lock()
	defer lock.Unlock()

	// The caller's copy may predate a concurrent resolve or escalation.
	// Only the state read under the lock decides eligibility.
	current, err := s.alerts.GetByID(ctx, alert.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, alerts.ErrNotFound
	}
	if alerts.Terminal(current.State) {
		return nil, alerts.ErrTerminalState
	}
	if !alerts.SeverityAtLeast(current.Severity, alerts.SeverityCritical) {
		return nil, alerts.ErrNotEscalatable
	}

	level := current.EscalationLevel + 1
	at := s.clock.Now().UTC()
	if err := s.alerts.MarkEscalated(ctx, current.ID, level, at); err != nil {
		return nil, err
	}
	current.State = alerts.StateEscalated
	current.EscalationLevel = level
	current.UpdatedAt = at
	s.notify(ctx, metrics.AlertEventEscalated, *current)

	if s.dispatcher != nil {
		cfg, ok, err := s.configFor(ctx, current.TenantID, current.SensorID, sensors.Kind(current.Kind))
		if err != nil {
			return nil, err
		}
		if ok {
			s.dispatcher.Dispatch(ctx, *current, cfg, tierRecipients(cfg, level), nil)
		}
	}
	return current, nil
}

// Get returns one alert scoped to the caller's tenant.
func (s *Service) Get(ctx context.Context, id string) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if id == "" {
		return nil, errors.New("alerts: alert id required")
	}
	return s.authorized(ctx, id)
}

// List returns alerts scoped to the caller's tenant.
func (s *Service) List(ctx context.Context, filter alerts.ListFilter) ([]alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	return s.alerts.List(ctx, s.callerTenant(ctx), filter)
}

// authorized loads an alert and enforces tenant ownership. Foreign alerts
// surface as not found rather than forbidden.
func (s *Service) authorized(ctx context.Context, id string) (*alerts.Alert, error) {
	alert, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alerts.ErrNotFound
	}
	tenantID := s.callerTenant(ctx)
	if tenantID != "" && alert.TenantID != tenantID {
		return nil, alerts.ErrNotFound
	}
	return alert, nil
}

func (s *Service) callerTenant(ctx context.Context) string {
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		tenantID = s.tenantID
	}
	return tenantID
}

func (s *Service) configFor(ctx context.Context, tenantID, sensorID string, kind sensors.Kind) (sensors.ThresholdConfig, bool, error) {
	configs, err := s.configs.ListActiveBySensor(ctx, tenantID, sensorID)
	if err != nil {
		return sensors.ThresholdConfig{}, false, err
	}
	for _, cfg := range configs {
		if cfg.Kind == kind {
			return cfg, true, nil
		}
	}
	return sensors.ThresholdConfig{}, false, nil
}

func (s *Service) notify(ctx context.Context, eventType string, alert alerts.Alert) {
	if s == nil {
		return
	}
	metrics.IncAlertEvent(eventType)
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, AlertEvent{Type: eventType, Alert: alert})
}

func joinRecommendations(recommendations []string) string {
	if len(recommendations) == 0 {
		return ""
	}
	joined := recommendations[0]
	for _, r := range recommendations[1:] {
		joined += "; " + r
	}
	return joined
}
