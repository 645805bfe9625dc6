package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"warehouse-sentinel/internal/alerts/dedup"
	alerts "warehouse-sentinel/internal/alerts/domain"
	"warehouse-sentinel/internal/auth"
	"warehouse-sentinel/internal/notify"
	sensorapp "warehouse-sentinel/internal/sensors/application"
	sensors "warehouse-sentinel/internal/sensors/domain"
)

type stubConfigs struct {
	configs []sensors.ThresholdConfig
	err     error
}

func (s *stubConfigs) ListActiveBySensor(_ context.Context, tenantID, sensorID string) ([]sensors.ThresholdConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []sensors.ThresholdConfig
	for _, cfg := range s.configs {
		if cfg.TenantID == tenantID && cfg.SensorID == sensorID && cfg.Active {
			out = append(out, cfg)
		}
	}
	return out, nil
}

type memAlertRepo struct {
	mu     sync.Mutex
	byID   map[string]*alerts.Alert
	order  []string
	create error
}

func newMemAlertRepo() *memAlertRepo {
	return &memAlertRepo{byID: make(map[string]*alerts.Alert)}
}

func (r *memAlertRepo) Create(_ context.Context, alert *alerts.Alert) error {
	if r.create != nil {
		return r.create
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *alert
	r.byID[alert.ID] = &clone
	r.order = append(r.order, alert.ID)
	return nil
}

func (r *memAlertRepo) GetByID(_ context.Context, id string) (*alerts.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	clone := *alert
	return &clone, nil
}

func (r *memAlertRepo) FindOpenBySensorCondition(_ context.Context, tenantID, sensorID, conditionKey string) (*alerts.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		alert := r.byID[r.order[i]]
		if alert.TenantID == tenantID && alert.SensorID == sensorID && alert.ConditionKey == conditionKey && !alerts.Terminal(alert.State) {
			clone := *alert
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memAlertRepo) Refresh(_ context.Context, id, severity string, value float64, message string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert := r.byID[id]
	alert.Severity = severity
	alert.LastValue = value
	alert.Message = message
	alert.UpdatedAt = at
	return nil
}

func (r *memAlertRepo) MarkNotified(_ context.Context, id string, email, sms, push bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert := r.byID[id]
	alert.EmailSent = email
	alert.SMSSent = sms
	alert.PushSent = push
	alert.UpdatedAt = at
	return nil
}

func (r *memAlertRepo) MarkResolved(_ context.Context, id, note string, at time.Time) error {
	return r.markClosed(id, note, alerts.StateResolved, at)
}

func (r *memAlertRepo) MarkIgnored(_ context.Context, id, note string, at time.Time) error {
	return r.markClosed(id, note, alerts.StateIgnored, at)
}

func (r *memAlertRepo) markClosed(id, note, state string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.byID[id]
	if !ok {
		return alerts.ErrNotFound
	}
	alert.State = state
	alert.ResolutionNote = note
	alert.ResolvedAt = at
	alert.UpdatedAt = at
	return nil
}

func (r *memAlertRepo) MarkEscalated(_ context.Context, id string, level int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.byID[id]
	if !ok {
		return alerts.ErrNotFound
	}
	if alerts.Terminal(alert.State) {
		return alerts.ErrTerminalState
	}
	alert.State = alerts.StateEscalated
	alert.EscalationLevel = level
	alert.UpdatedAt = at
	return nil
}

func (r *memAlertRepo) List(_ context.Context, tenantID string, filter alerts.ListFilter) ([]alerts.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []alerts.Alert
	for _, id := range r.order {
		alert := r.byID[id]
		if tenantID != "" && alert.TenantID != tenantID {
			continue
		}
		if filter.State != "" && alert.State != filter.State {
			continue
		}
		out = append(out, *alert)
	}
	return out, nil
}

func (r *memAlertRepo) ListEscalatable(_ context.Context, olderThan time.Time, maxLevel, limit int) ([]alerts.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []alerts.Alert
	for _, id := range r.order {
		alert := r.byID[id]
		if alerts.Terminal(alert.State) {
			continue
		}
		if !alerts.SeverityAtLeast(alert.Severity, alerts.SeverityCritical) {
			continue
		}
		if alert.EscalationLevel >= maxLevel {
			continue
		}
		if !alert.UpdatedAt.Before(olderThan) {
			continue
		}
		out = append(out, *alert)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memAlertRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *memAlertRepo) first() *alerts.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return nil
	}
	clone := *r.byID[r.order[0]]
	return &clone
}

type failingDedup struct{ err error }

func (d failingDedup) ShouldSuppress(context.Context, string, string, time.Time) (bool, error) {
	return false, d.err
}

func (d failingDedup) RecordFired(context.Context, string, string, string, time.Duration, time.Time) error {
	return d.err
}

type suppressingDedup struct{}

func (suppressingDedup) ShouldSuppress(context.Context, string, string, time.Time) (bool, error) {
	return true, nil
}

func (suppressingDedup) RecordFired(context.Context, string, string, string, time.Duration, time.Time) error {
	return nil
}

type dispatchCall struct {
	alert      alerts.Alert
	recipients []sensors.Recipient
	extraVars  map[string]string
}

type stubDispatcher struct {
	mu      sync.Mutex
	calls   []dispatchCall
	outcome notify.Outcome
}

func (d *stubDispatcher) Dispatch(_ context.Context, alert alerts.Alert, _ sensors.ThresholdConfig, recipients []sensors.Recipient, extraVars map[string]string) notify.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{alert: alert, recipients: recipients, extraVars: extraVars})
	return d.outcome
}

func (d *stubDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []AlertEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event AlertEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, evt := range n.events {
		out[i] = evt.Type
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func serviceConfig() sensors.ThresholdConfig {
	soft := 8.0
	hard := 12.0
	return sensors.ThresholdConfig{
		ID:                  "cfg-1",
		TenantID:            "tenant-a",
		SensorID:            "sensor-1",
		Kind:                sensors.KindTemperature,
		SoftMax:             &soft,
		HardMax:             &hard,
		DefaultSeverity:     alerts.SeverityMedium,
		VerificationMinutes: 30,
		Active:              true,
		EmailEnabled:        true,
		PushEnabled:         true,
		Recipients: []sensors.Recipient{
			{Name: "Ops", Email: "ops@example.com", Preference: sensors.PreferenceEmail, Active: true, Tier: 0},
			{Name: "Lead", Email: "lead@example.com", Preference: sensors.PreferenceEmail, Active: true, Tier: 1},
			{Name: "Manager", Email: "mgr@example.com", Preference: sensors.PreferenceEmail, Active: true, Tier: 2},
		},
	}
}

func serviceReading(value float64) sensors.Reading {
	return sensors.Reading{
		SensorID:  "sensor-1",
		TenantID:  "tenant-a",
		Kind:      sensors.KindTemperature,
		Value:     value,
		Unit:      "C",
		Timestamp: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

type serviceFixture struct {
	service    *Service
	repo       *memAlertRepo
	dispatcher *stubDispatcher
	notifier   *recordingNotifier
	clock      *fakeClock
}

func newFixture(t *testing.T, store dedup.Store, opts ...ServiceOption) *serviceFixture {
	t.Helper()
	if store == nil {
		store = dedup.NewMemoryStore()
	}
	repo := newMemAlertRepo()
	dispatcher := &stubDispatcher{outcome: notify.Outcome{
		Notified: true,
		Channels: []notify.ChannelResult{
			{Channel: notify.ChannelEmail, Attempted: 1, Succeeded: 1},
			{Channel: notify.ChannelPush, Attempted: 1, Succeeded: 1},
		},
	}}
	notifier := &recordingNotifier{}
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	base := []ServiceOption{WithNotifier(notifier), WithClock(clock)}
	service, err := NewService(
		&stubConfigs{configs: []sensors.ThresholdConfig{serviceConfig()}},
		repo,
		store,
		sensorapp.NewEvaluator(zerolog.Nop()),
		dispatcher,
		zerolog.Nop(),
		append(base, opts...)...,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &serviceFixture{service: service, repo: repo, dispatcher: dispatcher, notifier: notifier, clock: clock}
}

func TestProcessReadingCreatesAlert(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.service.ProcessReading(ctx, serviceReading(9))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if created == nil || created.ID == "" {
		t.Fatal("expected the created alert to be returned")
	}

	if f.repo.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", f.repo.count())
	}
	alert := f.repo.first()
	if alert.State != alerts.StateActive {
		t.Fatalf("expected active, got %s", alert.State)
	}
	if alert.ConditionKey != "temperature_max" {
		t.Fatalf("unexpected condition key %s", alert.ConditionKey)
	}
	if !alert.EmailSent || !alert.PushSent || alert.SMSSent {
		t.Fatalf("expected email+push flags from outcome, got %+v", alert)
	}
	if f.dispatcher.callCount() != 1 {
		t.Fatalf("expected 1 dispatch, got %d", f.dispatcher.callCount())
	}
	call := f.dispatcher.calls[0]
	if len(call.recipients) != 1 || call.recipients[0].Name != "Ops" {
		t.Fatalf("expected tier 0 recipients, got %+v", call.recipients)
	}
	if call.extraVars["recommendations"] == "" {
		t.Fatal("expected recommendations in template vars")
	}
	if got := f.notifier.types(); len(got) != 1 || got[0] != "created" {
		t.Fatalf("expected created event, got %v", got)
	}
}

func TestProcessReadingSuppressedWithinWindow(t *testing.T) {
	f := newFixture(t, suppressingDedup{})
	ctx := context.Background()

	suppressed, err := f.service.ProcessReading(ctx, serviceReading(9))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if suppressed != nil {
		t.Fatalf("suppressed reading must return no alert, got %+v", suppressed)
	}

	if f.repo.count() != 0 {
		t.Fatalf("expected suppression, got %d alerts", f.repo.count())
	}
	if f.dispatcher.callCount() != 0 {
		t.Fatal("suppressed alert must not dispatch")
	}
}

func TestProcessReadingDedupFailureStillAlerts(t *testing.T) {
	f := newFixture(t, failingDedup{err: errors.New("redis down")})
	ctx := context.Background()

	if _, err := f.service.ProcessReading(ctx, serviceReading(9)); err != nil {
		t.Fatalf("process: %v", err)
	}

	if f.repo.count() != 1 {
		t.Fatalf("broken dedup store must not swallow alerts, got %d", f.repo.count())
	}
}

func TestProcessReadingRefiresOpenAlertPastWindow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.service.ProcessReading(ctx, serviceReading(9)); err != nil {
		t.Fatalf("first reading: %v", err)
	}
	f.clock.Advance(20 * time.Minute)
	// Hard-bound breach past the dedup window re-fires the open alert.
	refired, err := f.service.ProcessReading(ctx, serviceReading(13))
	if err != nil {
		t.Fatalf("second reading: %v", err)
	}
	if refired == nil {
		t.Fatal("expected the refired alert to be returned")
	}

	if f.repo.count() != 1 {
		t.Fatalf("expected refresh of the open alert, got %d alerts", f.repo.count())
	}
	alert := f.repo.first()
	if alert.Severity != alerts.SeverityCritical {
		t.Fatalf("expected severity ratchet to critical, got %s", alert.Severity)
	}
	if alert.LastValue != 13 {
		t.Fatalf("expected last value 13, got %v", alert.LastValue)
	}
	if f.dispatcher.callCount() != 2 {
		t.Fatalf("re-fire must re-dispatch, got %d calls", f.dispatcher.callCount())
	}
	if got := f.notifier.types(); len(got) != 2 || got[1] != "refired" {
		t.Fatalf("expected created,refired events, got %v", got)
	}
}

func TestProcessReadingDuplicateWithinWindowDiscarded(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.service.ProcessReading(ctx, serviceReading(9)); err != nil {
		t.Fatalf("first reading: %v", err)
	}
	f.clock.Advance(5 * time.Minute)
	// Still inside the 15-minute window: the repeat is dropped outright,
	// not merged into the open alert.
	dup, err := f.service.ProcessReading(ctx, serviceReading(13))
	if err != nil {
		t.Fatalf("duplicate reading: %v", err)
	}
	if dup != nil {
		t.Fatalf("suppressed reading must return no alert, got %+v", dup)
	}

	alert := f.repo.first()
	if alert.Severity != alerts.SeverityMedium {
		t.Fatalf("suppressed reading must not touch severity, got %s", alert.Severity)
	}
	if alert.LastValue != 9 {
		t.Fatalf("suppressed reading must not touch last value, got %v", alert.LastValue)
	}
	if f.dispatcher.callCount() != 1 {
		t.Fatalf("suppressed reading must not dispatch, got %d calls", f.dispatcher.callCount())
	}
	if got := f.notifier.types(); len(got) != 1 || got[0] != "created" {
		t.Fatalf("expected only the created event, got %v", got)
	}
}

func TestProcessReadingRefireRestartsWindow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.service.ProcessReading(ctx, serviceReading(9)); err != nil {
		t.Fatalf("first reading: %v", err)
	}
	f.clock.Advance(20 * time.Minute)
	if _, err := f.service.ProcessReading(ctx, serviceReading(9)); err != nil {
		t.Fatalf("re-fire reading: %v", err)
	}
	// The re-fire restarted the window, so 5 minutes later is still inside it.
	f.clock.Advance(5 * time.Minute)
	if _, err := f.service.ProcessReading(ctx, serviceReading(13)); err != nil {
		t.Fatalf("third reading: %v", err)
	}

	if f.dispatcher.callCount() != 2 {
		t.Fatalf("expected create and re-fire dispatches only, got %d", f.dispatcher.callCount())
	}
	alert := f.repo.first()
	if alert.Severity != alerts.SeverityMedium {
		t.Fatalf("window restart must suppress the third reading, got severity %s", alert.Severity)
	}
}

func TestProcessReadingRefreshNeverLowersSeverity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.service.ProcessReading(ctx, serviceReading(13)); err != nil {
		t.Fatalf("first reading: %v", err)
	}
	f.clock.Advance(20 * time.Minute)
	if _, err := f.service.ProcessReading(ctx, serviceReading(9)); err != nil {
		t.Fatalf("second reading: %v", err)
	}

	alert := f.repo.first()
	if alert.Severity != alerts.SeverityCritical {
		t.Fatalf("severity must not ratchet down, got %s", alert.Severity)
	}
	if alert.LastValue != 9 {
		t.Fatalf("expected last value from refresh, got %v", alert.LastValue)
	}
}

func TestProcessReadingAutoResolves(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.service.ProcessReading(ctx, serviceReading(9)); err != nil {
		t.Fatalf("alerting reading: %v", err)
	}
	f.clock.Advance(time.Hour)
	if _, err := f.service.ProcessReading(ctx, serviceReading(5)); err != nil {
		t.Fatalf("normal reading: %v", err)
	}

	alert := f.repo.first()
	if alert.State != alerts.StateResolved {
		t.Fatalf("expected auto-resolve, got %s", alert.State)
	}
	if alert.ResolutionNote == "" {
		t.Fatal("expected an auto-resolve note")
	}
	if got := f.notifier.types(); got[len(got)-1] != "resolved" {
		t.Fatalf("expected resolved event last, got %v", got)
	}
}

func TestProcessReadingKindMismatchIsSkipped(t *testing.T) {
	f := newFixture(t, nil)
	reading := serviceReading(9)
	reading.Kind = sensors.KindHumidity

	if _, err := f.service.ProcessReading(context.Background(), reading); err != nil {
		t.Fatalf("process: %v", err)
	}
	if f.repo.count() != 0 {
		t.Fatalf("mismatched kind must not alert, got %d", f.repo.count())
	}
}

func TestResolveTerminalAlertFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, _ = f.service.ProcessReading(ctx, serviceReading(9))
	alert := f.repo.first()

	if _, err := f.service.Resolve(ctx, alert.ID, "fixed"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := f.service.Resolve(ctx, alert.ID, "again"); !errors.Is(err, alerts.ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState, got %v", err)
	}
	if _, err := f.service.Ignore(ctx, alert.ID, "later"); !errors.Is(err, alerts.ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState on ignore, got %v", err)
	}
}

func TestEscalateRequiresCriticalSeverity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, _ = f.service.ProcessReading(ctx, serviceReading(9))
	alert := f.repo.first()

	if _, err := f.service.Escalate(ctx, alert.ID); !errors.Is(err, alerts.ErrNotEscalatable) {
		t.Fatalf("expected ErrNotEscalatable for medium alert, got %v", err)
	}
}

func TestEscalateBumpsLevelAndNotifiesNextTier(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, _ = f.service.ProcessReading(ctx, serviceReading(13))
	alert := f.repo.first()

	escalated, err := f.service.Escalate(ctx, alert.ID)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if escalated.State != alerts.StateEscalated || escalated.EscalationLevel != 1 {
		t.Fatalf("expected escalated level 1, got %s level %d", escalated.State, escalated.EscalationLevel)
	}

	if f.dispatcher.callCount() != 2 {
		t.Fatalf("expected escalation dispatch, got %d calls", f.dispatcher.callCount())
	}
	call := f.dispatcher.calls[1]
	if len(call.recipients) != 1 || call.recipients[0].Name != "Lead" {
		t.Fatalf("expected tier 1 recipients, got %+v", call.recipients)
	}
}

func TestEscalateBeyondTopTierFallsBackToHighest(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, _ = f.service.ProcessReading(ctx, serviceReading(13))
	alert := f.repo.first()

	for i := 0; i < 3; i++ {
		var err error
		alert, err = f.service.Escalate(ctx, alert.ID)
		if err != nil {
			t.Fatalf("escalate %d: %v", i+1, err)
		}
	}
	if alert.EscalationLevel != 3 {
		t.Fatalf("expected level 3, got %d", alert.EscalationLevel)
	}

	// No tier 3 recipients configured: the top tier is notified instead.
	call := f.dispatcher.calls[len(f.dispatcher.calls)-1]
	if len(call.recipients) != 1 || call.recipients[0].Name != "Manager" {
		t.Fatalf("expected fallback to tier 2, got %+v", call.recipients)
	}
}

func TestEscalateStaleCopyOfResolvedAlertFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, _ = f.service.ProcessReading(ctx, serviceReading(13))
	stale := f.repo.first()

	// The alert resolves between the sweep's snapshot and the escalation.
	if _, err := f.service.Resolve(ctx, stale.ID, "handled"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := f.service.escalate(ctx, stale); !errors.Is(err, alerts.ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState for a stale copy, got %v", err)
	}
	alert := f.repo.first()
	if alert.State != alerts.StateResolved {
		t.Fatalf("resolved alert must stay resolved, got %s", alert.State)
	}
	if alert.EscalationLevel != 0 {
		t.Fatalf("resolved alert must not gain a level, got %d", alert.EscalationLevel)
	}
}

func TestForeignTenantAlertLooksMissing(t *testing.T) {
	f := newFixture(t, nil)
	_, _ = f.service.ProcessReading(context.Background(), serviceReading(9))
	alert := f.repo.first()

	ctx := auth.WithIdentity(context.Background(), "tenant-b", auth.RoleOperator, "user-1")
	if _, err := f.service.Get(ctx, alert.ID); !errors.Is(err, alerts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign tenant, got %v", err)
	}
	if _, err := f.service.Resolve(ctx, alert.ID, "x"); !errors.Is(err, alerts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on resolve, got %v", err)
	}
}

func TestConcurrentReadingsCreateOneAlert(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.ProcessReading(ctx, serviceReading(9)); err != nil {
				t.Errorf("process: %v", err)
			}
		}()
	}
	wg.Wait()

	if f.repo.count() != 1 {
		t.Fatalf("concurrent identical readings must collapse to one alert, got %d", f.repo.count())
	}
}
