package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	alerts "warehouse-sentinel/internal/alerts/domain"
	delivery "warehouse-sentinel/internal/delivery/domain"
	"warehouse-sentinel/internal/observability/metrics"
	sensors "warehouse-sentinel/internal/sensors/domain"
)

const defaultChannelTimeout = 20 * time.Second

// DeliverySink records one delivery log entry per send attempt.
type DeliverySink interface {
	Append(ctx context.Context, entry delivery.Entry) error
}

// ChannelResult reports one channel's part of a dispatch.
type ChannelResult struct {
	Channel   string `json:"channel"`
	Skipped   bool   `json:"skipped"`
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// Outcome aggregates a dispatch across all enabled channels. Success means
// at least one channel/recipient pair delivered.
type Outcome struct {
	Notified bool            `json:"notified"`
	Channels []ChannelResult `json:"channels"`
}

// Succeeded reports whether the named channel delivered at least once.
func (o Outcome) Succeeded(channel string) bool {
	for _, result := range o.Channels {
		if result.Channel == channel {
			return result.Succeeded > 0
		}
	}
	return false
}

// Dispatcher fans a generated alert out to the enabled channels. Channels
// run concurrently; a failing channel or recipient never aborts the rest,
// and the caller always receives a structured outcome.
type Dispatcher struct {
	email   Channel
	sms     Channel
	push    Channel
	sink    DeliverySink
	timeout time.Duration
	logger  zerolog.Logger
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithChannelTimeout bounds each channel adapter call.
func WithChannelTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDispatcher constructs a dispatcher. Nil channels are allowed and
// treated as disabled.
func NewDispatcher(email, sms, push Channel, sink DeliverySink, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		email:   email,
		sms:     sms,
		push:    push,
		sink:    sink,
		timeout: defaultChannelTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type channelPlan struct {
	channel  Channel
	messages []Message
}

// Dispatch sends the alert through every enabled channel with at least one
// eligible recipient. extraVars augment the template variables (for
// example evaluation recommendations or the escalation level).
func (d *Dispatcher) Dispatch(ctx context.Context, alert alerts.Alert, cfg sensors.ThresholdConfig, recipients []sensors.Recipient, extraVars map[string]string) Outcome {
	vars := templateVars(alert, extraVars)
	priority := PriorityNormal
	if alerts.SeverityAtLeast(alert.Severity, alerts.SeverityCritical) || alert.State == alerts.StateEscalated {
		priority = PriorityHigh
	}

	plans := make(map[string]channelPlan)
	var outcome Outcome

	if cfg.EmailEnabled && d.email != nil {
		destinations := emailDestinations(recipients)
		if len(destinations) == 0 {
			outcome.Channels = append(outcome.Channels, ChannelResult{Channel: ChannelEmail, Skipped: true})
		} else {
			body := d.renderBody(ChannelEmail, alert, cfg, vars)
			plans[ChannelEmail] = channelPlan{channel: d.email, messages: buildMessages(destinations, body, priority)}
		}
	}
	if cfg.SMSEnabled && d.sms != nil {
		destinations := smsDestinations(recipients)
		if len(destinations) == 0 {
			outcome.Channels = append(outcome.Channels, ChannelResult{Channel: ChannelSMS, Skipped: true})
		} else {
			body := d.renderBody(ChannelSMS, alert, cfg, vars)
			plans[ChannelSMS] = channelPlan{channel: d.sms, messages: buildMessages(destinations, body, priority)}
		}
	}
	if cfg.PushEnabled && d.push != nil {
		body := d.renderBody(ChannelPush, alert, cfg, vars)
		plans[ChannelPush] = channelPlan{
			channel:  d.push,
			messages: []Message{{Destination: BroadcastDestination, Body: body, Priority: priority}},
		}
	}

	if len(plans) == 0 {
		return outcome
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, plan := range plans {
		wg.Add(1)
		go func(name string, plan channelPlan) {
			defer wg.Done()
			result := d.runChannel(ctx, name, plan, alert)
			mu.Lock()
			outcome.Channels = append(outcome.Channels, result)
			if result.Succeeded > 0 {
				outcome.Notified = true
			}
			mu.Unlock()
		}(name, plan)
	}
	wg.Wait()

	return outcome
}

// runChannel invokes one adapter with its own timeout and records every
// attempt in the delivery log. Adapter panics degrade to a failed channel
// result instead of crashing the dispatch.
func (d *Dispatcher) runChannel(ctx context.Context, name string, plan channelPlan, alert alerts.Alert) (result ChannelResult) {
	result = ChannelResult{Channel: name, Attempted: len(plan.messages)}
	defer func() {
		if r := recover(); r != nil {
			result.Failed = result.Attempted
			result.Succeeded = 0
			result.Error = fmt.Sprintf("channel panic: %v", r)
			d.logger.Error().
				Str("channel", name).
				Str("alert_id", alert.ID).
				Str("tenant_id", alert.TenantID).
				Interface("panic", r).
				Msg("channel adapter panicked")
		}
	}()

	sendCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	started := time.Now()
	bulk := plan.channel.SendBulk(sendCtx, plan.messages)
	result.Succeeded = bulk.SuccessCount
	result.Failed = bulk.FailedCount

	for _, send := range bulk.Results {
		d.record(ctx, alert, name, send)
		if send.Err != nil {
			result.Error = send.Err.Error()
			d.logger.Warn().
				Str("channel", name).
				Str("alert_id", alert.ID).
				Str("tenant_id", alert.TenantID).
				Str("sensor_id", alert.SensorID).
				Str("destination", send.Destination).
				Err(send.Err).
				Msg("notification send failed")
		}
		outcomeLabel := metrics.ResultSuccess
		if !send.Success {
			outcomeLabel = metrics.ResultError
		}
		metrics.ObserveNotification(name, outcomeLabel, time.Since(started))
	}
	return result
}

func (d *Dispatcher) record(ctx context.Context, alert alerts.Alert, channel string, send SendResult) {
	if d.sink == nil {
		return
	}
	now := time.Now().UTC()
	entry := delivery.Entry{
		ID:                uuid.NewString(),
		TenantID:          alert.TenantID,
		AlertID:           alert.ID,
		Channel:           channel,
		Destination:       send.Destination,
		ProviderMessageID: send.ProviderMessageID,
		Status:            delivery.StatusSent,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if !send.Success {
		entry.Status = delivery.StatusFailed
		if send.Err != nil {
			entry.ErrorMessage = send.Err.Error()
		}
	}
	if err := d.sink.Append(ctx, entry); err != nil {
		d.logger.Error().
			Str("alert_id", alert.ID).
			Str("channel", channel).
			Err(err).
			Msg("delivery log append failed")
	}
}

// renderBody resolves the channel template and substitutes variables,
// falling back to a synthesized minimal body.
func (d *Dispatcher) renderBody(channel string, alert alerts.Alert, cfg sensors.ThresholdConfig, vars map[string]string) string {
	body := cfg.TemplateFor(channel, sensors.Kind(alert.Kind))
	if body == "" {
		switch channel {
		case ChannelEmail:
			body = DefaultEmailTemplate
		case ChannelSMS:
			body = DefaultSMSTemplate
		case ChannelPush:
			body = DefaultPushTemplate
		}
	}
	if body == "" {
		return Fallback(alert.Kind, vars["value"], vars["unit"])
	}
	return Render(body, vars, ConstraintsFor(channel))
}

func templateVars(alert alerts.Alert, extra map[string]string) map[string]string {
	vars := map[string]string{
		"alert_id":         alert.ID,
		"tenant_id":        alert.TenantID,
		"sensor_id":        alert.SensorID,
		"location_id":      alert.LocationID,
		"product_id":       alert.ProductID,
		"kind":             alert.Kind,
		"severity":         alert.Severity,
		"state":            alert.State,
		"condition":        alert.ConditionKey,
		"message":          alert.Message,
		"value":            strconv.FormatFloat(alert.LastValue, 'f', -1, 64),
		"unit":             alert.Unit,
		"escalation_level": strconv.Itoa(alert.EscalationLevel),
		"created_at":       alert.CreatedAt.UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

func buildMessages(destinations []string, body string, priority Priority) []Message {
	messages := make([]Message, 0, len(destinations))
	for _, destination := range destinations {
		messages = append(messages, Message{Destination: destination, Body: body, Priority: priority})
	}
	return messages
}

func emailDestinations(recipients []sensors.Recipient) []string {
	var out []string
	for _, recipient := range recipients {
		if recipient.Active && recipient.WantsEmail() {
			out = append(out, sensors.NormalizeEmail(recipient.Email))
		}
	}
	return out
}

func smsDestinations(recipients []sensors.Recipient) []string {
	var out []string
	for _, recipient := range recipients {
		if recipient.Active && recipient.WantsSMS() {
			out = append(out, sensors.NormalizePhone(recipient.Phone))
		}
	}
	return out
}
