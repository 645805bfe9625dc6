package application

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	alerts "warehouse-sentinel/internal/alerts/domain"
	"warehouse-sentinel/internal/observability/metrics"
)

const (
	defaultEscalationDelay    = 30 * time.Minute
	defaultEscalationInterval = time.Minute
	defaultEscalationMaxLevel = 3
	defaultEscalationBatch    = 50
)

// Escalator periodically escalates critical alerts that stayed open past
// the configured delay without an operator acting on them.
type Escalator struct {
	service  *Service
	delay    time.Duration
	interval time.Duration
	maxLevel int
	batch    int
	clock    Clock
	logger   zerolog.Logger
}

// EscalatorOption customizes the escalator.
type EscalatorOption func(*Escalator)

// WithEscalationDelay sets how long a critical alert may stay open before
// it escalates.
func WithEscalationDelay(delay time.Duration) EscalatorOption {
	return func(e *Escalator) {
		if delay > 0 {
			e.delay = delay
		}
	}
}

// WithEscalationInterval sets the sweep cadence.
func WithEscalationInterval(interval time.Duration) EscalatorOption {
	return func(e *Escalator) {
		if interval > 0 {
			e.interval = interval
		}
	}
}

// WithEscalationMaxLevel caps the escalation level.
func WithEscalationMaxLevel(maxLevel int) EscalatorOption {
	return func(e *Escalator) {
		if maxLevel > 0 {
			e.maxLevel = maxLevel
		}
	}
}

// WithEscalationBatch bounds the alerts taken per sweep.
func WithEscalationBatch(batch int) EscalatorOption {
	return func(e *Escalator) {
		if batch > 0 {
			e.batch = batch
		}
	}
}

// WithEscalatorClock assigns a clock.
func WithEscalatorClock(clock Clock) EscalatorOption {
	return func(e *Escalator) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewEscalator constructs an escalator over the alert service.
func NewEscalator(service *Service, logger zerolog.Logger, opts ...EscalatorOption) (*Escalator, error) {
	if service == nil {
		return nil, errors.New("alerts: nil service")
	}
	escalator := &Escalator{
		service:  service,
		delay:    defaultEscalationDelay,
		interval: defaultEscalationInterval,
		maxLevel: defaultEscalationMaxLevel,
		batch:    defaultEscalationBatch,
		clock:    systemClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(escalator)
	}
	return escalator, nil
}

// Run sweeps on a ticker until the context is canceled.
func (e *Escalator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil {
				e.logger.Error().Err(err).Msg("escalation sweep failed")
			}
		}
	}
}

// Sweep escalates one bounded batch of overdue critical alerts and
// returns how many were escalated. Individual failures are logged and
// skipped so one broken alert cannot stall the sweep.
func (e *Escalator) Sweep(ctx context.Context) (int, error) {
	started := time.Now()
	defer func() {
		metrics.ObserveEscalationSweep(time.Since(started))
	}()

	cutoff := e.clock.Now().UTC().Add(-e.delay)
	overdue, err := e.service.alerts.ListEscalatable(ctx, cutoff, e.maxLevel, e.batch)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for i := range overdue {
		alert := overdue[i]
		if _, err := e.service.escalate(ctx, &alert); err != nil {
			if errors.Is(err, alerts.ErrTerminalState) || errors.Is(err, alerts.ErrNotEscalatable) {
				continue
			}
			e.logger.Error().
				Str("alert_id", alert.ID).
				Err(err).
				Msg("alert escalation failed")
			continue
		}
		escalated++
	}
	if escalated > 0 {
		e.logger.Info().
			Int("escalated", escalated).
			Int("candidates", len(overdue)).
			Msg("escalation sweep completed")
	}
	return escalated, nil
}
