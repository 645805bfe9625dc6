package application

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"warehouse-sentinel/internal/auth"
	delivery "warehouse-sentinel/internal/delivery/domain"
	"warehouse-sentinel/internal/observability/metrics"
)

// LogStore persists and queries the delivery log.
type LogStore interface {
	Append(ctx context.Context, entry delivery.Entry) error
	UpdateStatusByProviderMessageID(ctx context.Context, providerMessageID, status, errorCode, errorMessage string, at time.Time) error
	List(ctx context.Context, tenantID string, filter delivery.Filter) ([]delivery.Entry, error)
	ListByAlert(ctx context.Context, tenantID, alertID string) ([]delivery.Entry, error)
	Stats(ctx context.Context, tenantID string, from, to time.Time) (delivery.Stats, error)
	FailuresByDay(ctx context.Context, tenantID string, from, to time.Time) ([]delivery.DayFailures, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service applies provider status callbacks to the delivery log and
// serves delivery queries.
type Service struct {
	store    LogStore
	clock    Clock
	logger   zerolog.Logger
	tenantID string
}

// ServiceOption customizes the delivery service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithFallbackTenant sets the tenant used when the context carries none.
func WithFallbackTenant(tenantID string) ServiceOption {
	return func(s *Service) {
		s.tenantID = tenantID
	}
}

// NewService constructs a delivery service.
func NewService(store LogStore, logger zerolog.Logger, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("delivery: nil store")
	}
	service := &Service{store: store, clock: systemClock{}, logger: logger}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// ApplyStatusUpdate correlates a provider callback to its delivery entry.
// Callbacks for unknown message ids are logged and acknowledged; providers
// retry on error responses and an unknown id will never become known.
func (s *Service) ApplyStatusUpdate(ctx context.Context, update delivery.StatusUpdate) error {
	if s == nil {
		return errors.New("delivery: nil service")
	}
	if err := update.Validate(); err != nil {
		metrics.IncWebhookCallback(metrics.ResultError)
		return err
	}
	at := update.Timestamp
	if at.IsZero() {
		at = s.clock.Now().UTC()
	}
	err := s.store.UpdateStatusByProviderMessageID(ctx, update.MessageID, update.Status, update.ErrorCode, update.ErrorMessage, at.UTC())
	if err != nil {
		if errors.Is(err, delivery.ErrNotFound) {
			s.logger.Warn().
				Str("provider_message_id", update.MessageID).
				Str("status", update.Status).
				Str("provider", update.Provider).
				Msg("status callback for unknown message id")
			metrics.IncWebhookCallback(metrics.ResultSuccess)
			return nil
		}
		metrics.IncWebhookCallback(metrics.ResultError)
		return err
	}
	metrics.IncWebhookCallback(metrics.ResultSuccess)
	s.logger.Debug().
		Str("provider_message_id", update.MessageID).
		Str("status", update.Status).
		Msg("delivery status updated")
	return nil
}

// List returns delivery entries for the caller's tenant.
func (s *Service) List(ctx context.Context, filter delivery.Filter) ([]delivery.Entry, error) {
	if s == nil {
		return nil, errors.New("delivery: nil service")
	}
	return s.store.List(ctx, s.callerTenant(ctx), filter)
}

// ListByAlert returns every delivery attempt for one alert.
func (s *Service) ListByAlert(ctx context.Context, alertID string) ([]delivery.Entry, error) {
	if s == nil {
		return nil, errors.New("delivery: nil service")
	}
	if alertID == "" {
		return nil, errors.New("delivery: alert id required")
	}
	return s.store.ListByAlert(ctx, s.callerTenant(ctx), alertID)
}

// Stats aggregates delivery outcomes within a window.
func (s *Service) Stats(ctx context.Context, from, to time.Time) (delivery.Stats, error) {
	if s == nil {
		return delivery.Stats{}, errors.New("delivery: nil service")
	}
	from, to = normalizeWindow(from, to, s.clock)
	return s.store.Stats(ctx, s.callerTenant(ctx), from, to)
}

// FailuresByDay returns daily failure counts within a window.
func (s *Service) FailuresByDay(ctx context.Context, from, to time.Time) ([]delivery.DayFailures, error) {
	if s == nil {
		return nil, errors.New("delivery: nil service")
	}
	from, to = normalizeWindow(from, to, s.clock)
	return s.store.FailuresByDay(ctx, s.callerTenant(ctx), from, to)
}

func (s *Service) callerTenant(ctx context.Context) string {
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		tenantID = s.tenantID
	}
	return tenantID
}

// normalizeWindow defaults to the trailing seven days.
func normalizeWindow(from, to time.Time, clock Clock) (time.Time, time.Time) {
	if to.IsZero() {
		to = clock.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-7 * 24 * time.Hour)
	}
	return from.UTC(), to.UTC()
}
