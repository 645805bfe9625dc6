package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"warehouse-sentinel/internal/auth"
	sensors "warehouse-sentinel/internal/sensors/domain"
)

// ConfigStore persists threshold configurations.
type ConfigStore interface {
	Create(ctx context.Context, cfg *sensors.ThresholdConfig) error
	Update(ctx context.Context, cfg *sensors.ThresholdConfig) error
	Deactivate(ctx context.Context, tenantID, id string) error
	GetByID(ctx context.Context, tenantID, id string) (*sensors.ThresholdConfig, error)
	ListActiveBySensor(ctx context.Context, tenantID, sensorID string) ([]sensors.ThresholdConfig, error)
	ListByTenant(ctx context.Context, tenantID string) ([]sensors.ThresholdConfig, error)
}

// ConfigService manages threshold configuration lifecycle and keeps the
// evaluation cache coherent with writes.
type ConfigService struct {
	store    ConfigStore
	cache    *ConfigCache
	logger   zerolog.Logger
	tenantID string
}

// ConfigServiceOption customizes the config service.
type ConfigServiceOption func(*ConfigService)

// WithConfigFallbackTenant sets the tenant used when the context carries none.
func WithConfigFallbackTenant(tenantID string) ConfigServiceOption {
	return func(s *ConfigService) {
		s.tenantID = tenantID
	}
}

// NewConfigService constructs a config service.
func NewConfigService(store ConfigStore, cache *ConfigCache, logger zerolog.Logger, opts ...ConfigServiceOption) (*ConfigService, error) {
	if store == nil {
		return nil, errors.New("sensors: nil config store")
	}
	service := &ConfigService{store: store, cache: cache, logger: logger}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Create validates and stores a new configuration.
func (s *ConfigService) Create(ctx context.Context, cfg *sensors.ThresholdConfig) error {
	if s == nil {
		return errors.New("sensors: nil config service")
	}
	if cfg == nil {
		return errors.New("sensors: nil config")
	}
	if cfg.TenantID == "" {
		cfg.TenantID = s.callerTenant(ctx)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.VerificationMinutes == 0 {
		cfg.VerificationMinutes = 60
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.store.Create(ctx, cfg); err != nil {
		return err
	}
	s.invalidate(cfg.TenantID, cfg.SensorID)
	s.logger.Info().
		Str("config_id", cfg.ID).
		Str("tenant_id", cfg.TenantID).
		Str("sensor_id", cfg.SensorID).
		Str("kind", string(cfg.Kind)).
		Msg("threshold config created")
	return nil
}

// Update replaces an existing configuration.
func (s *ConfigService) Update(ctx context.Context, cfg *sensors.ThresholdConfig) error {
	if s == nil {
		return errors.New("sensors: nil config service")
	}
	if cfg == nil {
		return errors.New("sensors: nil config")
	}
	if cfg.ID == "" {
		return errors.New("sensors: config id required")
	}
	if cfg.TenantID == "" {
		cfg.TenantID = s.callerTenant(ctx)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.store.Update(ctx, cfg); err != nil {
		return err
	}
	s.invalidate(cfg.TenantID, cfg.SensorID)
	return nil
}

// Deactivate turns a configuration off.
func (s *ConfigService) Deactivate(ctx context.Context, id string) error {
	if s == nil {
		return errors.New("sensors: nil config service")
	}
	if id == "" {
		return errors.New("sensors: config id required")
	}
	tenantID := s.callerTenant(ctx)
	cfg, err := s.store.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if cfg == nil {
		return sensors.ErrConfigNotFound
	}
	if err := s.store.Deactivate(ctx, tenantID, id); err != nil {
		return err
	}
	s.invalidate(tenantID, cfg.SensorID)
	return nil
}

// Get returns one configuration scoped to the caller's tenant.
func (s *ConfigService) Get(ctx context.Context, id string) (*sensors.ThresholdConfig, error) {
	if s == nil {
		return nil, errors.New("sensors: nil config service")
	}
	if id == "" {
		return nil, errors.New("sensors: config id required")
	}
	cfg, err := s.store.GetByID(ctx, s.callerTenant(ctx), id)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, sensors.ErrConfigNotFound
	}
	return cfg, nil
}

// List returns every configuration for the caller's tenant.
func (s *ConfigService) List(ctx context.Context) ([]sensors.ThresholdConfig, error) {
	if s == nil {
		return nil, errors.New("sensors: nil config service")
	}
	return s.store.ListByTenant(ctx, s.callerTenant(ctx))
}

func (s *ConfigService) invalidate(tenantID, sensorID string) {
	if s.cache != nil {
		s.cache.Invalidate(tenantID, sensorID)
	}
}

func (s *ConfigService) callerTenant(ctx context.Context) string {
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		tenantID = s.tenantID
	}
	return tenantID
}
