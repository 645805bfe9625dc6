package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"warehouse-sentinel/internal/audit"
	"warehouse-sentinel/internal/auth"
	sensors "warehouse-sentinel/internal/sensors/domain"
)

// ConfigRepository is a Postgres repository for threshold configurations.
// Recipients and templates are stored as jsonb alongside the bounds.
type ConfigRepository struct {
	db *sql.DB
}

// NewConfigRepository constructs a repository.
func NewConfigRepository(db *sql.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// Create inserts a threshold configuration.
func (r *ConfigRepository) Create(ctx context.Context, cfg *sensors.ThresholdConfig) error {
	if r == nil || r.db == nil {
		return errors.New("config repo: nil db")
	}
	if cfg == nil {
		return errors.New("config repo: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.Recipients = sensors.DedupRecipients(cfg.Recipients)
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = cfg.CreatedAt
	}
	recipients, err := json.Marshal(cfg.Recipients)
	if err != nil {
		return err
	}
	templates, err := json.Marshal(cfg.Templates)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO threshold_configs (
	id, tenant_id, sensor_id, kind, soft_min, soft_max, hard_min, hard_max,
	default_severity, verification_minutes, active, email_enabled, sms_enabled,
	push_enabled, dedup_window_seconds, templates, recipients, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8,
	$9, $10, $11, $12, $13,
	$14, $15, $16, $17, $18, $19
)`,
		cfg.ID,
		cfg.TenantID,
		cfg.SensorID,
		string(cfg.Kind),
		nullableFloat(cfg.SoftMin),
		nullableFloat(cfg.SoftMax),
		nullableFloat(cfg.HardMin),
		nullableFloat(cfg.HardMax),
		cfg.DefaultSeverity,
		cfg.VerificationMinutes,
		cfg.Active,
		cfg.EmailEnabled,
		cfg.SMSEnabled,
		cfg.PushEnabled,
		cfg.DedupWindowSeconds,
		templates,
		recipients,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	if err != nil {
		return err
	}
	logConfigAudit(ctx, r.db, "threshold_config.create", cfg)
	return nil
}

// Update replaces a threshold configuration.
func (r *ConfigRepository) Update(ctx context.Context, cfg *sensors.ThresholdConfig) error {
	if r == nil || r.db == nil {
		return errors.New("config repo: nil db")
	}
	if cfg == nil {
		return errors.New("config repo: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.Recipients = sensors.DedupRecipients(cfg.Recipients)
	cfg.UpdatedAt = time.Now().UTC()
	recipients, err := json.Marshal(cfg.Recipients)
	if err != nil {
		return err
	}
	templates, err := json.Marshal(cfg.Templates)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE threshold_configs
SET kind = $1, soft_min = $2, soft_max = $3, hard_min = $4, hard_max = $5,
	default_severity = $6, verification_minutes = $7, active = $8,
	email_enabled = $9, sms_enabled = $10, push_enabled = $11,
	dedup_window_seconds = $12, templates = $13, recipients = $14, updated_at = $15
WHERE tenant_id = $16 AND id = $17`,
		string(cfg.Kind),
		nullableFloat(cfg.SoftMin),
		nullableFloat(cfg.SoftMax),
		nullableFloat(cfg.HardMin),
		nullableFloat(cfg.HardMax),
		cfg.DefaultSeverity,
		cfg.VerificationMinutes,
		cfg.Active,
		cfg.EmailEnabled,
		cfg.SMSEnabled,
		cfg.PushEnabled,
		cfg.DedupWindowSeconds,
		templates,
		recipients,
		cfg.UpdatedAt,
		cfg.TenantID,
		cfg.ID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return sensors.ErrConfigNotFound
	}
	logConfigAudit(ctx, r.db, "threshold_config.update", cfg)
	return nil
}

// Deactivate turns a configuration off without deleting it.
func (r *ConfigRepository) Deactivate(ctx context.Context, tenantID, id string) error {
	if r == nil || r.db == nil {
		return errors.New("config repo: nil db")
	}
	if tenantID == "" || id == "" {
		return errors.New("config repo: invalid query")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE threshold_configs
SET active = FALSE, updated_at = $1
WHERE tenant_id = $2 AND id = $3`, time.Now().UTC(), tenantID, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return sensors.ErrConfigNotFound
	}
	if cfg, err := r.GetByID(ctx, tenantID, id); err == nil {
		logConfigAudit(ctx, r.db, "threshold_config.deactivate", cfg)
	}
	return nil
}

// GetByID loads a configuration by id.
func (r *ConfigRepository) GetByID(ctx context.Context, tenantID, id string) (*sensors.ThresholdConfig, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("config repo: nil db")
	}
	if tenantID == "" || id == "" {
		return nil, errors.New("config repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, sensor_id, kind, soft_min, soft_max, hard_min, hard_max,
	default_severity, verification_minutes, active, email_enabled, sms_enabled,
	push_enabled, dedup_window_seconds, templates, recipients, created_at, updated_at
FROM threshold_configs
WHERE tenant_id = $1 AND id = $2
LIMIT 1`, tenantID, id)
	return scanConfig(row)
}

// ListActiveBySensor returns active configurations for one sensor.
func (r *ConfigRepository) ListActiveBySensor(ctx context.Context, tenantID, sensorID string) ([]sensors.ThresholdConfig, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("config repo: nil db")
	}
	if tenantID == "" || sensorID == "" {
		return nil, errors.New("config repo: invalid query")
	}
	return r.list(ctx, `
SELECT id, tenant_id, sensor_id, kind, soft_min, soft_max, hard_min, hard_max,
	default_severity, verification_minutes, active, email_enabled, sms_enabled,
	push_enabled, dedup_window_seconds, templates, recipients, created_at, updated_at
FROM threshold_configs
WHERE tenant_id = $1 AND sensor_id = $2 AND active = TRUE
ORDER BY created_at ASC`, tenantID, sensorID)
}

// ListByTenant returns every configuration for a tenant.
func (r *ConfigRepository) ListByTenant(ctx context.Context, tenantID string) ([]sensors.ThresholdConfig, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("config repo: nil db")
	}
	if tenantID == "" {
		return nil, errors.New("config repo: invalid query")
	}
	return r.list(ctx, `
SELECT id, tenant_id, sensor_id, kind, soft_min, soft_max, hard_min, hard_max,
	default_severity, verification_minutes, active, email_enabled, sms_enabled,
	push_enabled, dedup_window_seconds, templates, recipients, created_at, updated_at
FROM threshold_configs
WHERE tenant_id = $1
ORDER BY sensor_id ASC, created_at ASC`, tenantID)
}

func (r *ConfigRepository) list(ctx context.Context, query string, args ...any) ([]sensors.ThresholdConfig, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []sensors.ThresholdConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type configScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row configScanner) (*sensors.ThresholdConfig, error) {
	var cfg sensors.ThresholdConfig
	var kind string
	var softMin, softMax, hardMin, hardMax sql.NullFloat64
	var templates, recipients []byte
	if err := row.Scan(
		&cfg.ID,
		&cfg.TenantID,
		&cfg.SensorID,
		&kind,
		&softMin,
		&softMax,
		&hardMin,
		&hardMax,
		&cfg.DefaultSeverity,
		&cfg.VerificationMinutes,
		&cfg.Active,
		&cfg.EmailEnabled,
		&cfg.SMSEnabled,
		&cfg.PushEnabled,
		&cfg.DedupWindowSeconds,
		&templates,
		&recipients,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cfg.Kind = sensors.Kind(kind)
	cfg.SoftMin = floatPtr(softMin)
	cfg.SoftMax = floatPtr(softMax)
	cfg.HardMin = floatPtr(hardMin)
	cfg.HardMax = floatPtr(hardMax)
	if len(templates) > 0 {
		if err := json.Unmarshal(templates, &cfg.Templates); err != nil {
			return nil, err
		}
	}
	if len(recipients) > 0 {
		if err := json.Unmarshal(recipients, &cfg.Recipients); err != nil {
			return nil, err
		}
	}
	cfg.CreatedAt = cfg.CreatedAt.UTC()
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return &cfg, nil
}

func logConfigAudit(ctx context.Context, db *sql.DB, action string, cfg *sensors.ThresholdConfig) {
	if db == nil || cfg == nil {
		return
	}
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		tenantID = cfg.TenantID
	}
	if tenantID == "" {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"sensor_id":            cfg.SensorID,
		"kind":                 cfg.Kind,
		"soft_min":             cfg.SoftMin,
		"soft_max":             cfg.SoftMax,
		"hard_min":             cfg.HardMin,
		"hard_max":             cfg.HardMax,
		"default_severity":     cfg.DefaultSeverity,
		"verification_minutes": cfg.VerificationMinutes,
		"active":               cfg.Active,
		"recipients":           len(cfg.Recipients),
	})
	repo := audit.NewRepository(db)
	if repo == nil {
		return
	}
	_ = repo.Log(ctx, audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       action,
		ResourceType: "threshold_config",
		ResourceID:   cfg.ID,
		SensorID:     cfg.SensorID,
		Metadata:     meta,
		CreatedAt:    time.Now().UTC(),
	})
}

func nullableFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func floatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	f := value.Float64
	return &f
}
