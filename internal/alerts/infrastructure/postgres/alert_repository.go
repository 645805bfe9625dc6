package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	alerts "warehouse-sentinel/internal/alerts/domain"
)

// AlertRepository is a Postgres repository for alerts.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if alert.ID == "" || alert.TenantID == "" || alert.SensorID == "" || alert.ConditionKey == "" {
		return errors.New("alert repo: missing fields")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if alert.UpdatedAt.IsZero() {
		alert.UpdatedAt = alert.CreatedAt
	}
	violations, err := json.Marshal(alert.Violations)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO alerts (
	id, tenant_id, sensor_id, location_id, product_id, kind, severity, message,
	condition_key, violations, last_value, unit, state, escalation_level,
	email_sent, sms_sent, push_sent, resolution_note, created_at, resolved_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8,
	$9, $10, $11, $12, $13, $14,
	$15, $16, $17, $18, $19, $20, $21
)`,
		alert.ID,
		alert.TenantID,
		alert.SensorID,
		alert.LocationID,
		alert.ProductID,
		alert.Kind,
		alert.Severity,
		alert.Message,
		alert.ConditionKey,
		violations,
		sql.NullFloat64{Float64: alert.LastValue, Valid: true},
		alert.Unit,
		alert.State,
		alert.EscalationLevel,
		alert.EmailSent,
		alert.SMSSent,
		alert.PushSent,
		alert.ResolutionNote,
		alert.CreatedAt,
		nullableTime(alert.ResolvedAt),
		alert.UpdatedAt,
	)
	return err
}

// GetByID fetches an alert by id.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, sensor_id, location_id, product_id, kind, severity, message,
	condition_key, violations, last_value, unit, state, escalation_level,
	email_sent, sms_sent, push_sent, resolution_note, created_at, resolved_at, updated_at
FROM alerts
WHERE id = $1`, id)
	return scanAlert(row)
}

// FindOpenBySensorCondition returns the open alert for a sensor condition.
func (r *AlertRepository) FindOpenBySensorCondition(ctx context.Context, tenantID, sensorID, conditionKey string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if tenantID == "" || sensorID == "" || conditionKey == "" {
		return nil, errors.New("alert repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, sensor_id, location_id, product_id, kind, severity, message,
	condition_key, violations, last_value, unit, state, escalation_level,
	email_sent, sms_sent, push_sent, resolution_note, created_at, resolved_at, updated_at
FROM alerts
WHERE tenant_id = $1 AND sensor_id = $2 AND condition_key = $3
	AND state IN ('active', 'escalated')
ORDER BY created_at DESC
LIMIT 1`, tenantID, sensorID, conditionKey)
	return scanAlert(row)
}

// Refresh updates severity, value and message of an open alert.
func (r *AlertRepository) Refresh(ctx context.Context, id, severity string, value float64, message string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET severity = $1, last_value = $2, message = $3, updated_at = $4
WHERE id = $5`, severity, value, message, at, id)
	return err
}

// MarkNotified records which channels delivered for an alert.
func (r *AlertRepository) MarkNotified(ctx context.Context, id string, email, sms, push bool, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET email_sent = $1, sms_sent = $2, push_sent = $3, updated_at = $4
WHERE id = $5`, email, sms, push, at, id)
	return err
}

// MarkResolved transitions an alert to resolved.
func (r *AlertRepository) MarkResolved(ctx context.Context, id, note string, at time.Time) error {
	return r.markClosed(ctx, id, alerts.StateResolved, note, at)
}

// MarkIgnored transitions an alert to ignored.
func (r *AlertRepository) MarkIgnored(ctx context.Context, id, note string, at time.Time) error {
	return r.markClosed(ctx, id, alerts.StateIgnored, note, at)
}

func (r *AlertRepository) markClosed(ctx context.Context, id, state, note string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET state = $1, resolution_note = $2, resolved_at = $3, updated_at = $4
WHERE id = $5`, state, note, at, at, id)
	return err
}

// MarkEscalated raises the escalation level and state. The state guard
// keeps a concurrently closed alert from being reopened; a zero-row update
// reports ErrTerminalState.
func (r *AlertRepository) MarkEscalated(ctx context.Context, id string, level int, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET state = $1, escalation_level = $2, updated_at = $3
WHERE id = $4 AND state IN ($5, $6)`,
		alerts.StateEscalated, level, at, id, alerts.StateActive, alerts.StateEscalated)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return alerts.ErrTerminalState
	}
	return nil
}

// List returns alerts for a tenant applying the filter.
func (r *AlertRepository) List(ctx context.Context, tenantID string, filter alerts.ListFilter) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if tenantID == "" {
		return nil, errors.New("alert repo: invalid query")
	}
	query := `
SELECT id, tenant_id, sensor_id, location_id, product_id, kind, severity, message,
	condition_key, violations, last_value, unit, state, escalation_level,
	email_sent, sms_sent, push_sent, resolution_note, created_at, resolved_at, updated_at
FROM alerts
WHERE tenant_id = $1`
	args := []any{tenantID}
	if filter.State != "" {
		args = append(args, filter.State)
		query += " AND state = $" + strconv.Itoa(len(args))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += " AND kind = $" + strconv.Itoa(len(args))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		query += " AND severity = $" + strconv.Itoa(len(args))
	}
	if filter.SensorID != "" {
		args = append(args, filter.SensorID)
		query += " AND sensor_id = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += " LIMIT $" + strconv.Itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerts.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListEscalatable returns open critical alerts created before the cutoff
// and below the level cap, oldest first.
func (r *AlertRepository) ListEscalatable(ctx context.Context, olderThan time.Time, maxLevel, limit int) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, sensor_id, location_id, product_id, kind, severity, message,
	condition_key, violations, last_value, unit, state, escalation_level,
	email_sent, sms_sent, push_sent, resolution_note, created_at, resolved_at, updated_at
FROM alerts
WHERE severity = $1 AND state IN ('active', 'escalated')
	AND escalation_level < $2 AND updated_at < $3
ORDER BY created_at ASC
LIMIT $4`, alerts.SeverityCritical, maxLevel, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerts.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type alertScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row alertScanner) (*alerts.Alert, error) {
	var alert alerts.Alert
	var violations []byte
	var lastValue sql.NullFloat64
	var resolvedAt sql.NullTime
	if err := row.Scan(
		&alert.ID,
		&alert.TenantID,
		&alert.SensorID,
		&alert.LocationID,
		&alert.ProductID,
		&alert.Kind,
		&alert.Severity,
		&alert.Message,
		&alert.ConditionKey,
		&violations,
		&lastValue,
		&alert.Unit,
		&alert.State,
		&alert.EscalationLevel,
		&alert.EmailSent,
		&alert.SMSSent,
		&alert.PushSent,
		&alert.ResolutionNote,
		&alert.CreatedAt,
		&resolvedAt,
		&alert.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(violations) > 0 {
		if err := json.Unmarshal(violations, &alert.Violations); err != nil {
			return nil, err
		}
	}
	if lastValue.Valid {
		alert.LastValue = lastValue.Float64
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = resolvedAt.Time.UTC()
	}
	alert.CreatedAt = alert.CreatedAt.UTC()
	alert.UpdatedAt = alert.UpdatedAt.UTC()
	return &alert, nil
}

func nullableTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}
