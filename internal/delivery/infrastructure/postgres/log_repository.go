package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	delivery "warehouse-sentinel/internal/delivery/domain"
)

// LogRepository is a Postgres repository for the delivery log.
type LogRepository struct {
	db *sql.DB
}

// NewLogRepository constructs a repository.
func NewLogRepository(db *sql.DB) *LogRepository {
	return &LogRepository{db: db}
}

// Append inserts one delivery log entry.
func (r *LogRepository) Append(ctx context.Context, entry delivery.Entry) error {
	if r == nil || r.db == nil {
		return errors.New("delivery repo: nil db")
	}
	if entry.ID == "" || entry.AlertID == "" || entry.Channel == "" {
		return errors.New("delivery repo: missing fields")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO delivery_log (
	id, tenant_id, alert_id, channel, destination, provider_message_id,
	status, error_code, error_message, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10, $11
)`,
		entry.ID,
		entry.TenantID,
		entry.AlertID,
		entry.Channel,
		entry.Destination,
		entry.ProviderMessageID,
		entry.Status,
		entry.ErrorCode,
		entry.ErrorMessage,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	return err
}

// UpdateStatusByProviderMessageID applies a provider callback to the entry
// it references. Returns ErrNotFound when no entry carries the message id.
func (r *LogRepository) UpdateStatusByProviderMessageID(ctx context.Context, providerMessageID, status, errorCode, errorMessage string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("delivery repo: nil db")
	}
	if providerMessageID == "" {
		return errors.New("delivery repo: provider message id required")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE delivery_log
SET status = $1, error_code = $2, error_message = $3, updated_at = $4
WHERE provider_message_id = $5`, status, errorCode, errorMessage, at, providerMessageID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return delivery.ErrNotFound
	}
	return nil
}

// List returns delivery entries for a tenant applying the filter.
func (r *LogRepository) List(ctx context.Context, tenantID string, filter delivery.Filter) ([]delivery.Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("delivery repo: nil db")
	}
	if tenantID == "" {
		return nil, errors.New("delivery repo: invalid query")
	}
	query := `
SELECT id, tenant_id, alert_id, channel, destination, provider_message_id,
	status, error_code, error_message, created_at, updated_at
FROM delivery_log
WHERE tenant_id = $1`
	args := []any{tenantID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += " AND status = $" + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From.UTC())
		query += " AND created_at >= $" + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.UTC())
		query += " AND created_at < $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	args = append(args, limit)
	query += " LIMIT $" + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []delivery.Entry
	for rows.Next() {
		var entry delivery.Entry
		if err := rows.Scan(
			&entry.ID,
			&entry.TenantID,
			&entry.AlertID,
			&entry.Channel,
			&entry.Destination,
			&entry.ProviderMessageID,
			&entry.Status,
			&entry.ErrorCode,
			&entry.ErrorMessage,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entry.UpdatedAt = entry.UpdatedAt.UTC()
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListByAlert returns every delivery attempt for one alert.
func (r *LogRepository) ListByAlert(ctx context.Context, tenantID, alertID string) ([]delivery.Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("delivery repo: nil db")
	}
	if tenantID == "" || alertID == "" {
		return nil, errors.New("delivery repo: invalid query")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, alert_id, channel, destination, provider_message_id,
	status, error_code, error_message, created_at, updated_at
FROM delivery_log
WHERE tenant_id = $1 AND alert_id = $2
ORDER BY created_at ASC`, tenantID, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []delivery.Entry
	for rows.Next() {
		var entry delivery.Entry
		if err := rows.Scan(
			&entry.ID,
			&entry.TenantID,
			&entry.AlertID,
			&entry.Channel,
			&entry.Destination,
			&entry.ProviderMessageID,
			&entry.Status,
			&entry.ErrorCode,
			&entry.ErrorMessage,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entry.UpdatedAt = entry.UpdatedAt.UTC()
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Stats aggregates delivery counts by status within a window.
func (r *LogRepository) Stats(ctx context.Context, tenantID string, from, to time.Time) (delivery.Stats, error) {
	var stats delivery.Stats
	if r == nil || r.db == nil {
		return stats, errors.New("delivery repo: nil db")
	}
	if tenantID == "" {
		return stats, errors.New("delivery repo: invalid query")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT status, COUNT(*)
FROM delivery_log
WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
GROUP BY status`, tenantID, from.UTC(), to.UTC())
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.Total += count
		switch status {
		case delivery.StatusSent, delivery.StatusQueued:
			stats.Sent += count
		case delivery.StatusDelivered:
			stats.Delivered += count
		case delivery.StatusFailed:
			stats.Failed += count
		case delivery.StatusUndelivered, delivery.StatusCanceled:
			stats.Undelivered += count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Delivered+stats.Sent) / float64(stats.Total)
	}
	return stats, nil
}

// FailuresByDay returns daily failed/undelivered counts within a window.
func (r *LogRepository) FailuresByDay(ctx context.Context, tenantID string, from, to time.Time) ([]delivery.DayFailures, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("delivery repo: nil db")
	}
	if tenantID == "" {
		return nil, errors.New("delivery repo: invalid query")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT DATE(created_at) AS day, COUNT(*)
FROM delivery_log
WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
	AND status IN ('FAILED', 'UNDELIVERED')
GROUP BY DATE(created_at)
ORDER BY day ASC`, tenantID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []delivery.DayFailures
	for rows.Next() {
		var day time.Time
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, err
		}
		result = append(result, delivery.DayFailures{Day: day.UTC().Format("2006-01-02"), Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
