package auth

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrTenantMismatch indicates resource belongs to a different tenant.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("resource not found")
)

// SensorTenantChecker validates sensor tenant ownership.
type SensorTenantChecker interface {
	EnsureSensorTenant(ctx context.Context, tenantID, sensorID string) error
}

// SensorChecker checks sensor ownership against threshold configurations.
// A sensor belongs to the tenant that configured it.
type SensorChecker struct {
	db *sql.DB
}

// NewSensorChecker constructs a SensorChecker.
func NewSensorChecker(db *sql.DB) *SensorChecker {
	if db == nil {
		return nil
	}
	return &SensorChecker{db: db}
}

// EnsureSensorTenant verifies the sensor belongs to the tenant.
func (c *SensorChecker) EnsureSensorTenant(ctx context.Context, tenantID, sensorID string) error {
	if c == nil || c.db == nil {
		return nil
	}
	if tenantID == "" || sensorID == "" {
		return nil
	}
	var owner string
	err := c.db.QueryRowContext(ctx, `
SELECT tenant_id
FROM threshold_configs
WHERE sensor_id = $1
ORDER BY created_at ASC
LIMIT 1`, sensorID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if owner != tenantID {
		return ErrTenantMismatch
	}
	return nil
}
