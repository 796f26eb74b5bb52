// Package storage defines the persistence contracts for readings and alerts
// and their Postgres implementation.
package storage

import (
	"context"
	"errors"

	"agrosense/internal/models"
)

// ErrDuplicateActiveAlert is returned when an alert insert hits the partial
// unique index guarding the one-active-alert-per-(field, type) invariant.
// Callers treat it as a concurrent duplicate, not a failure.
var ErrDuplicateActiveAlert = errors.New("active alert already exists for field and type")

// ReadingStore is the append-only log of sensor readings.
type ReadingStore interface {
	// Insert persists a reading. Re-inserting the same (field, type,
	// timestamp) is a no-op, which makes queue redelivery idempotent.
	Insert(ctx context.Context, r *models.SensorReading) error

	// Last24h returns the field's readings of the given type from the last
	// 24 hours, most recent first.
	Last24h(ctx context.Context, fieldID int, sensorType models.SensorType) ([]models.SensorReading, error)
}

// AlertStore is the durable alert table.
type AlertStore interface {
	// Insert persists a new alert. Returns ErrDuplicateActiveAlert if an
	// Active alert for the same (field, type) already exists.
	Insert(ctx context.Context, a *models.Alert) error

	// ActiveByField returns all Active alerts for a field, newest first.
	ActiveByField(ctx context.Context, fieldID int) ([]models.Alert, error)

	// ActiveByFieldAndType returns the Active alert for (field, type), or
	// nil if none exists.
	ActiveByFieldAndType(ctx context.Context, fieldID int, alertType models.AlertType) (*models.Alert, error)
}
