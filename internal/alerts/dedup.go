// Package alerts decides whether a triggered rule becomes a new alert or is
// suppressed by an existing active one.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agrosense/internal/logger"
	"agrosense/internal/metrics"
	"agrosense/internal/models"
	"agrosense/internal/storage"
)

// Result is the outcome of EnsureAlert. Exactly one of the two shapes holds:
// Created with the new alert, or suppressed with the existing alert's id.
type Result struct {
	Created    bool
	Alert      *models.Alert // set when Created
	ExistingID uuid.UUID     // set when suppressed, uuid.Nil if unknown
}

// Deduplicator upholds the at-most-one-active-alert-per-(field, type)
// invariant. The store's partial unique index is the authoritative guard;
// the lookup here narrows the race window and the optional cache narrows it
// further without ever being authoritative.
type Deduplicator struct {
	alerts storage.AlertStore
	cache  *ActiveAlertCache
}

// NewDeduplicator builds a deduplicator. cache may be nil.
func NewDeduplicator(alertStore storage.AlertStore, cache *ActiveAlertCache) *Deduplicator {
	return &Deduplicator{alerts: alertStore, cache: cache}
}

// EnsureAlert persists a new Active alert for the candidate unless one
// already exists for (fieldID, candidate.Type). A concurrent duplicate write
// rejected by the store's uniqueness guard is reported as suppressed, not as
// an error.
func (d *Deduplicator) EnsureAlert(ctx context.Context, fieldID int, candidate models.AlertCandidate) (Result, error) {
	log := logger.WithComponent("deduplicator")

	if id, ok := d.cache.Get(ctx, fieldID, candidate.Type); ok {
		metrics.AlertsSuppressedTotal.WithLabelValues(string(candidate.Type)).Inc()
		log.Info().
			Int("field_id", fieldID).
			Str("alert_type", string(candidate.Type)).
			Str("existing_alert_id", id.String()).
			Msg("alert already active, not creating duplicate")
		return Result{ExistingID: id}, nil
	}

	existing, err := d.alerts.ActiveByFieldAndType(ctx, fieldID, candidate.Type)
	if err != nil {
		return Result{}, fmt.Errorf("lookup active alert: %w", err)
	}
	if existing != nil {
		d.cache.Set(ctx, existing)
		metrics.AlertsSuppressedTotal.WithLabelValues(string(candidate.Type)).Inc()
		log.Info().
			Int("field_id", fieldID).
			Str("alert_type", string(candidate.Type)).
			Str("existing_alert_id", existing.ID.String()).
			Msg("alert already active, not creating duplicate")
		return Result{ExistingID: existing.ID}, nil
	}

	alert := &models.Alert{
		ID:           uuid.New(),
		FieldID:      fieldID,
		Type:         candidate.Type,
		Severity:     candidate.Severity,
		Status:       models.StatusActive,
		Message:      candidate.Message,
		TriggerValue: candidate.TriggerValue,
		CreatedAt:    time.Now().UTC(),
	}

	if err := d.alerts.Insert(ctx, alert); err != nil {
		if errors.Is(err, storage.ErrDuplicateActiveAlert) {
			// Another consumer instance won the race; treat as suppressed.
			return d.suppressedByRace(ctx, fieldID, candidate), nil
		}
		return Result{}, fmt.Errorf("insert alert: %w", err)
	}

	d.cache.Set(ctx, alert)
	metrics.AlertsCreatedTotal.WithLabelValues(string(alert.Type)).Inc()
	log.Warn().
		Str("alert_id", alert.ID.String()).
		Int("field_id", fieldID).
		Str("alert_type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Float64("trigger_value", alert.TriggerValue).
		Msg("alert created")

	return Result{Created: true, Alert: alert}, nil
}

func (d *Deduplicator) suppressedByRace(ctx context.Context, fieldID int, candidate models.AlertCandidate) Result {
	metrics.AlertsSuppressedTotal.WithLabelValues(string(candidate.Type)).Inc()

	result := Result{}
	if winner, err := d.alerts.ActiveByFieldAndType(ctx, fieldID, candidate.Type); err == nil && winner != nil {
		result.ExistingID = winner.ID
		d.cache.Set(ctx, winner)
	}

	logger.WithComponent("deduplicator").Info().
		Int("field_id", fieldID).
		Str("alert_type", string(candidate.Type)).
		Str("existing_alert_id", result.ExistingID.String()).
		Msg("concurrent duplicate rejected by store, treating as suppressed")

	return result
}
