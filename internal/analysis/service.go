// Package analysis runs the per-message pipeline: decode the payload,
// persist the reading, evaluate rules, and deduplicate any resulting alert.
package analysis

import (
	"context"
	"fmt"
	"time"

	"agrosense/internal/alerts"
	"agrosense/internal/logger"
	"agrosense/internal/metrics"
	"agrosense/internal/models"
	"agrosense/internal/rules"
	"agrosense/internal/storage"
)

// Outcome tells the consumer how to settle a message.
type Outcome int

const (
	// OutcomeAck: fully processed, acknowledge.
	OutcomeAck Outcome = iota
	// OutcomeReject: permanently unprocessable, negative-acknowledge
	// without requeue. The payload will never parse differently.
	OutcomeReject
	// OutcomeRequeue: transient failure after a successful parse,
	// negative-acknowledge with requeue.
	OutcomeRequeue
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeReject:
		return "reject"
	case OutcomeRequeue:
		return "requeue"
	default:
		return "unknown"
	}
}

// Notifier receives events for newly created alerts. Implementations must
// not block: notification is out-of-band of the ack path.
type Notifier interface {
	Notify(event *models.AlertEvent)
}

// Service wires the stores and the deduplicator into one message pipeline.
type Service struct {
	readings     storage.ReadingStore
	dedup        *alerts.Deduplicator
	notifier     Notifier
	storeTimeout time.Duration
}

// Config holds service dependencies.
type Config struct {
	Readings     storage.ReadingStore
	Dedup        *alerts.Deduplicator
	Notifier     Notifier // optional
	StoreTimeout time.Duration
}

// New constructs the analysis service.
func New(cfg Config) *Service {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Service{
		readings:     cfg.Readings,
		dedup:        cfg.Dedup,
		notifier:     cfg.Notifier,
		storeTimeout: cfg.StoreTimeout,
	}
}

// Process handles one queue message to completion and reports how the
// delivery should be settled. Business outcomes (no rule match, suppressed
// duplicate) are not errors; only infrastructure failures requeue.
func (s *Service) Process(ctx context.Context, payload []byte) (Outcome, error) {
	log := logger.WithComponent("analysis")
	start := time.Now()
	defer func() {
		metrics.MessageProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	reading, err := models.DecodeSensorData(payload, time.Now().UTC())
	if err != nil {
		return OutcomeReject, err
	}

	log.Info().
		Int("field_id", reading.FieldID).
		Str("sensor_type", string(reading.SensorType)).
		Float64("value", reading.Value).
		Time("timestamp", reading.Timestamp).
		Msg("processing sensor reading")

	if err := s.persistReading(ctx, reading); err != nil {
		return OutcomeRequeue, fmt.Errorf("persist reading: %w", err)
	}
	metrics.ReadingsPersistedTotal.Inc()

	candidate, err := rules.Evaluate(*reading)
	if err != nil {
		// Unreachable after a successful decode; kept so an invalid
		// reading can never fall through to a default rule branch.
		return OutcomeReject, err
	}
	if candidate == nil {
		return OutcomeAck, nil
	}

	metrics.RuleTriggersTotal.WithLabelValues(string(candidate.Type)).Inc()
	log.Info().
		Int("field_id", reading.FieldID).
		Str("alert_type", string(candidate.Type)).
		Str("severity", string(candidate.Severity)).
		Float64("trigger_value", candidate.TriggerValue).
		Msg("rule triggered")

	if isDrought(candidate.Type) {
		if err := s.logDroughtContext(ctx, reading); err != nil {
			return OutcomeRequeue, fmt.Errorf("drought context lookup: %w", err)
		}
	}

	result, err := s.ensureAlert(ctx, reading.FieldID, *candidate)
	if err != nil {
		return OutcomeRequeue, fmt.Errorf("ensure alert: %w", err)
	}

	if result.Created && s.notifier != nil {
		s.notifier.Notify(models.NewAlertEvent(result.Alert))
	}

	return OutcomeAck, nil
}

func (s *Service) persistReading(ctx context.Context, reading *models.SensorReading) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.readings.Insert(ctx, reading)
}

func (s *Service) ensureAlert(ctx context.Context, fieldID int, candidate models.AlertCandidate) (alerts.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.dedup.EnsureAlert(ctx, fieldID, candidate)
}

func isDrought(t models.AlertType) bool {
	return t == models.AlertDroughtCritical || t == models.AlertDroughtWarning
}

// logDroughtContext reports how sustained the dry spell is: the field's soil
// humidity readings from the last 24 hours and whether every one of them sits
// below the warning threshold. Observability only; it never gates creation.
func (s *Service) logDroughtContext(ctx context.Context, reading *models.SensorReading) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	recent, err := s.readings.Last24h(ctx, reading.FieldID, models.SensorSoilHumidity)
	if err != nil {
		return err
	}

	allBelow := len(recent) > 0
	for _, r := range recent {
		if r.Value >= rules.SoilHumidityWarning {
			allBelow = false
			break
		}
	}

	logger.WithComponent("analysis").Info().
		Int("field_id", reading.FieldID).
		Int("readings_24h", len(recent)).
		Bool("all_below_warning", allBelow).
		Msg("drought condition context")

	return nil
}
