package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertType names the environmental condition an alert reports.
type AlertType string

const (
	AlertDroughtCritical AlertType = "DROUGHT_CRITICAL"
	AlertDroughtWarning  AlertType = "DROUGHT_WARNING"
	AlertSaturation      AlertType = "SATURATION"
	AlertFrostRisk       AlertType = "FROST_RISK"
	AlertHeatStress      AlertType = "HEAT_STRESS"
	AlertHeavyRain       AlertType = "HEAVY_RAIN"
)

// IsValid reports whether the alert type is one of the known conditions.
func (t AlertType) IsValid() bool {
	switch t {
	case AlertDroughtCritical, AlertDroughtWarning, AlertSaturation,
		AlertFrostRisk, AlertHeatStress, AlertHeavyRain:
		return true
	default:
		return false
	}
}

// AlertSeverity ranks how urgent an alert is.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "Critical"
	SeverityHigh     AlertSeverity = "High"
	SeverityMedium   AlertSeverity = "Medium"
)

// AlertStatus is the lifecycle state of an alert. This service only ever
// creates Active alerts; resolution happens elsewhere.
type AlertStatus string

const (
	StatusActive   AlertStatus = "Active"
	StatusResolved AlertStatus = "Resolved"
)

// Alert is a persisted environmental alert for a field. At most one Active
// alert may exist per (FieldID, Type) pair.
type Alert struct {
	ID           uuid.UUID     `json:"id"`
	FieldID      int           `json:"field_id"`
	Type         AlertType     `json:"type"`
	Severity     AlertSeverity `json:"severity"`
	Status       AlertStatus   `json:"status"`
	Message      string        `json:"message"`
	TriggerValue float64       `json:"trigger_value"`
	CreatedAt    time.Time     `json:"created_at"`
	ResolvedAt   *time.Time    `json:"resolved_at,omitempty"`
}

// AlertCandidate is the outcome of rule evaluation: a condition that should
// become an alert unless an equivalent active alert already exists.
type AlertCandidate struct {
	Type         AlertType
	Severity     AlertSeverity
	Message      string
	TriggerValue float64
}

// AlertEvent is the notification payload published for a newly created alert.
type AlertEvent struct {
	AlertID      uuid.UUID     `json:"alert_id"`
	FieldID      int           `json:"field_id"`
	Type         AlertType     `json:"type"`
	Severity     AlertSeverity `json:"severity"`
	Message      string        `json:"message"`
	TriggerValue float64       `json:"trigger_value"`
	CreatedAt    time.Time     `json:"created_at"`
}

// NewAlertEvent builds the notification event for a created alert.
func NewAlertEvent(a *Alert) *AlertEvent {
	return &AlertEvent{
		AlertID:      a.ID,
		FieldID:      a.FieldID,
		Type:         a.Type,
		Severity:     a.Severity,
		Message:      a.Message,
		TriggerValue: a.TriggerValue,
		CreatedAt:    a.CreatedAt,
	}
}
