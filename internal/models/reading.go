package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SensorType identifies the kind of measurement a field sensor reports.
// The set is closed; unknown strings must be rejected, never defaulted.
type SensorType string

const (
	SensorSoilHumidity SensorType = "SoilHumidity"
	SensorTemperature  SensorType = "Temperature"
	SensorRainfall     SensorType = "Rainfall"
)

// ErrUnknownSensorType marks a sensorType string outside the closed set.
var ErrUnknownSensorType = errors.New("unknown sensor type")

// ParseSensorType matches s case-insensitively against the closed sensor set.
func ParseSensorType(s string) (SensorType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "soilhumidity":
		return SensorSoilHumidity, nil
	case "temperature":
		return SensorTemperature, nil
	case "rainfall":
		return SensorRainfall, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSensorType, s)
	}
}

// IsValid reports whether the sensor type is one of the closed set.
func (s SensorType) IsValid() bool {
	switch s {
	case SensorSoilHumidity, SensorTemperature, SensorRainfall:
		return true
	default:
		return false
	}
}

// SensorReading is a single measurement from a field sensor. Immutable once
// persisted; the analysis service only ever appends readings.
type SensorReading struct {
	// FieldID identifies the unit of farmland the sensor belongs to
	FieldID int `json:"field_id"`

	// SensorType determines the unit of Value
	SensorType SensorType `json:"sensor_type"`

	// Value in the unit implied by SensorType (%, Celsius, mm)
	Value float64 `json:"value"`

	// Timestamp is event time, supplied by the producer
	Timestamp time.Time `json:"timestamp"`

	// ProcessedAt is ingestion time, assigned by this service
	ProcessedAt time.Time `json:"processed_at"`
}
