// Package rules holds the threshold rules that turn sensor readings into
// alert candidates. Evaluation is pure: no I/O, no clock, no side effects.
package rules

import (
	"fmt"

	"agrosense/internal/models"
)

// Thresholds. Units follow the sensor type: percent for soil humidity,
// degrees Celsius for temperature, millimetres for rainfall.
const (
	SoilHumidityCritical   = 20.0 // below: drought critical
	SoilHumidityWarning    = 30.0 // below (and >= critical): drought warning
	SoilHumiditySaturation = 80.0 // above: saturation
	TemperatureFrost       = 2.0  // below: frost risk
	TemperatureHeat        = 32.0 // above: heat stress
	RainfallHeavy          = 20.0 // above: heavy rain
)

// Evaluate maps a reading to at most one alert candidate. A nil candidate
// with a nil error means the reading is in the normal range. A reading whose
// sensor type is outside the closed set fails with ErrUnknownSensorType.
func Evaluate(r models.SensorReading) (*models.AlertCandidate, error) {
	switch r.SensorType {
	case models.SensorSoilHumidity:
		return evaluateSoilHumidity(r), nil
	case models.SensorTemperature:
		return evaluateTemperature(r), nil
	case models.SensorRainfall:
		return evaluateRainfall(r), nil
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownSensorType, r.SensorType)
	}
}

func evaluateSoilHumidity(r models.SensorReading) *models.AlertCandidate {
	switch {
	case r.Value < SoilHumidityCritical:
		return &models.AlertCandidate{
			Type:     models.AlertDroughtCritical,
			Severity: models.SeverityCritical,
			Message: fmt.Sprintf("Soil humidity %.1f%% is below the critical threshold of %.1f%% on field %d",
				r.Value, SoilHumidityCritical, r.FieldID),
			TriggerValue: r.Value,
		}
	case r.Value < SoilHumidityWarning:
		return &models.AlertCandidate{
			Type:     models.AlertDroughtWarning,
			Severity: models.SeverityHigh,
			Message: fmt.Sprintf("Soil humidity %.1f%% is below the warning threshold of %.1f%% on field %d",
				r.Value, SoilHumidityWarning, r.FieldID),
			TriggerValue: r.Value,
		}
	case r.Value > SoilHumiditySaturation:
		return &models.AlertCandidate{
			Type:     models.AlertSaturation,
			Severity: models.SeverityMedium,
			Message: fmt.Sprintf("Soil humidity %.1f%% is above the saturation threshold of %.1f%% on field %d",
				r.Value, SoilHumiditySaturation, r.FieldID),
			TriggerValue: r.Value,
		}
	default:
		return nil
	}
}

func evaluateTemperature(r models.SensorReading) *models.AlertCandidate {
	switch {
	case r.Value < TemperatureFrost:
		return &models.AlertCandidate{
			Type:     models.AlertFrostRisk,
			Severity: models.SeverityCritical,
			Message: fmt.Sprintf("Temperature %.1fC is below the frost threshold of %.1fC on field %d",
				r.Value, TemperatureFrost, r.FieldID),
			TriggerValue: r.Value,
		}
	case r.Value > TemperatureHeat:
		return &models.AlertCandidate{
			Type:     models.AlertHeatStress,
			Severity: models.SeverityHigh,
			Message: fmt.Sprintf("Temperature %.1fC is above the heat stress threshold of %.1fC on field %d",
				r.Value, TemperatureHeat, r.FieldID),
			TriggerValue: r.Value,
		}
	default:
		return nil
	}
}

func evaluateRainfall(r models.SensorReading) *models.AlertCandidate {
	if r.Value > RainfallHeavy {
		return &models.AlertCandidate{
			Type:     models.AlertHeavyRain,
			Severity: models.SeverityMedium,
			Message: fmt.Sprintf("Rainfall %.1fmm is above the heavy rain threshold of %.1fmm on field %d",
				r.Value, RainfallHeavy, r.FieldID),
			TriggerValue: r.Value,
		}
	}
	return nil
}
