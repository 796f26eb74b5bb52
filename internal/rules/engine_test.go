package rules_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"agrosense/internal/models"
	"agrosense/internal/rules"
)

func reading(sensorType models.SensorType, value float64) models.SensorReading {
	return models.SensorReading{
		FieldID:     7,
		SensorType:  sensorType,
		Value:       value,
		Timestamp:   time.Now().UTC(),
		ProcessedAt: time.Now().UTC(),
	}
}

func TestEvaluateSoilHumidity(t *testing.T) {
	tests := []struct {
		name         string
		value        float64
		wantType     models.AlertType
		wantSeverity models.AlertSeverity
		wantNone     bool
	}{
		{"well below critical", 5.0, models.AlertDroughtCritical, models.SeverityCritical, false},
		{"just below critical", 19.9, models.AlertDroughtCritical, models.SeverityCritical, false},
		{"critical boundary falls to warning", 20.0, models.AlertDroughtWarning, models.SeverityHigh, false},
		{"mid warning range", 25.0, models.AlertDroughtWarning, models.SeverityHigh, false},
		{"just below warning boundary", 29.9, models.AlertDroughtWarning, models.SeverityHigh, false},
		{"warning boundary is normal", 30.0, "", "", true},
		{"mid normal range", 55.0, "", "", true},
		{"saturation boundary is normal", 80.0, "", "", true},
		{"just above saturation", 80.1, models.AlertSaturation, models.SeverityMedium, false},
		{"well above saturation", 95.0, models.AlertSaturation, models.SeverityMedium, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate, err := rules.Evaluate(reading(models.SensorSoilHumidity, tt.value))
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if tt.wantNone {
				if candidate != nil {
					t.Fatalf("expected no candidate, got %+v", candidate)
				}
				return
			}
			if candidate == nil {
				t.Fatal("expected a candidate, got none")
			}
			if candidate.Type != tt.wantType {
				t.Errorf("type = %s, want %s", candidate.Type, tt.wantType)
			}
			if candidate.Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", candidate.Severity, tt.wantSeverity)
			}
			if candidate.TriggerValue != tt.value {
				t.Errorf("trigger value = %v, want %v", candidate.TriggerValue, tt.value)
			}
		})
	}
}

func TestEvaluateTemperature(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		wantType models.AlertType
		wantNone bool
	}{
		{"below frost threshold", -3.0, models.AlertFrostRisk, false},
		{"just below frost threshold", 1.9, models.AlertFrostRisk, false},
		{"frost boundary is normal", 2.0, "", true},
		{"mid normal range", 18.0, "", true},
		{"heat boundary is normal", 32.0, "", true},
		{"just above heat threshold", 32.1, models.AlertHeatStress, false},
		{"well above heat threshold", 41.0, models.AlertHeatStress, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate, err := rules.Evaluate(reading(models.SensorTemperature, tt.value))
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if tt.wantNone != (candidate == nil) {
				t.Fatalf("wantNone = %v, candidate = %+v", tt.wantNone, candidate)
			}
			if candidate != nil && candidate.Type != tt.wantType {
				t.Errorf("type = %s, want %s", candidate.Type, tt.wantType)
			}
		})
	}
}

func TestEvaluateRainfall(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		wantNone bool
	}{
		{"dry", 0.0, true},
		{"heavy rain boundary is normal", 20.0, true},
		{"just above heavy rain threshold", 20.1, false},
		{"downpour", 60.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate, err := rules.Evaluate(reading(models.SensorRainfall, tt.value))
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if tt.wantNone != (candidate == nil) {
				t.Fatalf("wantNone = %v, candidate = %+v", tt.wantNone, candidate)
			}
			if candidate != nil {
				if candidate.Type != models.AlertHeavyRain {
					t.Errorf("type = %s, want %s", candidate.Type, models.AlertHeavyRain)
				}
				if candidate.Severity != models.SeverityMedium {
					t.Errorf("severity = %s, want %s", candidate.Severity, models.SeverityMedium)
				}
			}
		})
	}
}

func TestEvaluateMessageRendering(t *testing.T) {
	candidate, err := rules.Evaluate(reading(models.SensorSoilHumidity, 15.0))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if candidate == nil {
		t.Fatal("expected a candidate")
	}

	// One decimal place, the threshold, and the field id for auditability.
	for _, want := range []string{"15.0", "20.0", "field 7"} {
		if !strings.Contains(candidate.Message, want) {
			t.Errorf("message %q missing %q", candidate.Message, want)
		}
	}
}

func TestEvaluateUnknownSensorType(t *testing.T) {
	_, err := rules.Evaluate(reading(models.SensorType("Wind"), 10.0))
	if !errors.Is(err, models.ErrUnknownSensorType) {
		t.Fatalf("expected ErrUnknownSensorType, got %v", err)
	}
}
