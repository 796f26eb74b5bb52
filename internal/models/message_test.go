package models_test

import (
	"errors"
	"testing"
	"time"

	"agrosense/internal/models"
)

func TestDecodeSensorData(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{
			"valid message",
			`{"fieldId": 5, "sensorType": "SoilHumidity", "value": 15.0, "timestamp": "2026-08-29T10:00:00Z"}`,
			nil,
		},
		{
			"case-insensitive field names",
			`{"FIELDID": 5, "SENSORTYPE": "Temperature", "VALUE": 1.5, "TIMESTAMP": "2026-08-29T10:00:00Z"}`,
			nil,
		},
		{
			"not json",
			`this is not json`,
			models.ErrMalformedPayload,
		},
		{
			"missing fieldId",
			`{"sensorType": "SoilHumidity", "value": 15.0, "timestamp": "2026-08-29T10:00:00Z"}`,
			models.ErrMalformedPayload,
		},
		{
			"missing sensorType",
			`{"fieldId": 5, "value": 15.0, "timestamp": "2026-08-29T10:00:00Z"}`,
			models.ErrMalformedPayload,
		},
		{
			"missing value",
			`{"fieldId": 5, "sensorType": "SoilHumidity", "timestamp": "2026-08-29T10:00:00Z"}`,
			models.ErrMalformedPayload,
		},
		{
			"missing timestamp",
			`{"fieldId": 5, "sensorType": "SoilHumidity", "value": 15.0}`,
			models.ErrMalformedPayload,
		},
		{
			"unknown extra field",
			`{"fieldId": 5, "sensorType": "SoilHumidity", "value": 15.0, "timestamp": "2026-08-29T10:00:00Z", "unit": "%"}`,
			models.ErrMalformedPayload,
		},
		{
			"unparseable timestamp",
			`{"fieldId": 5, "sensorType": "SoilHumidity", "value": 15.0, "timestamp": "yesterday"}`,
			models.ErrMalformedPayload,
		},
		{
			"unknown sensor type",
			`{"fieldId": 5, "sensorType": "Wind", "value": 15.0, "timestamp": "2026-08-29T10:00:00Z"}`,
			models.ErrUnknownSensorType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading, err := models.DecodeSensorData([]byte(tt.payload), now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeSensorData() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeSensorData() error = %v", err)
			}
			if reading.FieldID != 5 {
				t.Errorf("field id = %d, want 5", reading.FieldID)
			}
			if !reading.ProcessedAt.Equal(now) {
				t.Errorf("processed at = %v, want %v", reading.ProcessedAt, now)
			}
		})
	}
}

func TestDecodeSensorTypeCaseInsensitive(t *testing.T) {
	payload := `{"fieldId": 3, "sensorType": "soilhumidity", "value": 42.0, "timestamp": "2026-08-29T10:00:00Z"}`

	reading, err := models.DecodeSensorData([]byte(payload), time.Now().UTC())
	if err != nil {
		t.Fatalf("DecodeSensorData() error = %v", err)
	}
	if reading.SensorType != models.SensorSoilHumidity {
		t.Errorf("sensor type = %s, want %s", reading.SensorType, models.SensorSoilHumidity)
	}
}
