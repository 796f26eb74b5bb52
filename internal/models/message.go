package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Decode errors
var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingFieldID   = errors.New("fieldId is required")
	ErrMissingType      = errors.New("sensorType is required")
	ErrMissingValue     = errors.New("value is required")
	ErrMissingTimestamp = errors.New("timestamp is required")
)

// sensorDataIn mirrors the inbound queue message. Field name matching is
// case-insensitive (encoding/json default); pointers distinguish missing
// fields from zero values.
type sensorDataIn struct {
	FieldID    *int       `json:"fieldId"`
	SensorType *string    `json:"sensorType"`
	Value      *float64   `json:"value"`
	Timestamp  *time.Time `json:"timestamp"`
}

// DecodeSensorData parses an inbound queue payload into a SensorReading.
// ProcessedAt is stamped with processedAt. Unknown or missing fields fail
// decoding with ErrMalformedPayload; a sensorType outside the closed set
// fails with ErrUnknownSensorType.
func DecodeSensorData(payload []byte, processedAt time.Time) (*SensorReading, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var in sensorDataIn
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	sensorType, err := ParseSensorType(*in.SensorType)
	if err != nil {
		return nil, err
	}

	return &SensorReading{
		FieldID:     *in.FieldID,
		SensorType:  sensorType,
		Value:       *in.Value,
		Timestamp:   in.Timestamp.UTC(),
		ProcessedAt: processedAt.UTC(),
	}, nil
}

func (in *sensorDataIn) validate() error {
	if in.FieldID == nil {
		return ErrMissingFieldID
	}
	if in.SensorType == nil {
		return ErrMissingType
	}
	if in.Value == nil {
		return ErrMissingValue
	}
	if in.Timestamp == nil {
		return ErrMissingTimestamp
	}
	return nil
}
