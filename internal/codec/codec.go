// Package codec turns device frames into validated sensor readings.
//
// A frame is one line of JSON such as
//
//	{"co_before":5,"nox_before":3,"co_after":2,"nox_after":1,"co_reduction":60,"nox_reduction":66.7}
//
// An optional "timestamp" key (RFC 3339 or "2006-01-02 15:04:05") pins the
// reading to a given instant; otherwise the store stamps it on insert.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/nitronimbus/nitronimbus/internal/models"
)

const (
	FieldCOBefore     = "co_before"
	FieldNOxBefore    = "nox_before"
	FieldCOAfter      = "co_after"
	FieldNOxAfter     = "nox_after"
	FieldCOReduction  = "co_reduction"
	FieldNOxReduction = "nox_reduction"
	FieldTimestamp    = "timestamp"

	legacyTimestampLayout = "2006-01-02 15:04:05"
)

// RequiredFields lists the numeric keys every frame must carry, in wire order.
var RequiredFields = []string{
	FieldCOBefore,
	FieldNOxBefore,
	FieldCOAfter,
	FieldNOxAfter,
	FieldCOReduction,
	FieldNOxReduction,
}

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrMissingField = errors.New("missing field")
	ErrNotNumeric   = errors.New("field is not numeric")
)

type DecodeErrorKind int

const (
	Malformed DecodeErrorKind = iota
	MissingField
	NotNumeric
)

func (k DecodeErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case MissingField:
		return "missing_field"
	case NotNumeric:
		return "not_numeric"
	default:
		return "unknown"
	}
}

// DecodeError explains why a frame was rejected. Field is empty for
// Malformed errors.
type DecodeError struct {
	Kind  DecodeErrorKind
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case MissingField:
		return fmt.Sprintf("missing field %q", e.Field)
	case NotNumeric:
		return fmt.Sprintf("field %q is not numeric: %v", e.Field, e.Err)
	default:
		return fmt.Sprintf("malformed frame: %v", e.Err)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	switch e.Kind {
	case Malformed:
		return target == ErrMalformed
	case MissingField:
		return target == ErrMissingField
	case NotNumeric:
		return target == ErrNotNumeric
	}
	return false
}

// Decode parses one frame. It never panics; every failure is a *DecodeError.
func Decode(frame []byte) (models.SensorReading, error) {
	var reading models.SensorReading

	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 {
		return reading, &DecodeError{Kind: Malformed, Err: errors.New("empty frame")}
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return reading, &DecodeError{Kind: Malformed, Err: err}
	}
	if payload == nil {
		return reading, &DecodeError{Kind: Malformed, Err: errors.New("frame is not an object")}
	}

	targets := map[string]*float64{
		FieldCOBefore:     &reading.COBefore,
		FieldNOxBefore:    &reading.NOxBefore,
		FieldCOAfter:      &reading.COAfter,
		FieldNOxAfter:     &reading.NOxAfter,
		FieldCOReduction:  &reading.COReduction,
		FieldNOxReduction: &reading.NOxReduction,
	}

	for _, field := range RequiredFields {
		raw, ok := payload[field]
		if !ok {
			return models.SensorReading{}, &DecodeError{Kind: MissingField, Field: field, Err: ErrMissingField}
		}

		value, err := parseNumber(raw)
		if err != nil {
			return models.SensorReading{}, &DecodeError{Kind: NotNumeric, Field: field, Err: err}
		}

		*targets[field] = value
	}

	if raw, ok := payload[FieldTimestamp]; ok && !isNull(raw) {
		timestamp, err := parseTimestamp(raw)
		if err != nil {
			return models.SensorReading{}, &DecodeError{Kind: Malformed, Field: FieldTimestamp, Err: err}
		}
		reading.Timestamp = timestamp
	}

	return reading, nil
}

// parseNumber accepts JSON numbers and numeric strings, since some firmware
// quotes its floats.
func parseNumber(raw json.RawMessage) (float64, error) {
	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return 0, fmt.Errorf("%s is not a number", raw)
	}

	value, err := strconv.ParseFloat(number.String(), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%s is not finite", number)
	}

	return value, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return time.Time{}, fmt.Errorf("timestamp must be a string: %w", err)
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}

	return time.ParseInLocation(legacyTimestampLayout, value, time.Local)
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

type wireFrame struct {
	COBefore     float64 `json:"co_before"`
	NOxBefore    float64 `json:"nox_before"`
	COAfter      float64 `json:"co_after"`
	NOxAfter     float64 `json:"nox_after"`
	COReduction  float64 `json:"co_reduction"`
	NOxReduction float64 `json:"nox_reduction"`
	Timestamp    string  `json:"timestamp,omitempty"`
}

// Encode renders a reading as a newline-terminated frame, the inverse of
// Decode. A zero timestamp is omitted.
func Encode(reading models.SensorReading) ([]byte, error) {
	frame := wireFrame{
		COBefore:     reading.COBefore,
		NOxBefore:    reading.NOxBefore,
		COAfter:      reading.COAfter,
		NOxAfter:     reading.NOxAfter,
		COReduction:  reading.COReduction,
		NOxReduction: reading.NOxReduction,
	}
	if !reading.Timestamp.IsZero() {
		frame.Timestamp = reading.Timestamp.Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reading: %w", err)
	}

	return append(data, '\n'), nil
}
