package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pokopt/fuer-assignment/internal/models"
	"github.com/pokopt/fuer-assignment/internal/registry"
)

// maxSourceLen matches the VARCHAR(255) column backing the source field.
const maxSourceLen = 255

// RawReading is the wire shape of one reading before validation. Fields are
// typed loosely so shape errors can be reported per field instead of as a
// generic decode failure.
type RawReading struct {
	Value     any `json:"value"`
	Timestamp any `json:"timestamp"`
	Source    any `json:"source"`
}

// RawMeasurement is the single-ingest wire payload, where the kind rides in
// the body.
type RawMeasurement struct {
	Kind      any `json:"kind"`
	Value     any `json:"value"`
	Timestamp any `json:"timestamp"`
	Source    any `json:"source"`
}

// Validator turns raw wire payloads into validated Readings.
type Validator struct {
	registry *registry.Registry
}

// New creates a Validator over the given registry.
func New(reg *registry.Registry) *Validator {
	return &Validator{registry: reg}
}

// ValidateMeasurement checks a single-ingest payload.
func (v *Validator) ValidateMeasurement(raw RawMeasurement) (models.Reading, error) {
	kindName, err := toKindName(raw.Kind)
	if err != nil {
		return models.Reading{}, err
	}
	return v.Validate(kindName, RawReading{Value: raw.Value, Timestamp: raw.Timestamp, Source: raw.Source})
}

// Validate checks one reading addressed to the named kind: the kind must be
// enabled, the fields must have the expected shapes and the value must lie
// within the kind's bounds. The returned Reading is normalized to UTC; a
// missing timestamp defaults to the current time.
func (v *Validator) Validate(kindName string, raw RawReading) (models.Reading, error) {
	kind, err := v.registry.Resolve(kindName)
	if err != nil {
		return models.Reading{}, err
	}

	value, err := toValue(raw.Value)
	if err != nil {
		return models.Reading{}, err
	}
	timestamp, err := toTimestamp(raw.Timestamp)
	if err != nil {
		return models.Reading{}, err
	}
	source, err := toSource(raw.Source)
	if err != nil {
		return models.Reading{}, err
	}

	if err := kind.Validate(value); err != nil {
		return models.Reading{}, err
	}

	return models.Reading{
		Kind:      kind.Name,
		Value:     value,
		Timestamp: timestamp,
		Source:    source,
	}, nil
}

// ValidateBatch checks every entry of a batch addressed to one kind. A
// single invalid entry rejects the whole batch; the error names the entry
// index.
func (v *Validator) ValidateBatch(kindName string, raws []RawReading) ([]models.Reading, error) {
	if _, err := v.registry.Resolve(kindName); err != nil {
		return nil, err
	}
	readings := make([]models.Reading, 0, len(raws))
	for i, raw := range raws {
		reading, err := v.Validate(kindName, raw)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

func toKindName(raw any) (string, error) {
	if raw == nil {
		return "", &models.MalformedPayloadError{Field: "kind", Reason: "is required"}
	}
	name, ok := raw.(string)
	if !ok {
		return "", &models.MalformedPayloadError{Field: "kind", Reason: fmt.Sprintf("must be a string, got %T", raw)}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &models.MalformedPayloadError{Field: "kind", Reason: "is required"}
	}
	return name, nil
}

func toValue(raw any) (float64, error) {
	if raw == nil {
		return 0, &models.MalformedPayloadError{Field: "value", Reason: "is required"}
	}
	value, ok := raw.(float64)
	if !ok {
		return 0, &models.MalformedPayloadError{Field: "value", Reason: fmt.Sprintf("must be a number, got %T", raw)}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, &models.MalformedPayloadError{Field: "value", Reason: "must be a finite number"}
	}
	return value, nil
}

func toTimestamp(raw any) (time.Time, error) {
	switch t := raw.(type) {
	case nil:
		return time.Now().UTC(), nil
	case string:
		parsed, err := ParseTimestamp(t)
		if err != nil {
			return time.Time{}, &models.MalformedPayloadError{Field: "timestamp", Reason: "must be RFC3339 or unix seconds"}
		}
		return parsed, nil
	case float64:
		return unixToTime(t), nil
	default:
		return time.Time{}, &models.MalformedPayloadError{Field: "timestamp", Reason: fmt.Sprintf("must be a string or unix seconds, got %T", raw)}
	}
}

// ParseTimestamp reads a timestamp given either as RFC3339(Nano) or as unix
// seconds. Query parameters and body fields share this format.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return parsed.UTC(), nil
	}
	if unix, err := strconv.ParseFloat(s, 64); err == nil {
		return unixToTime(unix), nil
	}
	return time.Time{}, fmt.Errorf("timestamp %q is neither RFC3339 nor unix seconds", s)
}

func unixToTime(unix float64) time.Time {
	sec, frac := math.Modf(unix)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}

func toSource(raw any) (string, error) {
	if raw == nil {
		return "", nil
	}
	source, ok := raw.(string)
	if !ok {
		return "", &models.MalformedPayloadError{Field: "source", Reason: fmt.Sprintf("must be a string, got %T", raw)}
	}
	source = strings.TrimSpace(source)
	if len(source) > maxSourceLen {
		return "", &models.MalformedPayloadError{Field: "source", Reason: fmt.Sprintf("must be at most %d characters", maxSourceLen)}
	}
	return source, nil
}
