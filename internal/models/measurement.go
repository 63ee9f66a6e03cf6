package models

import (
	"fmt"
	"strings"
	"time"
)

// Reading is a validated measurement accepted for storage.
type Reading struct {
	Kind      string    `json:"kind"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// StoredRecord is a Reading persisted by the storage adapter. Records are
// immutable once written.
type StoredRecord struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source,omitempty"`
	InsertedAt time.Time `json:"inserted_at"`
}

// Aggregation selects a server-side computation over a query window.
type Aggregation string

const (
	AggregationCount Aggregation = "count"
	AggregationAvg   Aggregation = "avg"
	AggregationMin   Aggregation = "min"
	AggregationMax   Aggregation = "max"
)

// ParseAggregation maps the agg query parameter to a supported aggregation.
func ParseAggregation(s string) (Aggregation, error) {
	agg := Aggregation(strings.ToLower(strings.TrimSpace(s)))
	switch agg {
	case AggregationCount, AggregationAvg, AggregationMin, AggregationMax:
		return agg, nil
	default:
		return "", &MalformedPayloadError{
			Field:  "agg",
			Reason: fmt.Sprintf("unsupported aggregation %q (want count, avg, min or max)", s),
		}
	}
}

// AggregateResult is the outcome of one aggregation over one kind. Count
// always holds the number of records in the window. Value holds the
// aggregation outcome and is nil when avg, min or max ran over an empty
// window.
type AggregateResult struct {
	Kind        string      `json:"kind"`
	Aggregation Aggregation `json:"aggregation"`
	Count       int64       `json:"count"`
	Value       *float64    `json:"value"`
}
