package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pokopt/fuer-assignment/internal/models"
	"github.com/pokopt/fuer-assignment/internal/registry"
)

// MemoryRepository keeps records in process memory. It backs local runs and
// tests; ordering and aggregation semantics mirror the Postgres adapter.
type MemoryRepository struct {
	mu      sync.RWMutex
	records []models.StoredRecord
	kinds   map[string]struct{}
}

// NewMemoryRepository creates an empty in-memory store for the given kinds.
func NewMemoryRepository(kinds []registry.Kind) *MemoryRepository {
	known := make(map[string]struct{}, len(kinds))
	for _, kind := range kinds {
		known[kind.Name] = struct{}{}
	}
	return &MemoryRepository{kinds: known}
}

func (r *MemoryRepository) Append(ctx context.Context, reading models.Reading) (models.StoredRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.append(reading)
	if err != nil {
		return models.StoredRecord{}, err
	}
	return record, nil
}

func (r *MemoryRepository) AppendBatch(ctx context.Context, readings []models.Reading) ([]models.StoredRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// all-or-nothing: verify every kind before the first write
	for _, reading := range readings {
		if _, ok := r.kinds[reading.Kind]; !ok {
			return nil, fmt.Errorf("kind %q has no storage partition", reading.Kind)
		}
	}
	records := make([]models.StoredRecord, 0, len(readings))
	for _, reading := range readings {
		record, err := r.append(reading)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// append assumes the caller holds the write lock.
func (r *MemoryRepository) append(reading models.Reading) (models.StoredRecord, error) {
	if _, ok := r.kinds[reading.Kind]; !ok {
		return models.StoredRecord{}, fmt.Errorf("kind %q has no storage partition", reading.Kind)
	}
	record := models.StoredRecord{
		ID:         uuid.NewString(),
		Kind:       reading.Kind,
		Value:      reading.Value,
		Timestamp:  reading.Timestamp.UTC(),
		Source:     reading.Source,
		InsertedAt: time.Now().UTC(),
	}
	r.records = append(r.records, record)
	return record, nil
}

func (r *MemoryRepository) Query(ctx context.Context, kind string, from, to time.Time) ([]models.StoredRecord, error) {
	if _, ok := r.kinds[kind]; !ok {
		return nil, fmt.Errorf("kind %q has no storage partition", kind)
	}

	r.mu.RLock()
	matches := r.filter(kind, from, to)
	r.mu.RUnlock()

	// records are held in insertion order, so a stable sort keeps the
	// tie-break deterministic
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Timestamp.Before(matches[j].Timestamp)
	})
	return matches, nil
}

func (r *MemoryRepository) Aggregate(ctx context.Context, kind string, from, to time.Time, agg models.Aggregation) (models.AggregateResult, error) {
	if _, ok := r.kinds[kind]; !ok {
		return models.AggregateResult{}, fmt.Errorf("kind %q has no storage partition", kind)
	}

	r.mu.RLock()
	matches := r.filter(kind, from, to)
	r.mu.RUnlock()

	result := models.AggregateResult{Kind: kind, Aggregation: agg, Count: int64(len(matches))}
	switch agg {
	case models.AggregationCount:
		v := float64(len(matches))
		result.Value = &v
	case models.AggregationAvg:
		if len(matches) > 0 {
			sum := 0.0
			for _, record := range matches {
				sum += record.Value
			}
			v := sum / float64(len(matches))
			result.Value = &v
		}
	case models.AggregationMin:
		if len(matches) > 0 {
			v := matches[0].Value
			for _, record := range matches[1:] {
				if record.Value < v {
					v = record.Value
				}
			}
			result.Value = &v
		}
	case models.AggregationMax:
		if len(matches) > 0 {
			v := matches[0].Value
			for _, record := range matches[1:] {
				if record.Value > v {
					v = record.Value
				}
			}
			result.Value = &v
		}
	default:
		return models.AggregateResult{}, fmt.Errorf("unsupported aggregation %q", agg)
	}
	return result, nil
}

// filter assumes the caller holds at least the read lock. Both window ends
// are inclusive.
func (r *MemoryRepository) filter(kind string, from, to time.Time) []models.StoredRecord {
	matches := []models.StoredRecord{}
	for _, record := range r.records {
		if record.Kind != kind {
			continue
		}
		if record.Timestamp.Before(from) || record.Timestamp.After(to) {
			continue
		}
		matches = append(matches, record)
	}
	return matches
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
