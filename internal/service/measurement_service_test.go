package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pokopt/fuer-assignment/internal/models"
	"github.com/pokopt/fuer-assignment/internal/registry"
	"github.com/pokopt/fuer-assignment/internal/repository"
	"github.com/pokopt/fuer-assignment/internal/validation"
	"github.com/pokopt/fuer-assignment/pkg/logger"
)

func newService(t *testing.T, kinds ...string) *MeasurementService {
	t.Helper()
	reg, err := registry.New(kinds)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	repo := repository.NewMemoryRepository(reg.Enabled())
	return NewMeasurementService(reg, validation.New(reg), repo, logger.New("service-test", "error", "text"))
}

func TestIngestStoresValidReading(t *testing.T) {
	svc := newService(t, "power", "flow")
	ctx := context.Background()

	record, err := svc.Ingest(ctx, validation.RawMeasurement{Kind: "power", Value: 42.0})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if record.ID == "" || record.Kind != "power" || record.Value != 42.0 {
		t.Fatalf("stored record = %+v", record)
	}
}

func TestIngestRejectsDisabledKind(t *testing.T) {
	svc := newService(t, "power", "flow")

	_, err := svc.Ingest(context.Background(), validation.RawMeasurement{Kind: "temperature", Value: 20.0})
	if !errors.Is(err, models.ErrKindNotEnabled) {
		t.Fatalf("error = %v, want ErrKindNotEnabled", err)
	}
}

func TestIngestBatchRoundTrip(t *testing.T) {
	svc := newService(t, "flow")
	ctx := context.Background()

	records, err := svc.IngestBatch(ctx, "flow", []validation.RawReading{
		{Value: 1.5, Timestamp: "2026-08-20T10:00:00Z"},
		{Value: 2.5, Timestamp: "2026-08-20T10:01:00Z"},
	})
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	from, _ := time.Parse(time.RFC3339, "2026-08-20T10:00:00Z")
	stored, err := svc.Query(ctx, QueryRequest{Kinds: []string{"flow"}, From: from, To: from.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("query after batch returned %d records, want 2", len(stored))
	}
}

func TestQueryMergesKindsByTimestamp(t *testing.T) {
	svc := newService(t, "power", "flow")
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	// interleaved across kinds
	inserts := []struct {
		kind   string
		offset time.Duration
	}{
		{"power", 3 * time.Minute},
		{"flow", time.Minute},
		{"power", 0},
		{"flow", 2 * time.Minute},
	}
	for _, in := range inserts {
		_, err := svc.Ingest(ctx, validation.RawMeasurement{
			Kind:      in.kind,
			Value:     1.0,
			Timestamp: base.Add(in.offset).Format(time.RFC3339),
		})
		if err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	records, err := svc.Query(ctx, QueryRequest{
		Kinds: []string{"power", "flow"},
		From:  base,
		To:    base.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	wantKinds := []string{"power", "flow", "flow", "power"}
	for i, want := range wantKinds {
		if records[i].Kind != want {
			t.Fatalf("records[%d].Kind = %q, want %q (merged order broken)", i, records[i].Kind, want)
		}
	}
}

func TestQueryRejectsInvertedWindow(t *testing.T) {
	svc := newService(t, "power")
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	_, err := svc.Query(context.Background(), QueryRequest{
		Kinds: []string{"power"},
		From:  base.Add(time.Hour),
		To:    base,
	})
	if !errors.Is(err, models.ErrInvalidRange) {
		t.Fatalf("error = %v, want ErrInvalidRange", err)
	}
}

func TestQueryAllowsPointWindow(t *testing.T) {
	svc := newService(t, "power")
	ctx := context.Background()
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	if _, err := svc.Ingest(ctx, validation.RawMeasurement{
		Kind: "power", Value: 7.0, Timestamp: ts.Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// from == to is a valid single-instant window
	records, err := svc.Query(ctx, QueryRequest{Kinds: []string{"power"}, From: ts, To: ts})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 1 || records[0].Value != 7.0 {
		t.Fatalf("point window returned %+v, want the 7.0 record", records)
	}
}

func TestQueryDeduplicatesRequestedKinds(t *testing.T) {
	svc := newService(t, "power")
	ctx := context.Background()
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	if _, err := svc.Ingest(ctx, validation.RawMeasurement{
		Kind: "power", Value: 1.0, Timestamp: ts.Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	records, err := svc.Query(ctx, QueryRequest{
		Kinds: []string{"power", "power"},
		From:  ts,
		To:    ts,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("duplicate kind parameter produced %d records, want 1", len(records))
	}
}

func TestQueryRequiresKinds(t *testing.T) {
	svc := newService(t, "power")

	_, err := svc.Query(context.Background(), QueryRequest{From: time.Now(), To: time.Now()})
	var malformed *models.MalformedPayloadError
	if !errors.As(err, &malformed) {
		t.Fatalf("error = %v, want MalformedPayloadError", err)
	}
}

func TestAggregateKeepsRequestOrder(t *testing.T) {
	svc := newService(t, "power", "flow")
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	for _, kind := range []string{"power", "flow"} {
		for _, value := range []float64{10, 30} {
			_, err := svc.Ingest(ctx, validation.RawMeasurement{
				Kind: kind, Value: value, Timestamp: base.Format(time.RFC3339),
			})
			if err != nil {
				t.Fatalf("Ingest: %v", err)
			}
		}
	}

	results, err := svc.Aggregate(ctx, QueryRequest{
		Kinds:       []string{"flow", "power"},
		From:        base,
		To:          base.Add(time.Hour),
		Aggregation: models.AggregationAvg,
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Kind != "flow" || results[1].Kind != "power" {
		t.Fatalf("result order = %q, %q; want flow, power", results[0].Kind, results[1].Kind)
	}
	for _, result := range results {
		if result.Value == nil || *result.Value != 20 {
			t.Fatalf("avg for %s = %v, want 20", result.Kind, result.Value)
		}
	}
}

// failingRepository simulates an unreachable storage backend.
type failingRepository struct{}

func (failingRepository) Append(ctx context.Context, reading models.Reading) (models.StoredRecord, error) {
	return models.StoredRecord{}, models.ErrStorageUnavailable
}

func (failingRepository) AppendBatch(ctx context.Context, readings []models.Reading) ([]models.StoredRecord, error) {
	return nil, models.ErrStorageUnavailable
}

func (failingRepository) Query(ctx context.Context, kind string, from, to time.Time) ([]models.StoredRecord, error) {
	return nil, models.ErrStorageUnavailable
}

func (failingRepository) Aggregate(ctx context.Context, kind string, from, to time.Time, agg models.Aggregation) (models.AggregateResult, error) {
	return models.AggregateResult{}, models.ErrStorageUnavailable
}

func (failingRepository) Ping(ctx context.Context) error { return models.ErrStorageUnavailable }

func (failingRepository) Close() error { return nil }

func TestStorageErrorsPropagate(t *testing.T) {
	reg, err := registry.New([]string{"power"})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	svc := NewMeasurementService(reg, validation.New(reg), failingRepository{}, logger.New("service-test", "error", "text"))

	_, err = svc.Ingest(context.Background(), validation.RawMeasurement{Kind: "power", Value: 1.0})
	if !errors.Is(err, models.ErrStorageUnavailable) {
		t.Fatalf("Ingest error = %v, want ErrStorageUnavailable", err)
	}
	if err := svc.Ping(context.Background()); !errors.Is(err, models.ErrStorageUnavailable) {
		t.Fatalf("Ping error = %v, want ErrStorageUnavailable", err)
	}
}
