package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pokopt/fuer-assignment/internal/models"
	"github.com/pokopt/fuer-assignment/internal/registry"
	"github.com/pokopt/fuer-assignment/internal/repository"
	"github.com/pokopt/fuer-assignment/internal/validation"
	"github.com/pokopt/fuer-assignment/pkg/logger"
)

// QueryRequest describes one retrieval call. An empty Aggregation asks for
// raw records.
type QueryRequest struct {
	Kinds       []string
	From        time.Time
	To          time.Time
	Aggregation models.Aggregation
}

// MeasurementService handles the business logic between the HTTP layer and
// the storage adapter: validation on the way in, window checks and merging
// on the way out.
type MeasurementService struct {
	registry  *registry.Registry
	validator *validation.Validator
	repo      repository.Repository
	log       *logger.Logger
}

// NewMeasurementService creates a new MeasurementService.
func NewMeasurementService(reg *registry.Registry, validator *validation.Validator, repo repository.Repository, log *logger.Logger) *MeasurementService {
	return &MeasurementService{
		registry:  reg,
		validator: validator,
		repo:      repo,
		log:       log,
	}
}

// Ingest validates one reading and appends it to storage.
func (s *MeasurementService) Ingest(ctx context.Context, raw validation.RawMeasurement) (models.StoredRecord, error) {
	reading, err := s.validator.ValidateMeasurement(raw)
	if err != nil {
		return models.StoredRecord{}, err
	}

	record, err := s.repo.Append(ctx, reading)
	if err != nil {
		return models.StoredRecord{}, err
	}
	s.log.WithField("kind", record.Kind).WithField("id", record.ID).Debug("reading stored")
	return record, nil
}

// IngestBatch validates a batch addressed to one kind and appends it
// atomically. An invalid entry rejects the whole batch.
func (s *MeasurementService) IngestBatch(ctx context.Context, kind string, raws []validation.RawReading) ([]models.StoredRecord, error) {
	readings, err := s.validator.ValidateBatch(kind, raws)
	if err != nil {
		return nil, err
	}

	records, err := s.repo.AppendBatch(ctx, readings)
	if err != nil {
		return nil, err
	}
	s.log.WithField("kind", kind).WithField("count", len(records)).Debug("batch stored")
	return records, nil
}

// Query returns the raw records for every requested kind, merged and ordered
// by timestamp.
func (s *MeasurementService) Query(ctx context.Context, req QueryRequest) ([]models.StoredRecord, error) {
	kinds, err := s.resolveKinds(req.Kinds)
	if err != nil {
		return nil, err
	}
	if err := checkWindow(req.From, req.To); err != nil {
		return nil, err
	}

	merged := []models.StoredRecord{}
	for _, kind := range kinds {
		records, err := s.repo.Query(ctx, kind.Name, req.From, req.To)
		if err != nil {
			return nil, err
		}
		merged = append(merged, records...)
	}
	if len(kinds) > 1 {
		// per-kind results are already ordered; a stable sort keeps the
		// insertion-order tie-break intact while interleaving kinds
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].Timestamp.Before(merged[j].Timestamp)
		})
	}
	return merged, nil
}

// Aggregate computes the requested aggregation per kind, in request order.
func (s *MeasurementService) Aggregate(ctx context.Context, req QueryRequest) ([]models.AggregateResult, error) {
	kinds, err := s.resolveKinds(req.Kinds)
	if err != nil {
		return nil, err
	}
	if err := checkWindow(req.From, req.To); err != nil {
		return nil, err
	}

	results := make([]models.AggregateResult, 0, len(kinds))
	for _, kind := range kinds {
		result, err := s.repo.Aggregate(ctx, kind.Name, req.From, req.To, req.Aggregation)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// Ping reports whether the storage backend is reachable.
func (s *MeasurementService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// resolveKinds checks that every requested kind is enabled and drops
// duplicates while keeping request order.
func (s *MeasurementService) resolveKinds(names []string) ([]registry.Kind, error) {
	if len(names) == 0 {
		return nil, &models.MalformedPayloadError{Field: "kind", Reason: "at least one kind is required"}
	}
	seen := make(map[string]bool, len(names))
	kinds := make([]registry.Kind, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		kind, err := s.registry.Resolve(name)
		if err != nil {
			return nil, err
		}
		seen[name] = true
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func checkWindow(from, to time.Time) error {
	if from.After(to) {
		return fmt.Errorf("%w: from %s is after to %s",
			models.ErrInvalidRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return nil
}
