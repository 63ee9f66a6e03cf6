package repository

import (
	"context"
	"time"

	"github.com/pokopt/fuer-assignment/internal/models"
)

// Repository is the storage contract for measurement records. Implementations
// append validated readings and answer windowed queries; records are never
// updated or deleted through this interface.
type Repository interface {
	// Append stores one reading and returns the record with its assigned
	// identity and insertion time.
	Append(ctx context.Context, reading models.Reading) (models.StoredRecord, error)
	// AppendBatch stores all readings or none of them.
	AppendBatch(ctx context.Context, readings []models.Reading) ([]models.StoredRecord, error)
	// Query returns the records of one kind whose timestamps fall inside
	// [from, to], ordered by timestamp with ties broken by insertion order.
	Query(ctx context.Context, kind string, from, to time.Time) ([]models.StoredRecord, error)
	// Aggregate computes one aggregation over the records Query would return.
	Aggregate(ctx context.Context, kind string, from, to time.Time, agg models.Aggregation) (models.AggregateResult, error)
	Ping(ctx context.Context) error
	Close() error
}
