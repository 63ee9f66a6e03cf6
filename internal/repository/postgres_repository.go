package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pokopt/fuer-assignment/internal/models"
	"github.com/pokopt/fuer-assignment/internal/registry"
	"github.com/pokopt/fuer-assignment/pkg/logger"
)

const (
	createTypeTable = `
		CREATE TABLE IF NOT EXISTS measurement_type (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE
		)`

	// The measurement table is partitioned by kind so every kind gets its
	// own physical partition. The seq column carries insertion order for
	// deterministic ordering of equal timestamps.
	createMeasurementTable = `
		CREATE TABLE IF NOT EXISTS measurement (
			id UUID NOT NULL,
			measurement_type_id INT NOT NULL REFERENCES measurement_type (id),
			seq BIGSERIAL,
			ts TIMESTAMPTZ NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			source VARCHAR(255),
			inserted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (measurement_type_id, id)
		) PARTITION BY LIST (measurement_type_id)`

	upsertType = `
		INSERT INTO measurement_type (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`

	insertMeasurement = `
		INSERT INTO measurement (id, measurement_type_id, ts, value, source)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING inserted_at`

	selectMeasurements = `
		SELECT id, ts, value, source, inserted_at
		FROM measurement
		WHERE measurement_type_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts, seq`

	aggregateMeasurements = `
		SELECT COUNT(*), AVG(value), MIN(value), MAX(value)
		FROM measurement
		WHERE measurement_type_id = $1 AND ts >= $2 AND ts <= $3`
)

// Options configures the Postgres repository.
type Options struct {
	DSN      string
	Kinds    []registry.Kind
	MaxConns int  // 0 sizes the pool off the kind count
	Reset    bool // drop and recreate the schema at startup
}

// PostgresRepository stores measurement records in a partitioned Postgres
// table, one partition per measurement kind.
type PostgresRepository struct {
	db      *sql.DB
	log     *logger.Logger
	typeIDs map[string]int
}

// NewPostgresRepository opens a connection pool against the configured DSN
// and prepares the schema for the given kinds. The pool is bounded so a
// burst of writers queues on the pool instead of overwhelming the database.
func NewPostgresRepository(ctx context.Context, opts Options, log *logger.Logger) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = len(opts.Kinds) + 2
	}
	idleConns := len(opts.Kinds)
	if idleConns > maxConns {
		idleConns = maxConns
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(idleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	repo := &PostgresRepository{
		db:      db,
		log:     log,
		typeIDs: make(map[string]int, len(opts.Kinds)),
	}
	if err := repo.initSchema(ctx, opts.Kinds, opts.Reset); err != nil {
		db.Close()
		return nil, err
	}
	log.WithField("kinds", len(opts.Kinds)).WithField("max_conns", maxConns).Info("storage schema ready")
	return repo, nil
}

// initSchema creates the type table, the partitioned measurement table and
// one partition per enabled kind. With reset set it drops both tables first.
func (r *PostgresRepository) initSchema(ctx context.Context, kinds []registry.Kind, reset bool) error {
	if reset {
		r.log.Warn("STORAGE_RESET is set, dropping existing measurement tables")
		for _, stmt := range []string{
			`DROP TABLE IF EXISTS measurement CASCADE`,
			`DROP TABLE IF EXISTS measurement_type CASCADE`,
		} {
			if _, err := r.db.ExecContext(ctx, stmt); err != nil {
				return r.wrap("drop schema", err)
			}
		}
	}

	if _, err := r.db.ExecContext(ctx, createTypeTable); err != nil {
		return r.wrap("create measurement_type table", err)
	}
	if _, err := r.db.ExecContext(ctx, createMeasurementTable); err != nil {
		return r.wrap("create measurement table", err)
	}

	for _, kind := range kinds {
		var typeID int
		if err := r.db.QueryRowContext(ctx, upsertType, kind.Name).Scan(&typeID); err != nil {
			return r.wrap(fmt.Sprintf("register kind %q", kind.Name), err)
		}
		r.typeIDs[kind.Name] = typeID

		partition := pq.QuoteIdentifier(fmt.Sprintf("measurement_%s_partition", kind.Name))
		createPartition := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF measurement FOR VALUES IN (%d)`,
			partition, typeID,
		)
		if _, err := r.db.ExecContext(ctx, createPartition); err != nil {
			return r.wrap(fmt.Sprintf("create partition for kind %q", kind.Name), err)
		}

		index := pq.QuoteIdentifier(fmt.Sprintf("measurement_%s_ts_idx", kind.Name))
		createIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (ts, seq)`, index, partition)
		if _, err := r.db.ExecContext(ctx, createIndex); err != nil {
			return r.wrap(fmt.Sprintf("create index for kind %q", kind.Name), err)
		}
	}
	return nil
}

// Append stores one reading and returns the stored record.
func (r *PostgresRepository) Append(ctx context.Context, reading models.Reading) (models.StoredRecord, error) {
	typeID, ok := r.typeIDs[reading.Kind]
	if !ok {
		return models.StoredRecord{}, fmt.Errorf("kind %q has no storage partition", reading.Kind)
	}

	record := recordFromReading(reading)
	err := r.db.QueryRowContext(ctx, insertMeasurement,
		record.ID, typeID, record.Timestamp, record.Value, nullString(record.Source),
	).Scan(&record.InsertedAt)
	if err != nil {
		return models.StoredRecord{}, r.wrap("insert measurement", err)
	}
	record.InsertedAt = record.InsertedAt.UTC()
	return record, nil
}

// AppendBatch stores all readings inside one transaction. A failing insert
// rolls the whole batch back.
func (r *PostgresRepository) AppendBatch(ctx context.Context, readings []models.Reading) ([]models.StoredRecord, error) {
	records := make([]models.StoredRecord, 0, len(readings))
	if len(readings) == 0 {
		return records, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, r.wrap("begin batch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertMeasurement)
	if err != nil {
		return nil, r.wrap("prepare batch insert", err)
	}
	defer stmt.Close()

	for _, reading := range readings {
		typeID, ok := r.typeIDs[reading.Kind]
		if !ok {
			return nil, fmt.Errorf("kind %q has no storage partition", reading.Kind)
		}
		record := recordFromReading(reading)
		if err := stmt.QueryRowContext(ctx,
			record.ID, typeID, record.Timestamp, record.Value, nullString(record.Source),
		).Scan(&record.InsertedAt); err != nil {
			return nil, r.wrap("batch insert", err)
		}
		record.InsertedAt = record.InsertedAt.UTC()
		records = append(records, record)
	}

	if err := tx.Commit(); err != nil {
		return nil, r.wrap("commit batch", err)
	}
	return records, nil
}

// Query returns the records of one kind inside [from, to], ordered by
// timestamp with ties broken by insertion order.
func (r *PostgresRepository) Query(ctx context.Context, kind string, from, to time.Time) ([]models.StoredRecord, error) {
	typeID, ok := r.typeIDs[kind]
	if !ok {
		return nil, fmt.Errorf("kind %q has no storage partition", kind)
	}

	rows, err := r.db.QueryContext(ctx, selectMeasurements, typeID, from.UTC(), to.UTC())
	if err != nil {
		return nil, r.wrap("query measurements", err)
	}
	defer rows.Close()

	records := []models.StoredRecord{}
	for rows.Next() {
		var (
			record models.StoredRecord
			source sql.NullString
		)
		if err := rows.Scan(&record.ID, &record.Timestamp, &record.Value, &source, &record.InsertedAt); err != nil {
			return nil, r.wrap("scan measurement", err)
		}
		record.Kind = kind
		record.Source = source.String
		record.Timestamp = record.Timestamp.UTC()
		record.InsertedAt = record.InsertedAt.UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap("iterate measurements", err)
	}
	return records, nil
}

// Aggregate computes the requested aggregation in a single round trip.
func (r *PostgresRepository) Aggregate(ctx context.Context, kind string, from, to time.Time, agg models.Aggregation) (models.AggregateResult, error) {
	typeID, ok := r.typeIDs[kind]
	if !ok {
		return models.AggregateResult{}, fmt.Errorf("kind %q has no storage partition", kind)
	}

	var (
		count         int64
		avg, min, max sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, aggregateMeasurements, typeID, from.UTC(), to.UTC()).
		Scan(&count, &avg, &min, &max)
	if err != nil {
		return models.AggregateResult{}, r.wrap("aggregate measurements", err)
	}

	result := models.AggregateResult{Kind: kind, Aggregation: agg, Count: count}
	switch agg {
	case models.AggregationCount:
		v := float64(count)
		result.Value = &v
	case models.AggregationAvg:
		if avg.Valid {
			result.Value = &avg.Float64
		}
	case models.AggregationMin:
		if min.Valid {
			result.Value = &min.Float64
		}
	case models.AggregationMax:
		if max.Valid {
			result.Value = &max.Float64
		}
	default:
		return models.AggregateResult{}, fmt.Errorf("unsupported aggregation %q", agg)
	}
	return result, nil
}

// Ping reports whether the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrStorageUnavailable, op, err)
}

func recordFromReading(reading models.Reading) models.StoredRecord {
	return models.StoredRecord{
		ID:        uuid.NewString(),
		Kind:      reading.Kind,
		Value:     reading.Value,
		Timestamp: reading.Timestamp.UTC(),
		Source:    reading.Source,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
