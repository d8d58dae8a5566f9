package observations

import (
	"context"
	"math"
	"time"

	"github.com/smukkama/weather-archive/internal/apperr"
	"github.com/smukkama/weather-archive/internal/database"
	"github.com/smukkama/weather-archive/internal/registry"
)

// Store is the persistence contract for the observation time series.
// *database.DB satisfies it; tests use an in-memory fake.
type Store interface {
	GetLocation(ctx context.Context, id int64) (*database.Location, error)
	UpsertObservations(ctx context.Context, locationID int64, observations []database.Observation) (int64, error)
	UpsertObservation(ctx context.Context, locationID int64, obs database.Observation) (*database.Observation, error)
	QueryObservations(ctx context.Context, locationID int64, start, end time.Time) ([]database.Observation, error)
	DeleteObservations(ctx context.Context, locationID int64, start, end time.Time) (int64, error)
}

// Resolver turns a location selector into a location record.
// *registry.Registry satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, sel registry.Selector) (*database.Location, error)
}

// Input is one caller-supplied reading. Timestamp is an ISO-8601/RFC-3339
// string with an explicit offset; it is normalized to UTC before storage.
type Input struct {
	Timestamp string  `json:"timestamp"`
	TempC     float64 `json:"temp_c"`
	Source    string  `json:"source,omitempty"`
}

// Engine is the write path (idempotent batch upserts keyed by
// (location_id, ts)) and the read path (inclusive-bounds range query and
// delete) over the observation store.
type Engine struct {
	store    Store
	resolver Resolver
}

// NewEngine creates an Engine.
func NewEngine(store Store, resolver Resolver) *Engine {
	return &Engine{store: store, resolver: resolver}
}

// roundTemp rounds (not truncates) to the stored 2-decimal precision.
func roundTemp(v float64) float64 {
	return math.Round(v*100) / 100
}

// normalizeBatch validates every entry before anything is written and
// collapses duplicate timestamps to the last occurrence, so "last write
// wins" holds inside a single batch as well as across calls.
func normalizeBatch(batch []Input) ([]database.Observation, error) {
	seen := make(map[time.Time]int, len(batch))
	normalized := make([]database.Observation, 0, len(batch))

	for i, in := range batch {
		ts, err := time.Parse(time.RFC3339, in.Timestamp)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidObservation, err,
				"entry %d: unparseable timestamp %q", i, in.Timestamp)
		}
		if math.IsNaN(in.TempC) || math.IsInf(in.TempC, 0) {
			return nil, apperr.New(apperr.CodeInvalidObservation,
				"entry %d: temp_c is not a number", i)
		}

		obs := database.Observation{
			Ts:    ts.UTC(),
			TempC: roundTemp(in.TempC),
		}
		if in.Source != "" {
			src := in.Source
			obs.Source = &src
		}

		if j, dup := seen[obs.Ts]; dup {
			normalized[j] = obs
			continue
		}
		seen[obs.Ts] = len(normalized)
		normalized = append(normalized, obs)
	}
	return normalized, nil
}

func (e *Engine) requireLocation(ctx context.Context, locationID int64) error {
	loc, err := e.store.GetLocation(ctx, locationID)
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, err, "location lookup failed")
	}
	if loc == nil {
		return apperr.New(apperr.CodeLocationNotFound, "location %d does not exist", locationID)
	}
	return nil
}

// UpsertBatch validates and applies a batch of readings for one location.
// Validation and the location existence check fully precede any write: a
// failing batch leaves the store untouched. Returns the number of rows
// written (after in-batch dedup).
func (e *Engine) UpsertBatch(ctx context.Context, locationID int64, batch []Input) (int64, error) {
	normalized, err := normalizeBatch(batch)
	if err != nil {
		return 0, err
	}
	if err := e.requireLocation(ctx, locationID); err != nil {
		return 0, err
	}
	if len(normalized) == 0 {
		return 0, nil
	}

	count, err := e.store.UpsertObservations(ctx, locationID, normalized)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeStorageError, err, "observation batch failed")
	}
	return count, nil
}

// UpsertOne behaves exactly like UpsertBatch with one entry and returns the
// stored row with its post-merge values.
func (e *Engine) UpsertOne(ctx context.Context, locationID int64, in Input) (*database.Observation, error) {
	normalized, err := normalizeBatch([]Input{in})
	if err != nil {
		return nil, err
	}
	if err := e.requireLocation(ctx, locationID); err != nil {
		return nil, err
	}

	stored, err := e.store.UpsertObservation(ctx, locationID, normalized[0])
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, err, "observation upsert failed")
	}
	return stored, nil
}
