package observations

import (
	"context"
	"time"

	"github.com/smukkama/weather-archive/internal/apperr"
	"github.com/smukkama/weather-archive/internal/database"
	"github.com/smukkama/weather-archive/internal/registry"
)

// RangeResult is the read-path response: the resolved location plus its
// observations in [start, end], ordered by ts ascending.
type RangeResult struct {
	Location     database.Location
	Observations []database.Observation
}

// checkRange enforces the strict start < end contract. Equal bounds is an
// invalid range, not an empty result.
func checkRange(start, end time.Time) error {
	if !start.Before(end) {
		return apperr.New(apperr.CodeInvalidRange,
			"start %s must be before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return nil
}

// QueryRange resolves a location by id or fuzzy name and returns every
// observation with start <= ts <= end, ordered by ts ascending. Ordering is
// part of the contract; callers build time series directly from the result.
func (e *Engine) QueryRange(ctx context.Context, sel registry.Selector, start, end time.Time) (*RangeResult, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	loc, err := e.resolver.Resolve(ctx, sel)
	if err != nil {
		return nil, err
	}

	rows, err := e.store.QueryObservations(ctx, loc.ID, start.UTC(), end.UTC())
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, err, "observation query failed")
	}

	return &RangeResult{Location: *loc, Observations: rows}, nil
}

// DeleteRange removes every observation with start <= ts <= end for the
// given location id and returns the count deleted; deleting an empty range
// returns 0, not an error. Unlike the read path this takes no fuzzy
// selector: destroying data through an ambiguous name match is exactly the
// accident the id-only contract prevents.
func (e *Engine) DeleteRange(ctx context.Context, locationID int64, start, end time.Time) (int64, error) {
	if err := checkRange(start, end); err != nil {
		return 0, err
	}
	if err := e.requireLocation(ctx, locationID); err != nil {
		return 0, err
	}

	deleted, err := e.store.DeleteObservations(ctx, locationID, start.UTC(), end.UTC())
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeStorageError, err, "observation delete failed")
	}
	return deleted, nil
}
