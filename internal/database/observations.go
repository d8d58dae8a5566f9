package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const observationColumns = `location_id, ts, temp_c, source, inserted_at, updated_at`

const upsertObservationQuery = `
	INSERT INTO observations (location_id, ts, temp_c, source)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (location_id, ts) DO UPDATE
	SET temp_c = EXCLUDED.temp_c,
	    source = EXCLUDED.source,
	    updated_at = now()
`

func scanObservation(row interface{ Scan(...interface{}) error }) (*Observation, error) {
	var obs Observation
	err := row.Scan(
		&obs.LocationID,
		&obs.Ts,
		&obs.TempC,
		&obs.Source,
		&obs.InsertedAt,
		&obs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

// UpsertObservations applies a batch of insert-or-replace writes keyed by
// (location_id, ts) inside a single transaction. Either every row lands or
// none do. Returns the number of rows written.
func (db *DB) UpsertObservations(ctx context.Context, locationID int64, observations []Observation) (int64, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	stamps := make([]time.Time, len(observations))
	for i, obs := range observations {
		stamps[i] = obs.Ts
	}
	if err := db.ensurePartitionsForYears(ctx, stamps); err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertObservationQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	var count int64
	for _, obs := range observations {
		if _, err := stmt.ExecContext(ctx, locationID, obs.Ts, obs.TempC, obs.Source); err != nil {
			return 0, fmt.Errorf("failed to upsert observation at %s: %w", obs.Ts.Format(time.RFC3339), err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return count, nil
}

// UpsertObservation applies a single insert-or-replace and returns the
// stored row with its post-merge values. inserted_at is only set on first
// insert; overwrites touch temp_c, source and updated_at.
func (db *DB) UpsertObservation(ctx context.Context, locationID int64, obs Observation) (*Observation, error) {
	if err := db.ensurePartitionsForYears(ctx, []time.Time{obs.Ts}); err != nil {
		return nil, err
	}

	query := upsertObservationQuery + ` RETURNING ` + observationColumns

	return scanObservation(db.QueryRowContext(ctx, query, locationID, obs.Ts, obs.TempC, obs.Source))
}

// GetObservation retrieves one observation by its composite key.
// Returns (nil, nil) when absent.
func (db *DB) GetObservation(ctx context.Context, locationID int64, ts time.Time) (*Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations WHERE location_id = $1 AND ts = $2`

	obs, err := scanObservation(db.QueryRowContext(ctx, query, locationID, ts))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return obs, nil
}

// QueryObservations returns all observations for a location with
// start <= ts <= end, ordered by ts ascending. Postgres merges rows from
// adjacent year partitions into the one ordered scan, so a range spanning
// a year boundary behaves exactly like one inside a single year.
func (db *DB) QueryObservations(ctx context.Context, locationID int64, start, end time.Time) ([]Observation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM observations
		WHERE location_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`

	rows, err := db.QueryContext(ctx, query, locationID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, *obs)
	}
	return observations, rows.Err()
}

// DeleteObservations removes all observations for a location with
// start <= ts <= end and returns the number of rows deleted.
func (db *DB) DeleteObservations(ctx context.Context, locationID int64, start, end time.Time) (int64, error) {
	query := `DELETE FROM observations WHERE location_id = $1 AND ts >= $2 AND ts <= $3`

	result, err := db.ExecContext(ctx, query, locationID, start, end)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
