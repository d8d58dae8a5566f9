package database

import (
	"context"
	"fmt"
	"time"
)

// DailySummary is one location's min/max/avg temperature for a UTC day.
type DailySummary struct {
	LocationID int64     `json:"location_id"`
	Day        time.Time `json:"day"`
	MinTemp    float64   `json:"min_temp"`
	MaxTemp    float64   `json:"max_temp"`
	AvgTemp    float64   `json:"avg_temp"`
	Samples    int       `json:"samples"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RefreshDailySummaries recomputes daily_summary rows for every location
// with observations on the given UTC day. Returns the number of locations
// summarized.
func (db *DB) RefreshDailySummaries(ctx context.Context, day time.Time) (int64, error) {
	query := `
		INSERT INTO daily_summary (location_id, day, min_temp, max_temp, avg_temp, samples)
		SELECT
			location_id,
			$1::date AS day,
			MIN(temp_c),
			MAX(temp_c),
			ROUND(AVG(temp_c), 2),
			COUNT(*)
		FROM observations
		WHERE ts >= $1::date AND ts < $1::date + INTERVAL '1 day'
		GROUP BY location_id
		ON CONFLICT (location_id, day) DO UPDATE
		SET min_temp = EXCLUDED.min_temp,
		    max_temp = EXCLUDED.max_temp,
		    avg_temp = EXCLUDED.avg_temp,
		    samples = EXCLUDED.samples,
		    updated_at = now()
	`

	result, err := db.ExecContext(ctx, query, day.UTC().Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("failed to refresh daily summaries: %w", err)
	}
	return result.RowsAffected()
}

// QueryDailySummaries returns summaries for a location with
// startDay <= day <= endDay, ordered by day ascending.
func (db *DB) QueryDailySummaries(ctx context.Context, locationID int64, startDay, endDay time.Time) ([]DailySummary, error) {
	query := `
		SELECT location_id, day, min_temp, max_temp, avg_temp, samples, updated_at
		FROM daily_summary
		WHERE location_id = $1 AND day >= $2::date AND day <= $3::date
		ORDER BY day ASC
	`

	rows, err := db.QueryContext(ctx, query, locationID,
		startDay.UTC().Format("2006-01-02"), endDay.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []DailySummary
	for rows.Next() {
		var s DailySummary
		err := rows.Scan(&s.LocationID, &s.Day, &s.MinTemp, &s.MaxTemp, &s.AvgTemp, &s.Samples, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
