package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrDuplicateName is returned when an insert trips the unique index on
// lower(name). The registry maps it to its AlreadyExists error.
var ErrDuplicateName = errors.New("location name already exists")

const locationColumns = `
	location_id, name, country_code, admin1, latitude, longitude,
	external_source, external_id, created_at, updated_at
`

func scanLocation(row interface{ Scan(...interface{}) error }) (*Location, error) {
	var loc Location
	err := row.Scan(
		&loc.ID,
		&loc.Name,
		&loc.CountryCode,
		&loc.Admin1,
		&loc.Latitude,
		&loc.Longitude,
		&loc.ExternalSource,
		&loc.ExternalID,
		&loc.CreatedAt,
		&loc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// GetLocation retrieves a location by id. Returns (nil, nil) when absent.
func (db *DB) GetLocation(ctx context.Context, id int64) (*Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE location_id = $1`

	loc, err := scanLocation(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// GetLocationByName retrieves a location by case-insensitive exact name.
// Returns (nil, nil) when absent.
func (db *DB) GetLocationByName(ctx context.Context, name string) (*Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE lower(name) = lower($1) ORDER BY location_id LIMIT 1`

	loc, err := scanLocation(db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// SearchLocations performs a case-insensitive substring match on name with
// optional country/admin1 equality filters. Results are ordered by
// location_id ascending so identical inputs always return identical output.
func (db *DB) SearchLocations(ctx context.Context, q, country, admin1 string, limit int) ([]Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE position(lower($1) in lower(name)) > 0`
	args := []interface{}{q}

	if country != "" {
		args = append(args, country)
		query += fmt.Sprintf(" AND lower(country_code) = lower($%d)", len(args))
	}
	if admin1 != "" {
		args = append(args, admin1)
		query += fmt.Sprintf(" AND lower(admin1) = lower($%d)", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY location_id LIMIT $%d", len(args))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, *loc)
	}
	return locations, rows.Err()
}

// InsertLocation persists a new location and fills in the assigned id and
// timestamps. A unique-index violation on lower(name) comes back as
// ErrDuplicateName.
func (db *DB) InsertLocation(ctx context.Context, loc *Location) error {
	query := `
		INSERT INTO locations (name, country_code, admin1, latitude, longitude, external_source, external_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING location_id, created_at, updated_at
	`

	err := db.QueryRowContext(
		ctx,
		query,
		loc.Name,
		loc.CountryCode,
		loc.Admin1,
		loc.Latitude,
		loc.Longitude,
		loc.ExternalSource,
		loc.ExternalID,
	).Scan(&loc.ID, &loc.CreatedAt, &loc.UpdatedAt)

	if isUniqueViolation(err) {
		return ErrDuplicateName
	}
	return err
}

// UpdateLocation overwrites the mutable attributes of an existing location.
// Returns (nil, nil) when the id does not exist.
func (db *DB) UpdateLocation(ctx context.Context, loc *Location) (*Location, error) {
	query := `
		UPDATE locations
		SET country_code = $2,
		    admin1 = $3,
		    latitude = $4,
		    longitude = $5,
		    external_source = $6,
		    external_id = $7,
		    updated_at = now()
		WHERE location_id = $1
		RETURNING ` + locationColumns

	updated, err := scanLocation(db.QueryRowContext(
		ctx,
		query,
		loc.ID,
		loc.CountryCode,
		loc.Admin1,
		loc.Latitude,
		loc.Longitude,
		loc.ExternalSource,
		loc.ExternalID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
