package database

import (
	"time"
)

// Location is a canonical place record
type Location struct {
	ID             int64
	Name           string
	CountryCode    *string
	Admin1         *string
	Latitude       *float64
	Longitude      *float64
	ExternalSource *string
	ExternalID     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Observation is one hourly temperature reading for a location.
// Identity is the composite key (LocationID, Ts); there is exactly one
// reading per location per timestamp.
type Observation struct {
	LocationID int64
	Ts         time.Time
	TempC      float64
	Source     *string
	InsertedAt time.Time
	UpdatedAt  time.Time
}
