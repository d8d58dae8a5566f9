package registry

import (
	"context"
	"errors"
	"strings"

	"github.com/smukkama/weather-archive/internal/apperr"
	"github.com/smukkama/weather-archive/internal/database"
)

// DefaultSearchLimit caps search results when the caller passes no limit.
const DefaultSearchLimit = 10

// Store is the persistence contract the registry needs. *database.DB
// satisfies it; tests use an in-memory fake.
type Store interface {
	GetLocation(ctx context.Context, id int64) (*database.Location, error)
	GetLocationByName(ctx context.Context, name string) (*database.Location, error)
	SearchLocations(ctx context.Context, q, country, admin1 string, limit int) ([]database.Location, error)
	InsertLocation(ctx context.Context, loc *database.Location) error
	UpdateLocation(ctx context.Context, loc *database.Location) (*database.Location, error)
}

// Cache is an optional read-through cache for by-id lookups. A nil Cache
// disables caching entirely.
type Cache interface {
	GetLocation(ctx context.Context, id int64) (*database.Location, bool)
	SetLocation(ctx context.Context, loc *database.Location)
	InvalidateLocation(ctx context.Context, id int64)
}

// Selector identifies a location either by id or by fuzzy name.
// ID takes precedence when both are set.
type Selector struct {
	ID   int64
	Name string
}

// Registry owns canonical place records
type Registry struct {
	store Store
	cache Cache
}

// New creates a Registry. cache may be nil.
func New(store Store, cache Cache) *Registry {
	return &Registry{store: store, cache: cache}
}

// CreateParams holds the caller-supplied attributes for a new location.
type CreateParams struct {
	Name           string
	CountryCode    *string
	Admin1         *string
	Latitude       *float64
	Longitude      *float64
	ExternalSource *string
	ExternalID     *string
}

// Search performs a case-insensitive substring match on name with optional
// country/admin1 equality filters. Ordering is location_id ascending, which
// makes results stable for identical inputs.
func (r *Registry) Search(ctx context.Context, q, country, admin1 string, limit int) ([]database.Location, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	locations, err := r.store.SearchLocations(ctx, q, country, admin1, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, err, "location search failed")
	}
	return locations, nil
}

// Create persists a new location. A case-insensitive name match, whether
// caught by the pre-check or by the unique index underneath it, fails with
// AlreadyExists.
func (r *Registry) Create(ctx context.Context, params CreateParams) (*database.Location, error) {
	name := strings.TrimSpace(params.Name)

	existing, err := r.store.GetLocationByName(ctx, name)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, err, "location lookup failed")
	}
	if existing != nil {
		return nil, apperr.New(apperr.CodeAlreadyExists, "location %q already exists", existing.Name)
	}

	loc := &database.Location{
		Name:           name,
		CountryCode:    params.CountryCode,
		Admin1:         params.Admin1,
		Latitude:       params.Latitude,
		Longitude:      params.Longitude,
		ExternalSource: params.ExternalSource,
		ExternalID:     params.ExternalID,
	}

	if err := r.store.InsertLocation(ctx, loc); err != nil {
		if errors.Is(err, database.ErrDuplicateName) {
			return nil, apperr.New(apperr.CodeAlreadyExists, "location %q already exists", name)
		}
		return nil, apperr.Wrap(apperr.CodeStorageError, err, "location insert failed")
	}

	if r.cache != nil {
		r.cache.SetLocation(ctx, loc)
	}
	return loc, nil
}

// GetByID retrieves a location by id, consulting the cache first.
func (r *Registry) GetByID(ctx context.Context, id int64) (*database.Location, error) {
	if r.cache != nil {
		if loc, ok := r.cache.GetLocation(ctx, id); ok {
			return loc, nil
		}
	}

	loc, err := r.store.GetLocation(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, err, "location lookup failed")
	}
	if loc == nil {
		return nil, apperr.New(apperr.CodeLocationNotFound, "location %d does not exist", id)
	}

	if r.cache != nil {
		r.cache.SetLocation(ctx, loc)
	}
	return loc, nil
}

// Resolve turns a selector into a location. An id selector is an exact
// lookup; a name selector takes the first fuzzy match, with location_id
// ascending as the deterministic tie-break when several names match.
func (r *Registry) Resolve(ctx context.Context, sel Selector) (*database.Location, error) {
	switch {
	case sel.ID > 0:
		return r.GetByID(ctx, sel.ID)

	case strings.TrimSpace(sel.Name) != "":
		matches, err := r.Search(ctx, strings.TrimSpace(sel.Name), "", "", 1)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, apperr.New(apperr.CodeLocationNotFound, "no location matches %q", sel.Name)
		}
		return &matches[0], nil

	default:
		return nil, apperr.New(apperr.CodeMissingSelector, "either a location id or a name is required")
	}
}

// UpdateParams holds coordinate/metadata corrections. Nil fields keep the
// stored value; the name itself is immutable here.
type UpdateParams struct {
	CountryCode    *string
	Admin1         *string
	Latitude       *float64
	Longitude      *float64
	ExternalSource *string
	ExternalID     *string
}

// Update applies coordinate/metadata corrections to an existing location.
func (r *Registry) Update(ctx context.Context, id int64, params UpdateParams) (*database.Location, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if params.CountryCode != nil {
		next.CountryCode = params.CountryCode
	}
	if params.Admin1 != nil {
		next.Admin1 = params.Admin1
	}
	if params.Latitude != nil {
		next.Latitude = params.Latitude
	}
	if params.Longitude != nil {
		next.Longitude = params.Longitude
	}
	if params.ExternalSource != nil {
		next.ExternalSource = params.ExternalSource
	}
	if params.ExternalID != nil {
		next.ExternalID = params.ExternalID
	}

	updated, err := r.store.UpdateLocation(ctx, &next)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageError, err, "location update failed")
	}
	if updated == nil {
		return nil, apperr.New(apperr.CodeLocationNotFound, "location %d does not exist", id)
	}

	if r.cache != nil {
		r.cache.InvalidateLocation(ctx, id)
	}
	return updated, nil
}
