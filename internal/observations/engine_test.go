package observations

import (
	"context"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/smukkama/weather-archive/internal/apperr"
	"github.com/smukkama/weather-archive/internal/database"
	"github.com/smukkama/weather-archive/internal/registry"
)

type obsKey struct {
	locationID int64
	unixNano   int64
}

// fakeStore mimics the Postgres store semantics in memory: composite-key
// upserts that preserve inserted_at, inclusive range scans sorted by ts.
type fakeStore struct {
	locations map[int64]*database.Location
	rows      map[obsKey]database.Observation
	clock     time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		locations: make(map[int64]*database.Location),
		rows:      make(map[obsKey]database.Observation),
		clock:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) addLocation(id int64, name string) {
	f.locations[id] = &database.Location{ID: id, Name: name}
}

// tick advances the fake clock so inserted_at/updated_at are distinguishable
func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) GetLocation(ctx context.Context, id int64) (*database.Location, error) {
	return f.locations[id], nil
}

func (f *fakeStore) upsert(locationID int64, obs database.Observation, now time.Time) database.Observation {
	key := obsKey{locationID, obs.Ts.UnixNano()}
	stored, exists := f.rows[key]
	if exists {
		stored.TempC = obs.TempC
		stored.Source = obs.Source
		stored.UpdatedAt = now
	} else {
		stored = obs
		stored.LocationID = locationID
		stored.InsertedAt = now
		stored.UpdatedAt = now
	}
	f.rows[key] = stored
	return stored
}

func (f *fakeStore) UpsertObservations(ctx context.Context, locationID int64, observations []database.Observation) (int64, error) {
	now := f.tick()
	for _, obs := range observations {
		f.upsert(locationID, obs, now)
	}
	return int64(len(observations)), nil
}

func (f *fakeStore) UpsertObservation(ctx context.Context, locationID int64, obs database.Observation) (*database.Observation, error) {
	stored := f.upsert(locationID, obs, f.tick())
	return &stored, nil
}

func (f *fakeStore) QueryObservations(ctx context.Context, locationID int64, start, end time.Time) ([]database.Observation, error) {
	var result []database.Observation
	for key, obs := range f.rows {
		if key.locationID != locationID {
			continue
		}
		if obs.Ts.Before(start) || obs.Ts.After(end) {
			continue
		}
		result = append(result, obs)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Ts.Before(result[j].Ts) })
	return result, nil
}

func (f *fakeStore) DeleteObservations(ctx context.Context, locationID int64, start, end time.Time) (int64, error) {
	var deleted int64
	for key, obs := range f.rows {
		if key.locationID != locationID {
			continue
		}
		if obs.Ts.Before(start) || obs.Ts.After(end) {
			continue
		}
		delete(f.rows, key)
		deleted++
	}
	return deleted, nil
}

// fakeResolver resolves selectors against the fake store's locations.
type fakeResolver struct {
	store *fakeStore
}

func (r *fakeResolver) Resolve(ctx context.Context, sel registry.Selector) (*database.Location, error) {
	switch {
	case sel.ID > 0:
		if loc := r.store.locations[sel.ID]; loc != nil {
			return loc, nil
		}
		return nil, apperr.New(apperr.CodeLocationNotFound, "location %d does not exist", sel.ID)
	case sel.Name != "":
		var ids []int64
		for id := range r.store.locations {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if r.store.locations[id].Name == sel.Name {
				return r.store.locations[id], nil
			}
		}
		return nil, apperr.New(apperr.CodeLocationNotFound, "no location matches %q", sel.Name)
	default:
		return nil, apperr.New(apperr.CodeMissingSelector, "either a location id or a name is required")
	}
}

func newTestEngine() (*Engine, *fakeStore) {
	store := newFakeStore()
	return NewEngine(store, &fakeResolver{store}), store
}

func TestUpsertBatch_Idempotent(t *testing.T) {
	engine, store := newTestEngine()
	store.addLocation(1, "Springfield")

	batch := []Input{
		{Timestamp: "2024-06-01T12:00:00Z", TempC: 22.5},
		{Timestamp: "2024-06-01T13:00:00Z", TempC: 23.04999},
	}

	count, err := engine.UpsertBatch(context.Background(), 1, batch)
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}

	// Applying the identical batch again must yield the same stored rows
	if _, err := engine.UpsertBatch(context.Background(), 1, batch); err != nil {
		t.Fatalf("Second UpsertBatch failed: %v", err)
	}

	if len(store.rows) != 2 {
		t.Fatalf("Expected 2 stored rows, got %d", len(store.rows))
	}
}

func TestUpsertBatch_LastWriteWins(t *testing.T) {
	engine, store := newTestEngine()
	store.addLocation(1, "Springfield")

	ctx := context.Background()
	if _, err := engine.UpsertBatch(ctx, 1, []Input{{Timestamp: "2024-06-01T12:00:00Z", TempC: 20.0}}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if _, err := engine.UpsertBatch(ctx, 1, []Input{{Timestamp: "2024-06-01T12:00:00Z", TempC: 21.5}}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	if len(store.rows) != 1 {
		t.Fatalf("Expected 1 stored row, got %d", len(store.rows))
	}
	for _, obs := range store.rows {
		if obs.TempC != 21.5 {
			t.Errorf("Expected last write 21.5, got %v", obs.TempC)
		}
	}
}

func TestUpsertBatch_DuplicateKeyInOneBatch(t *testing.T) {
	engine, store := newTestEngine()
	store.addLocation(1, "Springfield")

	// Same timestamp twice in one batch: the later entry wins, one row lands
	count, err := engine.UpsertBatch(context.Background(), 1, []Input{
		{Timestamp: "2024-06-01T12:00:00Z", TempC: 20.0},
		{Timestamp: "2024-06-01T12:00:00+00:00", TempC: 25.0},
	})
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected count 1 after in-batch dedup, got %d", count)
	}
	for _, obs := range store.rows {
		if obs.TempC != 25.0 {
			t.Errorf("Expected last occurrence 25.0, got %v", obs.TempC)
		}
	}
}

func TestUpsertBatch_RoundsToTwoDecimals(t *testing.T) {
	engine, store := newTestEngine()
	store.addLocation(1, "Springfield")

	if _, err := engine.UpsertBatch(context.Background(), 1, []Input{
		{Timestamp: "2024-06-01T13:00:00Z", TempC: 23.04999},
	}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	for _, obs := range store.rows {
		if obs.TempC != 23.05 {
			t.Errorf("Expected rounded 23.05, got %v", obs.TempC)
		}
	}
}

func TestUpsertBatch_NormalizesToUTC(t *testing.T) {
	engine, store := newTestEngine()
	store.addLocation(1, "Springfield")

	if _, err := engine.UpsertBatch(context.Background(), 1, []Input{
		{Timestamp: "2024-06-01T14:00:00+02:00", TempC: 20.0},
	}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, obs := range store.rows {
		if !obs.Ts.Equal(want) {
			t.Errorf("Expected ts %s, got %s", want, obs.Ts)
		}
		if obs.Ts.Location() != time.UTC {
			t.Errorf("Expected UTC location, got %v", obs.Ts.Location())
		}
	}
}

func TestUpsertBatch_UnknownLocation(t *testing.T) {
	engine, store := newTestEngine()

	_, err := engine.UpsertBatch(context.Background(), 42, []Input{
		{Timestamp: "2024-06-01T12:00:00Z", TempC: 20.0},
	})
	if !apperr.HasCode(err, apperr.CodeLocationNotFound) {
		t.Fatalf("Expected LOCATION_NOT_FOUND, got %v", err)
	}
	if len(store.rows) != 0 {
		t.Errorf("Expected no writes, got %d rows", len(store.rows))
	}
}

func TestUpsertBatch_InvalidInput(t *testing.T) {
	engine, store := newTestEngine()
	store.addLocation(1, "Springfield")

	tests := []struct {
		name  string
		batch []Input
	}{
		{"unparseable timestamp", []Input{{Timestamp: "not-a-time", TempC: 20.0}}},
		{"naive timestamp", []Input{{Timestamp: "2024-06-01 12:00:00", TempC: 20.0}}},
		{"NaN temperature", []Input{{Timestamp: "2024-06-01T12:00:00Z", TempC: math.NaN()}}},
		{"infinite temperature", []Input{{Timestamp: "2024-06-01T12:00:00Z", TempC: math.Inf(1)}}},
		{"bad entry after good one", []Input{
			{Timestamp: "2024-06-01T12:00:00Z", TempC: 20.0},
			{Timestamp: "garbage", TempC: 21.0},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.UpsertBatch(context.Background(), 1, tt.batch)
			if !apperr.HasCode(err, apperr.CodeInvalidObservation) {
				t.Fatalf("Expected INVALID_OBSERVATION, got %v", err)
			}
			// Validation precedes mutation: nothing may have been written
			if len(store.rows) != 0 {
				t.Errorf("Expected no writes, got %d rows", len(store.rows))
			}
		})
	}
}

func TestUpsertOne_PreservesInsertedAt(t *testing.T) {
	engine, store := newTestEngine()
	store.addLocation(1, "Springfield")

	ctx := context.Background()
	first, err := engine.UpsertOne(ctx, 1, Input{Timestamp: "2024-06-01T12:00:00Z", TempC: 20.0, Source: "station-a"})
	if err != nil {
		t.Fatalf("UpsertOne failed: %v", err)
	}

	second, err := engine.UpsertOne(ctx, 1, Input{Timestamp: "2024-06-01T12:00:00Z", TempC: 21.0, Source: "station-b"})
	if err != nil {
		t.Fatalf("UpsertOne failed: %v", err)
	}

	if second.TempC != 21.0 {
		t.Errorf("Expected post-merge temp 21.0, got %v", second.TempC)
	}
	if second.Source == nil || *second.Source != "station-b" {
		t.Errorf("Expected post-merge source station-b, got %v", second.Source)
	}
	if !second.InsertedAt.Equal(first.InsertedAt) {
		t.Errorf("inserted_at changed across overwrite: %s -> %s", first.InsertedAt, second.InsertedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("updated_at did not advance: %s -> %s", first.UpdatedAt, second.UpdatedAt)
	}
}

func TestUpsertBatch_EmptyBatch(t *testing.T) {
	engine, store := newTestEngine()
	store.addLocation(1, "Springfield")

	count, err := engine.UpsertBatch(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected count 0, got %d", count)
	}
}

func TestScenario_SpringfieldIngestAndQuery(t *testing.T) {
	engine, store := newTestEngine()
	store.addLocation(1, "Springfield")

	ctx := context.Background()
	if _, err := engine.UpsertBatch(ctx, 1, []Input{
		{Timestamp: "2024-06-01T12:00:00Z", TempC: 22.5},
		{Timestamp: "2024-06-01T13:00:00Z", TempC: 23.04999},
	}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 1, 23, 59, 59, 0, time.UTC)

	result, err := engine.QueryRange(ctx, registry.Selector{ID: 1}, start, end)
	if err != nil {
		t.Fatalf("QueryRange failed: %v", err)
	}
	if len(result.Observations) != 2 {
		t.Fatalf("Expected 2 observations, got %d", len(result.Observations))
	}
	if result.Observations[1].TempC != 23.05 {
		t.Errorf("Expected second temp rounded to 23.05, got %v", result.Observations[1].TempC)
	}
}
