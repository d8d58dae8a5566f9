package summary

import (
	"context"
	"testing"
	"time"
)

type fakeStore struct {
	days  []time.Time
	count int64
}

func (f *fakeStore) RefreshDailySummaries(ctx context.Context, day time.Time) (int64, error) {
	f.days = append(f.days, day)
	return f.count, nil
}

func TestRefreshDay_NormalizesToUTC(t *testing.T) {
	store := &fakeStore{count: 3}
	s := NewScheduler(store)

	offset := time.FixedZone("UTC+2", 2*60*60)
	local := time.Date(2024, 6, 2, 1, 30, 0, 0, offset)

	count, err := s.RefreshDay(context.Background(), local)
	if err != nil {
		t.Fatalf("RefreshDay failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected count 3, got %d", count)
	}
	if len(store.days) != 1 {
		t.Fatalf("Expected 1 refresh call, got %d", len(store.days))
	}
	// 01:30 at UTC+2 is still the previous UTC day.
	if got := store.days[0]; got.Location() != time.UTC || got.Day() != 1 {
		t.Errorf("Expected UTC June 1, got %v", got)
	}
}

func TestRefreshPreviousDay(t *testing.T) {
	store := &fakeStore{}
	s := NewScheduler(store)

	if _, err := s.RefreshPreviousDay(context.Background()); err != nil {
		t.Fatalf("RefreshPreviousDay failed: %v", err)
	}

	want := time.Now().UTC().AddDate(0, 0, -1)
	got := store.days[0]
	if got.Year() != want.Year() || got.YearDay() != want.YearDay() {
		t.Errorf("Expected yesterday %v, got %v", want, got)
	}
}
