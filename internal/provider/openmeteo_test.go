package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastClient(t *testing.T, geocodeURL, archiveURL string) *OpenMeteo {
	t.Helper()
	p := NewOpenMeteo(nil, geocodeURL, archiveURL)
	p.backoff = BackoffConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
	return p
}

func TestDisabledClient(t *testing.T) {
	var c Client = Disabled{}

	if _, _, err := c.ResolveCoordinates(context.Background(), "anywhere"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := c.FetchHistorical(context.Background(), 0, 0, time.Now(), time.Now()); err == nil {
		t.Error("Expected error from disabled historical fetch")
	}
}

func TestResolveCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("name"); got != "Springfield" {
			t.Errorf("Expected name=Springfield, got %q", got)
		}
		w.Write([]byte(`{"results":[{"latitude":39.8,"longitude":-89.65,"name":"Springfield"}]}`))
	}))
	defer srv.Close()

	p := fastClient(t, srv.URL, "")
	lat, lon, err := p.ResolveCoordinates(context.Background(), "Springfield")
	if err != nil {
		t.Fatalf("ResolveCoordinates failed: %v", err)
	}
	if lat != 39.8 || lon != -89.65 {
		t.Errorf("Expected (39.8, -89.65), got (%v, %v)", lat, lon)
	}
}

func TestResolveCoordinates_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"generationtime_ms":0.5}`))
	}))
	defer srv.Close()

	p := fastClient(t, srv.URL, "")
	_, _, err := p.ResolveCoordinates(context.Background(), "Nowhereville")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestFetchHistorical(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("timezone") != "UTC" {
			t.Errorf("Expected timezone=UTC, got %q", q.Get("timezone"))
		}
		if q.Get("start_date") != "2024-01-15" || q.Get("end_date") != "2024-01-15" {
			t.Errorf("Unexpected date range %s..%s", q.Get("start_date"), q.Get("end_date"))
		}
		w.Write([]byte(`{"hourly":{` +
			`"time":["2024-01-15T09:00","2024-01-15T10:00","2024-01-15T11:00","2024-01-15T12:00"],` +
			`"temperature_2m":[1.2,1.8,2.4,3.0]}}`))
	}))
	defer srv.Close()

	p := fastClient(t, "", srv.URL)
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)

	readings, err := p.FetchHistorical(context.Background(), 39.8, -89.65, start, end)
	if err != nil {
		t.Fatalf("FetchHistorical failed: %v", err)
	}

	// Hours outside [start, end] are dropped.
	if len(readings) != 2 {
		t.Fatalf("Expected 2 readings, got %d", len(readings))
	}
	if !readings[0].Timestamp.Equal(start) {
		t.Errorf("Expected first reading at %v, got %v", start, readings[0].Timestamp)
	}
	if readings[0].TempC != 1.8 || readings[1].TempC != 2.4 {
		t.Errorf("Unexpected temperatures: %v, %v", readings[0].TempC, readings[1].TempC)
	}
	if readings[1].Timestamp.Location() != time.UTC {
		t.Errorf("Expected UTC timestamps, got %v", readings[1].Timestamp.Location())
	}
}

func TestFetchHistorical_MismatchedArrays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hourly":{"time":["2024-01-15T09:00"],"temperature_2m":[]}}`))
	}))
	defer srv.Close()

	p := fastClient(t, "", srv.URL)
	_, err := p.FetchHistorical(context.Background(), 0, 0,
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC))
	if err == nil {
		t.Fatal("Expected error for mismatched hourly arrays")
	}
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"results":[{"latitude":1,"longitude":2}]}`))
	}))
	defer srv.Close()

	p := fastClient(t, srv.URL, "")
	lat, lon, err := p.ResolveCoordinates(context.Background(), "x")
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if lat != 1 || lon != 2 {
		t.Errorf("Expected (1, 2), got (%v, %v)", lat, lon)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestGet_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := fastClient(t, srv.URL, "")
	_, _, err := p.ResolveCoordinates(context.Background(), "x")
	if !errors.Is(err, errRateLimited) {
		t.Fatalf("Expected rate limited error, got %v", err)
	}
}
