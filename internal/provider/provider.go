package provider

import (
	"context"
	"errors"
	"time"
)

// Reading is one historical temperature value returned by a provider.
type Reading struct {
	Timestamp time.Time
	TempC     float64
}

// ErrNotFound is returned when a provider cannot resolve a place name.
var ErrNotFound = errors.New("provider: location not found")

// Client is the narrow contract for the optional external
// geocoding/weather collaborator. The ingestion and query paths work fully
// without it; Disabled is the stand-in when no provider is configured.
type Client interface {
	Name() string
	ResolveCoordinates(ctx context.Context, name string) (lat, lon float64, err error)
	FetchHistorical(ctx context.Context, lat, lon float64, start, end time.Time) ([]Reading, error)
}

// Disabled is the no-op Client used when the provider capability is absent.
type Disabled struct{}

func (Disabled) Name() string { return "disabled" }

func (Disabled) ResolveCoordinates(ctx context.Context, name string) (float64, float64, error) {
	return 0, 0, ErrNotFound
}

func (Disabled) FetchHistorical(ctx context.Context, lat, lon float64, start, end time.Time) ([]Reading, error) {
	return nil, errors.New("provider: historical fetch is disabled")
}
