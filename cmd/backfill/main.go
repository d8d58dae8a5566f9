package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/smukkama/weather-archive/internal/apperr"
	"github.com/smukkama/weather-archive/internal/database"
	"github.com/smukkama/weather-archive/internal/observations"
	"github.com/smukkama/weather-archive/internal/provider"
	"github.com/smukkama/weather-archive/internal/registry"
	"github.com/smukkama/weather-archive/pkg/config"
)

// backfill pulls historical readings from the external provider and feeds
// them through the normal upsert path. Reruns over the same window are
// harmless: the composite-key upsert makes the whole operation idempotent.
func main() {
	var (
		locationName = flag.String("location", "", "location name (created via the provider if unknown)")
		startStr     = flag.String("start", "", "range start, RFC3339 (e.g. 2024-01-01T00:00:00Z)")
		endStr       = flag.String("end", "", "range end, RFC3339")
	)
	flag.Parse()

	if *locationName == "" || *startStr == "" || *endStr == "" {
		log.Fatal("usage: backfill -location NAME -start RFC3339 -end RFC3339")
	}

	start, err := time.Parse(time.RFC3339, *startStr)
	if err != nil {
		log.Fatalf("Invalid -start: %v", err)
	}
	end, err := time.Parse(time.RFC3339, *endStr)
	if err != nil {
		log.Fatalf("Invalid -end: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.Provider.Enabled {
		log.Fatal("Backfill needs PROVIDER_ENABLED=true; the archive itself runs fine without a provider")
	}

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations("migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	reg := registry.New(db, nil)
	engine := observations.NewEngine(db, reg)
	client := provider.NewOpenMeteo(nil, cfg.Provider.GeocodeURL, cfg.Provider.ArchiveURL)

	ctx := context.Background()

	loc, err := resolveOrCreate(ctx, reg, client, *locationName)
	if err != nil {
		log.Fatalf("Failed to resolve location: %v", err)
	}
	fmt.Printf("Backfilling %q (id %d) from %s to %s\n",
		loc.Name, loc.ID, start.Format(time.RFC3339), end.Format(time.RFC3339))

	if loc.Latitude == nil || loc.Longitude == nil {
		log.Fatalf("Location %d has no coordinates", loc.ID)
	}

	readings, err := client.FetchHistorical(ctx, *loc.Latitude, *loc.Longitude, start, end)
	if err != nil {
		log.Fatalf("%v", apperr.Wrap(apperr.CodeProviderError, err, "historical fetch failed"))
	}
	if len(readings) == 0 {
		fmt.Println("Provider returned no readings for the window")
		return
	}

	batch := make([]observations.Input, len(readings))
	for i, r := range readings {
		batch[i] = observations.Input{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
			TempC:     r.TempC,
			Source:    client.Name(),
		}
	}

	count, err := engine.UpsertBatch(ctx, loc.ID, batch)
	if err != nil {
		log.Fatalf("Upsert failed: %v", err)
	}
	fmt.Printf("✓ Upserted %d observations\n", count)
}

// resolveOrCreate finds the location by fuzzy name, geocoding and creating
// it when the registry has never seen it.
func resolveOrCreate(ctx context.Context, reg *registry.Registry, client provider.Client, name string) (*database.Location, error) {
	loc, err := reg.Resolve(ctx, registry.Selector{Name: name})
	if err == nil {
		return loc, nil
	}
	if !apperr.HasCode(err, apperr.CodeLocationNotFound) {
		return nil, err
	}

	lat, lon, err := client.ResolveCoordinates(ctx, name)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return nil, apperr.New(apperr.CodeLocationNotFound, "provider cannot geocode %q", name)
		}
		return nil, apperr.Wrap(apperr.CodeProviderError, err, "geocoding failed")
	}

	src := client.Name()
	return reg.Create(ctx, registry.CreateParams{
		Name:           name,
		Latitude:       &lat,
		Longitude:      &lon,
		ExternalSource: &src,
	})
}
