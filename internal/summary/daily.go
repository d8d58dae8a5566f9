package summary

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Store refreshes summary rows. *database.DB satisfies it.
type Store interface {
	RefreshDailySummaries(ctx context.Context, day time.Time) (int64, error)
}

// Scheduler recomputes the previous UTC day's summaries shortly after
// midnight, once that day's hourly observations have stopped arriving.
type Scheduler struct {
	scheduler *gocron.Scheduler
	store     Store
}

func NewScheduler(store Store) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		store:     store,
	}
}

// RefreshDay recomputes summaries for the UTC day containing the given
// instant.
func (s *Scheduler) RefreshDay(ctx context.Context, day time.Time) (int64, error) {
	return s.store.RefreshDailySummaries(ctx, day.UTC())
}

// RefreshPreviousDay recomputes summaries for yesterday in UTC.
func (s *Scheduler) RefreshPreviousDay(ctx context.Context) (int64, error) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	return s.RefreshDay(ctx, yesterday)
}

// Start schedules the daily refresh.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(1).Day().At("00:30").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		count, err := s.RefreshPreviousDay(ctx)
		if err != nil {
			log.Printf("daily summary refresh failed: %v", err)
			return
		}
		log.Printf("daily summary refresh: %d locations summarized", count)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
