package maintenance

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// PartitionStore creates year partitions. *database.DB satisfies it.
type PartitionStore interface {
	EnsureYearPartitions(ctx context.Context, fromYear, toYear int) error
}

// PartitionScheduler keeps observation partitions one year ahead of the
// clock, so December ingestion never races January's missing partition.
type PartitionScheduler struct {
	scheduler *gocron.Scheduler
	store     PartitionStore
	startYear int
}

// NewPartitionScheduler creates a PartitionScheduler. startYear is the
// oldest calendar year the archive accepts observations for.
func NewPartitionScheduler(store PartitionStore, startYear int) *PartitionScheduler {
	return &PartitionScheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		store:     store,
		startYear: startYear,
	}
}

// EnsureCurrent synchronously creates every partition from the start year
// through next year. Called once at startup before serving traffic.
func (p *PartitionScheduler) EnsureCurrent(ctx context.Context) error {
	return p.store.EnsureYearPartitions(ctx, p.startYear, time.Now().UTC().Year()+1)
}

// Start schedules a daily job that keeps next year's partition in place.
func (p *PartitionScheduler) Start() error {
	_, err := p.scheduler.Every(1).Day().At("00:10").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		year := time.Now().UTC().Year()
		if err := p.store.EnsureYearPartitions(ctx, year, year+1); err != nil {
			log.Printf("partition maintenance failed: %v", err)
			return
		}
		log.Printf("partition maintenance: partitions through %d in place", year+1)
	})
	if err != nil {
		return err
	}

	p.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (p *PartitionScheduler) Stop() {
	if p.scheduler != nil {
		p.scheduler.Stop()
	}
}
