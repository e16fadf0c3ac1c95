package jobs

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/carvik/geodex/internal/storage"
)

// Scheduler manages background jobs
type Scheduler struct {
	cron  *cron.Cron
	codes storage.CodeRegistry
}

// NewScheduler creates a new job scheduler
func NewScheduler(codes storage.CodeRegistry) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		codes: codes,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	// Purge expired consumed authorization codes every 10 minutes.
	// Run once immediately so a restart doesn't carry stale rows.
	go s.purgeConsumedCodes()

	s.cron.AddFunc("*/10 * * * *", func() {
		s.purgeConsumedCodes()
	})

	s.cron.Start()
	log.Println("Job scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Job scheduler stopped")
}

func (s *Scheduler) purgeConsumedCodes() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.codes.PurgeExpired(ctx)
	if err != nil {
		log.Println("Cleanup: failed to purge consumed codes:", err)
		return
	}
	if n > 0 {
		log.Printf("Cleanup: purged %d expired consumed codes", n)
	}
}
