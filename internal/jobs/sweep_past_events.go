package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/rs/zerolog"

	"github.com/citylore/server/internal/domain/events"
)

// SweepPastEventsArgs is the nightly job that removes events whose run
// has ended. Permanent events are never touched.
type SweepPastEventsArgs struct{}

func (SweepPastEventsArgs) Kind() string { return JobKindSweepPastEvents }

// SweepPastEventsWorker deletes past events: end_date before today, or
// start_date before today when end_date is null.
type SweepPastEventsWorker struct {
	river.WorkerDefaults[SweepPastEventsArgs]

	events events.Repository
	now    func() time.Time
	logger zerolog.Logger
}

func NewSweepPastEventsWorker(repo events.Repository, logger zerolog.Logger) *SweepPastEventsWorker {
	return &SweepPastEventsWorker{
		events: repo,
		now:    time.Now,
		logger: logger.With().Str("job", JobKindSweepPastEvents).Logger(),
	}
}

// WithClock overrides the clock, for tests.
func (w *SweepPastEventsWorker) WithClock(now func() time.Time) *SweepPastEventsWorker {
	w.now = now
	return w
}

func (w *SweepPastEventsWorker) Work(ctx context.Context, job *river.Job[SweepPastEventsArgs]) error {
	today := w.now().UTC().Truncate(24 * time.Hour)
	deleted, err := w.events.DeletePast(ctx, today)
	if err != nil {
		return fmt.Errorf("sweep past events: %w", err)
	}
	w.logger.Info().Int64("deleted", deleted).Time("today", today).Msg("past events swept")
	return nil
}
