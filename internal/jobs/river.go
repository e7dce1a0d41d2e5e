// Package jobs wires the background work the pipeline defers: venue
// geocoding enrichment, the nightly past-event sweep, and failure
// alerting. Jobs run on River backed by the same postgres pool as the
// repositories.
package jobs

import (
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindGeocodeVenue    = "geocode_venue"
	JobKindSweepPastEvents = "sweep_past_events"
)

const (
	GeocodingMaxAttempts = 3
	SweepMaxAttempts     = 2
)

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind
// exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

// NewRetryPolicy returns the default retry policy configuration.
// Geocoding backs off a full minute between attempts so the public
// nominatim instance never sees bursts; the sweep retries once quickly.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: SweepMaxAttempts,
			BaseDelay:   30 * time.Second,
			MaxDelay:    10 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			JobKindGeocodeVenue: {
				MaxAttempts: GeocodingMaxAttempts,
				BaseDelay:   1 * time.Minute,
				MaxDelay:    30 * time.Minute,
			},
			JobKindSweepPastEvents: {
				MaxAttempts: SweepMaxAttempts,
				BaseDelay:   30 * time.Second,
				MaxDelay:    5 * time.Minute,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	config := p.configFor(job.Kind)
	if config.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}
	return time.Now().Add(delay)
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: SweepMaxAttempts, BaseDelay: 30 * time.Second, MaxDelay: 10 * time.Minute}
	}
	if config, ok := p.ByKind[kind]; ok {
		return config
	}
	return p.Default
}

// InsertOptsForKind returns default insert options for a job kind.
func InsertOptsForKind(kind string) river.InsertOpts {
	config := NewRetryPolicy().configFor(kind)
	return river.InsertOpts{MaxAttempts: config.MaxAttempts}
}

// NewClientConfig builds a River client configuration. The geocoding
// queue runs a single worker so the rate limit inside the nominatim
// client is the only throttle that matters.
func NewClientConfig(workers *river.Workers, errorHandler river.ErrorHandler, periodicJobs []*river.PeriodicJob) *river.Config {
	policy := NewRetryPolicy()
	return &river.Config{
		Workers:      workers,
		RetryPolicy:  policy,
		MaxAttempts:  policy.Default.MaxAttempts,
		PeriodicJobs: periodicJobs,
		ErrorHandler: errorHandler,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 4},
			QueueGeocoding:     {MaxWorkers: 1},
		},
	}
}

// QueueGeocoding serializes geocoding work.
const QueueGeocoding = "geocoding"

// NewClient creates a River client on the shared pgx pool.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, errorHandler river.ErrorHandler, periodicJobs []*river.PeriodicJob) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, errorHandler, periodicJobs))
}

// NewWorkers registers every worker the server runs.
func NewWorkers(sweep *SweepPastEventsWorker, geocode *GeocodeVenueWorker) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker(workers, sweep)
	river.AddWorker(workers, geocode)
	return workers
}

// NewPeriodicJobs returns the standing schedule: the past-event sweep
// runs nightly and once at startup so a long-idle instance catches up.
func NewPeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				opts := InsertOptsForKind(JobKindSweepPastEvents)
				return SweepPastEventsArgs{}, &opts
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}
