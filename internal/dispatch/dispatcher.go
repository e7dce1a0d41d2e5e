package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/ids"
	"github.com/citylore/server/internal/domain/sources"
	"github.com/citylore/server/internal/domain/venues"
	"github.com/citylore/server/internal/metrics"
	"github.com/citylore/server/internal/scraper"
	"github.com/citylore/server/internal/snapshot"
	"github.com/citylore/server/internal/storage"
)

const (
	// venueConcurrency bounds parallel venue tasks. Extraction is network
	// bound; four keeps the run fast without hammering small sites.
	venueConcurrency = 4

	// venueTimeout is the wall clock allowed per venue. Tasks past it are
	// aborted and reported as errors, never allowed to stall the run.
	venueTimeout = 120 * time.Second

	flushBatchSize = events.DefaultBatchSize
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid scrape request")

// Request selects what one dispatcher run scrapes.
type Request struct {
	CityID      *int64
	EventType   string
	TimeRange   string
	VenueIDs    []int64
	SourceIDs   []int64
	CustomStart *time.Time
	CustomEnd   *time.Time

	// Per-venue ceilings. Zero means the governor defaults.
	MaxExhibitions int
	MaxEvents      int
}

// Validate checks the request before any work starts.
func (r Request) Validate() error {
	if len(r.VenueIDs) == 0 && len(r.SourceIDs) == 0 {
		return fmt.Errorf("%w: at least one venue or source is required", ErrInvalidRequest)
	}
	if !scraper.ValidTimeRange(r.TimeRange) {
		return fmt.Errorf("%w: unknown time range %q", ErrInvalidRequest, r.TimeRange)
	}
	if r.TimeRange == scraper.RangeCustom && (r.CustomStart == nil || r.CustomEnd == nil) {
		return fmt.Errorf("%w: custom time range needs both start and end dates", ErrInvalidRequest)
	}
	if r.EventType != "" && !events.ValidType(r.EventType) {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidRequest, r.EventType)
	}
	return nil
}

// SiteScraper is the venue-website extraction port.
type SiteScraper interface {
	ScrapeVenue(ctx context.Context, venue *venues.Venue, eventType string, window scraper.Window, quotas *events.QuotaGovernor) ([]events.Candidate, error)
	ScrapeListing(ctx context.Context, pageURL string, origin scraper.Origin, window scraper.Window, quotas *events.QuotaGovernor) ([]events.Candidate, error)
}

// AggregatorScraper is the ticketing-aggregator extraction port.
type AggregatorScraper interface {
	ScrapeVenue(ctx context.Context, venue *venues.Venue, window scraper.Window, quotas *events.QuotaGovernor) ([]events.Candidate, error)
	ScrapeOrganizer(ctx context.Context, organizerURL string, origin scraper.Origin, window scraper.Window, quotas *events.QuotaGovernor) ([]events.Candidate, error)
}

// Merger persists candidates. *events.Engine satisfies it.
type Merger interface {
	Process(ctx context.Context, candidates []events.Candidate, quotas *events.QuotaGovernor) events.Outcome
}

// Dispatcher runs scrape requests end to end.
type Dispatcher struct {
	store      storage.Repository
	site       SiteScraper
	aggregator AggregatorScraper
	engine     Merger
	snapshots  *snapshot.Writer
	logger     zerolog.Logger
	now        func() time.Time
	alert      AlertFunc
	timeout    time.Duration
}

func NewDispatcher(store storage.Repository, site SiteScraper, aggregator AggregatorScraper, engine Merger, snapshots *snapshot.Writer, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:      store,
		site:       site,
		aggregator: aggregator,
		engine:     engine,
		snapshots:  snapshots,
		logger:     logger,
		now:        time.Now,
		timeout:    venueTimeout,
	}
}

// WithClock overrides the run clock, for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	clone := *d
	clone.now = now
	return &clone
}

// AlertFunc is called once per failed run, after the run row is closed.
type AlertFunc func(ctx context.Context, requestID, summary string, errCount int)

// WithAlerts installs an operator notification hook for failed runs.
func (d *Dispatcher) WithAlerts(alert AlertFunc) *Dispatcher {
	clone := *d
	clone.alert = alert
	return &clone
}

// WithVenueTimeout overrides the per-unit wall clock, for tests.
func (d *Dispatcher) WithVenueTimeout(timeout time.Duration) *Dispatcher {
	clone := *d
	clone.timeout = timeout
	return &clone
}

// tally is the run's shared counters. Workers update it concurrently.
type tally struct {
	mu      sync.Mutex
	units   int
	done    int
	outcome events.Outcome
	errors  int
	emitted int
}

func (t *tally) addOutcome(o events.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcome.Created += o.Created
	t.outcome.Updated += o.Updated
	t.outcome.Skipped += o.Skipped
}

func (t *tally) addError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors++
}

func (t *tally) addEmitted(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emitted += n
}

// finishUnit marks one venue or source done and returns the overall
// percentage. Extraction spans 10 through 95 percent.
func (t *tally) finishUnit() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	if t.units == 0 {
		return 95
	}
	return 10 + 85*t.done/t.units
}

// pct reports the current run percentage without advancing it.
func (t *tally) pct() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.units == 0 {
		return 10
	}
	return 10 + 85*t.done/t.units
}

func (t *tally) snapshot() (events.Outcome, int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome, t.errors, t.emitted
}

// Run executes the request and reports over stream. It closes the stream
// when done. Individual venue and source failures become error records;
// Run itself fails only on invalid input or unusable infrastructure.
func (d *Dispatcher) Run(ctx context.Context, req Request, stream *Stream) error {
	defer stream.Close()

	if err := req.Validate(); err != nil {
		return err
	}

	requestID, err := ids.NewULID()
	if err != nil {
		return fmt.Errorf("generating run id: %w", err)
	}
	logger := d.logger.With().Str("request_id", requestID).Logger()

	loc := time.UTC
	if req.CityID != nil {
		city, err := d.store.Cities().GetByID(ctx, *req.CityID)
		if err != nil {
			return fmt.Errorf("loading city %d: %w", *req.CityID, err)
		}
		loc = city.Location()
	}
	window, err := scraper.ResolveWindow(req.TimeRange, d.now(), loc, req.CustomStart, req.CustomEnd)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	venueList, err := d.store.Venues().GetByIDs(ctx, req.VenueIDs)
	if err != nil {
		return fmt.Errorf("loading venues: %w", err)
	}
	sourceList, err := d.store.Sources().GetByIDs(ctx, req.SourceIDs)
	if err != nil {
		return fmt.Errorf("loading sources: %w", err)
	}
	if len(venueList) == 0 && len(sourceList) == 0 {
		return fmt.Errorf("%w: no matching venues or sources", ErrInvalidRequest)
	}

	runID, err := d.store.ScrapeRuns().Start(ctx, storage.ScrapeRun{
		RequestID:        requestID,
		CityID:           req.CityID,
		EventType:        req.EventType,
		TimeRange:        req.TimeRange,
		Status:           storage.ScrapeRunRunning,
		VenuesRequested:  len(venueList),
		SourcesRequested: len(sourceList),
		StartedAt:        d.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("recording scrape run: %w", err)
	}

	quotas := events.NewQuotaGovernor(req.MaxExhibitions, req.MaxEvents)
	t := &tally{units: len(venueList) + len(sourceList)}

	stream.progress(ctx, 10, "starting scrape", "", "")
	d.writeSnapshot(requestID, "running", 10, "starting scrape", 0)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(venueConcurrency)
	for i := range venueList {
		venue := &venueList[i]
		g.Go(func() error {
			d.runVenue(gctx, venue, req, window, quotas, stream, t, logger)
			d.noteUnitDone(gctx, requestID, stream, t)
			return nil
		})
	}
	for i := range sourceList {
		source := &sourceList[i]
		g.Go(func() error {
			d.runSource(gctx, source, req, window, quotas, stream, t, logger)
			d.noteUnitDone(gctx, requestID, stream, t)
			return nil
		})
	}
	_ = g.Wait()

	outcome, errCount, emitted := t.snapshot()
	finishCtx := context.WithoutCancel(ctx)

	if ctx.Err() != nil {
		metrics.ScrapeRunsTotal.WithLabelValues("cancelled").Inc()
		d.finishRun(finishCtx, runID, storage.ScrapeRunFailed, outcome, errCount, "run cancelled", logger)
		d.writeSnapshot(requestID, "failed", 100, "run cancelled", outcome.Created+outcome.Updated)
		return ctx.Err()
	}

	status := storage.ScrapeRunCompleted
	result := "completed"
	if errCount > 0 && errCount >= t.units {
		status = storage.ScrapeRunFailed
		result = "failed"
	}
	summary := fmt.Sprintf("%d added, %d updated, %d skipped, %d errors",
		outcome.Created, outcome.Updated, outcome.Skipped, errCount)

	stream.complete(ctx, emitted, outcome, errCount, summary)
	metrics.ScrapeRunsTotal.WithLabelValues(result).Inc()
	d.finishRun(finishCtx, runID, status, outcome, errCount, summary, logger)
	d.writeSnapshot(requestID, status, 100, summary, outcome.Created+outcome.Updated)
	if status == storage.ScrapeRunFailed && d.alert != nil {
		d.alert(finishCtx, requestID, summary, errCount)
	}

	logger.Info().
		Int("created", outcome.Created).
		Int("updated", outcome.Updated).
		Int("skipped", outcome.Skipped).
		Int("errors", errCount).
		Msg("scrape run finished")
	return nil
}

// runVenue scrapes one venue under its own deadline and flushes the
// result through the merge engine. Failures turn into error records.
func (d *Dispatcher) runVenue(ctx context.Context, venue *venues.Venue, req Request, window scraper.Window, quotas *events.QuotaGovernor, stream *Stream, t *tally, logger zerolog.Logger) {
	start := time.Now()
	defer func() {
		metrics.ScrapeVenueDuration.Observe(time.Since(start).Seconds())
	}()

	if venue.IsClosed() {
		stream.progress(ctx, t.pct(), "skipping closed venue", venue.Name, "")
		return
	}
	if !stream.progress(ctx, t.pct(), "scraping "+venue.Name, venue.Name, "") {
		return
	}

	vctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	candidates, scrapeErr := d.site.ScrapeVenue(vctx, venue, req.EventType, window, quotas)
	if scraper.OrganizerID(venue.TicketingURL) != "" {
		aggCandidates, aggErr := d.aggregator.ScrapeVenue(vctx, venue, window, quotas)
		candidates = append(candidates, aggCandidates...)
		if scrapeErr == nil {
			scrapeErr = aggErr
		}
	}

	if vctx.Err() != nil && ctx.Err() == nil {
		t.addError()
		stream.error(ctx, fmt.Sprintf("venue %s timed out after %s", venue.Name, d.timeout))
		logger.Warn().Str("venue", venue.Name).Msg("venue scrape timed out")
		return
	}
	if ctx.Err() != nil {
		return
	}
	if scrapeErr != nil {
		t.addError()
		stream.error(ctx, fmt.Sprintf("venue %s: %v", venue.Name, scrapeErr))
		logger.Warn().Err(scrapeErr).Str("venue", venue.Name).Msg("venue scrape failed")
		if len(candidates) == 0 {
			return
		}
	}

	d.flushVenue(ctx, venue, candidates, quotas, stream, t, logger)
}

// flushVenue feeds candidates to the merge engine in small batches,
// preserving extraction order, and emits the persisted rows.
func (d *Dispatcher) flushVenue(ctx context.Context, venue *venues.Venue, candidates []events.Candidate, quotas *events.QuotaGovernor, stream *Stream, t *tally, logger zerolog.Logger) {
	for start := 0; start < len(candidates); start += flushBatchSize {
		end := start + flushBatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		outcome := d.engine.Process(ctx, batch, quotas)
		t.addOutcome(outcome)

		titles := make([]string, 0, len(batch))
		for _, c := range batch {
			titles = append(titles, c.Title)
		}
		rows, err := d.store.Events().ListByVenueTitles(ctx, venue.ID, titles)
		if err != nil {
			logger.Warn().Err(err).Str("venue", venue.Name).Msg("reading back persisted batch failed")
			continue
		}
		for i := range rows {
			if !stream.event(ctx, &rows[i]) {
				return
			}
		}
		t.addEmitted(len(rows))
	}
}

// runSource scrapes one curated source. Sources carry no venue, so their
// events are persisted without per-row emission.
func (d *Dispatcher) runSource(ctx context.Context, source *sources.Source, req Request, window scraper.Window, quotas *events.QuotaGovernor, stream *Stream, t *tally, logger zerolog.Logger) {
	if !source.IsActive {
		stream.progress(ctx, t.pct(), "skipping inactive source", "", source.Name)
		return
	}
	if !stream.progress(ctx, t.pct(), "scraping "+source.Name, "", source.Name) {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cityID := source.CityID
	if cityID == nil {
		cityID = req.CityID
	}
	origin := scraper.Origin{
		CityID:     cityID,
		SourceName: source.Type,
		SourceURL:  source.URL,
	}
	if origin.SourceName == "" {
		origin.SourceName = sources.TypeWebsite
	}

	var (
		candidates []events.Candidate
		scrapeErr  error
	)
	if source.Type == sources.TypeAggregator {
		candidates, scrapeErr = d.aggregator.ScrapeOrganizer(sctx, source.URL, origin, window, quotas)
	} else {
		candidates, scrapeErr = d.site.ScrapeListing(sctx, source.URL, origin, window, quotas)
	}

	if sctx.Err() != nil && ctx.Err() == nil {
		t.addError()
		stream.error(ctx, fmt.Sprintf("source %s timed out after %s", source.Name, d.timeout))
		return
	}
	if ctx.Err() != nil {
		return
	}
	if scrapeErr != nil {
		t.addError()
		stream.error(ctx, fmt.Sprintf("source %s: %v", source.Name, scrapeErr))
		logger.Warn().Err(scrapeErr).Str("source", source.Name).Msg("source scrape failed")
		return
	}

	outcome := d.engine.Process(ctx, candidates, quotas)
	t.addOutcome(outcome)

	check := sources.CheckResult{CheckedAt: d.now().UTC(), EventsFound: outcome.Created + outcome.Updated}
	if err := d.store.Sources().RecordCheck(ctx, source.ID, check); err != nil {
		logger.Warn().Err(err).Str("source", source.Name).Msg("recording source check failed")
	}
}

// noteUnitDone advances the run percentage after one venue or source.
func (d *Dispatcher) noteUnitDone(ctx context.Context, requestID string, stream *Stream, t *tally) {
	pct := t.finishUnit()
	stream.progress(ctx, pct, "", "", "")
	outcome, _, _ := t.snapshot()
	d.writeSnapshot(requestID, "running", pct, "scraping", outcome.Created+outcome.Updated)
}

func (d *Dispatcher) writeSnapshot(requestID, status string, pct int, msg string, found int) {
	if d.snapshots == nil {
		return
	}
	err := d.snapshots.Write(snapshot.State{
		RunID:       requestID,
		Status:      status,
		Percentage:  pct,
		Message:     msg,
		EventsFound: found,
	})
	if err != nil {
		d.logger.Warn().Err(err).Msg("writing progress snapshot failed")
	}
}

func (d *Dispatcher) finishRun(ctx context.Context, runID int64, status string, outcome events.Outcome, errCount int, summary string, logger zerolog.Logger) {
	err := d.store.ScrapeRuns().Finish(ctx, runID, storage.ScrapeRunOutcome{
		Status:        status,
		EventsAdded:   outcome.Created,
		EventsUpdated: outcome.Updated,
		EventsSkipped: outcome.Skipped,
		ErrorCount:    errCount,
		Summary:       summary,
		FinishedAt:    d.now().UTC(),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("closing out scrape run failed")
	}
}
