package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/citylore/server/internal/domain/ids"
	"github.com/citylore/server/internal/metrics"
	"github.com/citylore/server/internal/normalize"
	"github.com/citylore/server/internal/timeparse"
)

// DefaultBatchSize is how many candidates commit per transaction.
const DefaultBatchSize = 5

// Outcome reports what the merge engine did with a set of candidates.
// Created + Updated + Skipped always equals the number submitted.
type Outcome struct {
	Created int
	Updated int
	Skipped int
}

func (o *Outcome) add(other Outcome) {
	o.Created += other.Created
	o.Updated += other.Updated
	o.Skipped += other.Skipped
}

// Engine is the merge/persist engine (the only writer of event rows).
// Candidates are applied in submission order, committed every BatchSize
// candidates; a failed batch rolls back, logs, and processing continues
// with the next batch.
type Engine struct {
	store     Store
	batchSize int
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEngine builds an Engine with the default batch size.
func NewEngine(store Store, logger zerolog.Logger) *Engine {
	return &Engine{
		store:     store,
		batchSize: DefaultBatchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// WithBatchSize overrides the per-transaction batch size.
func (e *Engine) WithBatchSize(n int) *Engine {
	if n > 0 {
		e.batchSize = n
	}
	return e
}

// Process applies candidates against the store. quotas is the
// request-scoped governor shared across all batches of one scrape run; a
// nil governor means no ceilings.
func (e *Engine) Process(ctx context.Context, candidates []Candidate, quotas *QuotaGovernor) Outcome {
	var total Outcome

	for start := 0; start < len(candidates); start += e.batchSize {
		end := start + e.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		chunk := candidates[start:end]

		var batch Outcome
		err := e.store.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			index := NewDuplicateIndex(repo)
			for _, c := range chunk {
				kind, err := e.applyOne(ctx, repo, index, c, quotas)
				if err != nil {
					return err
				}
				switch kind {
				case "created":
					batch.Created++
				case "updated":
					batch.Updated++
				default:
					batch.Skipped++
				}
			}
			return nil
		})
		if err != nil {
			// The whole batch rolled back; none of its candidates persisted.
			e.logger.Error().Err(err).
				Int("batch_size", len(chunk)).
				Msg("merge: batch failed, rolled back")
			metrics.MergeBatchFailuresTotal.Inc()
			batch = Outcome{Skipped: len(chunk)}
		}
		total.add(batch)
	}

	metrics.CandidatesProcessedTotal.WithLabelValues("created").Add(float64(total.Created))
	metrics.CandidatesProcessedTotal.WithLabelValues("updated").Add(float64(total.Updated))
	metrics.CandidatesProcessedTotal.WithLabelValues("skipped").Add(float64(total.Skipped))

	return total
}

// applyOne runs a single candidate through reject → dedup → merge-or-insert.
// Returns "created", "updated", or "skipped".
func (e *Engine) applyOne(ctx context.Context, repo Repository, index *DuplicateIndex, c Candidate, quotas *QuotaGovernor) (string, error) {
	c.Title = normalize.CleanText(c.Title)

	if normalize.IsCategoryHeading(c.Title) {
		e.logger.Debug().Str("title", c.Title).Msg("merge: rejected category heading")
		return "skipped", nil
	}
	if c.Language != "" && !strings.EqualFold(c.Language, "English") {
		e.logger.Debug().Str("title", c.Title).Str("language", c.Language).
			Msg("merge: rejected non-English candidate")
		return "skipped", nil
	}
	if c.VenueID == nil && c.CityID == nil {
		e.logger.Debug().Str("title", c.Title).
			Msg("merge: rejected candidate with neither venue nor city")
		return "skipped", nil
	}
	if c.EventType == "" {
		c.EventType = TypeEvent
	}

	babyFriendly := DetectBabyFriendly(c.Title, c.Description)

	existing, strategy, err := index.FindExisting(ctx, c)
	if err != nil {
		return "", err
	}

	if existing != nil {
		metrics.DedupMatchesTotal.WithLabelValues(string(strategy)).Inc()

		params, changed, any := MergeFields(existing, c)
		if babyFriendly && !existing.IsBabyFriendly {
			t := true
			params.IsBabyFriendly = &t
			changed = append(changed, "is_baby_friendly")
			any = true
		}
		if any {
			if err := repo.Update(ctx, existing.ID, params); err != nil {
				return "", err
			}
			e.logger.Debug().
				Int64("event_id", existing.ID).
				Strs("fields", changed).
				Str("strategy", string(strategy)).
				Msg("merge: updated existing event")
		}
		return "updated", nil
	}

	if quotas != nil {
		if err := quotas.Admit(c); err != nil {
			if errors.Is(err, ErrQuotaExceeded) {
				e.logger.Debug().Str("title", c.Title).Err(err).Msg("merge: quota skip")
				return "skipped", nil
			}
			return "", err
		}
	}

	ulid, err := ids.NewULID()
	if err != nil {
		return "", err
	}

	params := createParamsFromCandidate(c, ulid, babyFriendly)
	if _, err := repo.Insert(ctx, params); err != nil {
		return "", err
	}
	return "created", nil
}

// createParamsFromCandidate maps a candidate onto insert params, applying
// the defensive late-end default for music and performance events. The
// time parser already applies it upstream; this guards direct admin paths.
func createParamsFromCandidate(c Candidate, ulid string, babyFriendly bool) CreateParams {
	endTime := c.EndTime
	if endTime == nil && c.StartTime != nil {
		if def := timeparse.DefaultEndTime(c.EventType, *c.StartTime, ""); def != "" {
			endTime = &def
		}
	}

	params := CreateParams{
		ULID:            ulid,
		Title:           c.Title,
		EventType:       c.EventType,
		StartDate:       c.StartDate,
		EndDate:         c.EndDate,
		StartTime:       c.StartTime,
		EndTime:         endTime,
		Description:     c.Description,
		URL:             c.URL,
		ImageURL:        c.ImageURL,
		StartLocation:   c.StartLocation,
		EndLocation:     c.EndLocation,
		RegistrationURL: c.RegistrationURL,
		IsPermanent:     c.IsPermanent,
		IsBabyFriendly:  babyFriendly,
		Language:        c.Language,
		VenueID:         c.VenueID,
		CityID:          c.CityID,
		SourceName:      c.SourceName,
		SourceURL:       c.SourceURL,
		TypeDetails:     c.TypeDetails,
	}
	if c.RegistrationRequired != nil {
		params.RegistrationRequired = *c.RegistrationRequired
	}
	if c.IsOnline != nil {
		params.IsOnline = *c.IsOnline
	}
	if params.Language == "" {
		params.Language = "English"
	}
	return params
}
