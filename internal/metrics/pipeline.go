package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion pipeline metrics.
var (
	// CandidatesProcessedTotal counts merge-engine outcomes.
	CandidatesProcessedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_processed_total",
			Help:      "Candidates processed by the merge engine, by outcome",
		},
		[]string{"outcome"}, // created, updated, skipped
	)

	// DedupMatchesTotal counts duplicate-index hits by strategy.
	DedupMatchesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_matches_total",
			Help:      "Duplicate index matches by strategy",
		},
		[]string{"strategy"},
	)

	// MergeBatchFailuresTotal counts rolled-back candidate batches.
	MergeBatchFailuresTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_batch_failures_total",
			Help:      "Candidate batches rolled back due to store errors",
		},
	)

	// ScrapeRunsTotal counts dispatcher runs by result.
	ScrapeRunsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_runs_total",
			Help:      "Scrape dispatcher runs by result",
		},
		[]string{"result"}, // completed, failed, cancelled
	)

	// ScrapeVenueDuration records wall-clock seconds per scraped venue.
	ScrapeVenueDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_venue_duration_seconds",
			Help:      "Wall-clock duration of one venue scrape",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// ScrapedEventsTotal counts raw events extracted, by source kind.
	ScrapedEventsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scraped_events_total",
			Help:      "Raw events extracted from pages, by source kind",
		},
		[]string{"source"}, // website, aggregator, recurring
	)

	// ExtractionStrategyTotal counts pages by the strategy that won.
	ExtractionStrategyTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_strategy_total",
			Help:      "Pages that yielded events, by extraction strategy",
		},
		[]string{"strategy"}, // jsonld, microdata, heuristic
	)

	// FetchFallbacksTotal counts anti-bot fallback activations.
	FetchFallbacksTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_fallbacks_total",
			Help:      "Fetches that fell back to the headless challenge client",
		},
	)

	// OCRExtractionsTotal counts OCR attempts by engine and result.
	OCRExtractionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_extractions_total",
			Help:      "OCR engine attempts by engine and result",
		},
		[]string{"engine", "result"},
	)

	// LLMExtractionsTotal counts LLM extraction calls by result.
	LLMExtractionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_extractions_total",
			Help:      "LLM extraction calls by result",
		},
		[]string{"result"}, // ok, bad_json, error
	)

	// GeocodingRequestsTotal counts location resolutions by source.
	GeocodingRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocoding_requests_total",
			Help:      "Location resolutions by source",
		},
		[]string{"source"}, // cache, backend, tz_fallback, utc_fallback
	)

	// SchemaColumnsAddedTotal counts columns added by the schema evolver.
	SchemaColumnsAddedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_columns_added_total",
			Help:      "Columns added by the startup schema evolver",
		},
	)
)
