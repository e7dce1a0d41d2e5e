package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/citylore/server/internal/config"
	"github.com/citylore/server/internal/dispatch"
	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/scraper"
	"github.com/citylore/server/internal/snapshot"
	"github.com/citylore/server/internal/storage/postgres"
)

var (
	scrapeVenueIDs  []int64
	scrapeSourceIDs []int64
	scrapeCityID    int64
	scrapeType      string
	scrapeRange     string
	scrapeStart     string
	scrapeEnd       string
	scrapeMaxExhib  int
	scrapeMaxEvents int
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run a scrape against venues or sources from the command line",
	Long: `Run a scrape request without going through the HTTP API.

Progress and per-event results print to stdout as they happen, the
same records the /api/scrape-stream endpoint would deliver.

Examples:
  # Scrape two venues for this month's events
  server scrape --venues 3,7 --range this_month

  # Scrape a source over a custom window
  server scrape --sources 1 --range custom --start 2026-09-01 --end 2026-09-30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScrape(cmd.Context())
	},
}

func init() {
	scrapeCmd.Flags().Int64SliceVar(&scrapeVenueIDs, "venues", nil, "venue ids to scrape")
	scrapeCmd.Flags().Int64SliceVar(&scrapeSourceIDs, "sources", nil, "source ids to scrape")
	scrapeCmd.Flags().Int64Var(&scrapeCityID, "city", 0, "restrict venue selection to one city")
	scrapeCmd.Flags().StringVar(&scrapeType, "type", "", "event type filter (exhibition, music, talk, ...)")
	scrapeCmd.Flags().StringVar(&scrapeRange, "range", scraper.RangeThisMonth, "time range (today, this_week, this_month, next_month, all, custom)")
	scrapeCmd.Flags().StringVar(&scrapeStart, "start", "", "custom range start (YYYY-MM-DD)")
	scrapeCmd.Flags().StringVar(&scrapeEnd, "end", "", "custom range end (YYYY-MM-DD)")
	scrapeCmd.Flags().IntVar(&scrapeMaxExhib, "max-exhibitions", 0, "per-venue exhibition ceiling (0 = default)")
	scrapeCmd.Flags().IntVar(&scrapeMaxEvents, "max-events", 0, "per-venue event ceiling (0 = default)")
}

func runScrape(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := config.NewLogger(cfg.Logging)

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return fmt.Errorf("repository init failed: %w", err)
	}

	fetcher := scraper.NewFetcher(logger)
	if cfg.Scraper.DisableBrowser {
		fetcher = fetcher.WithoutBrowserFallback()
	}
	engine := events.NewEngine(postgres.NewEventStore(repo), logger)
	dispatcher := dispatch.NewDispatcher(repo,
		scraper.NewSiteExtractor(fetcher, logger),
		scraper.NewAggregatorClient(logger),
		engine,
		snapshot.NewWriter(cfg.Scraper.SnapshotDir),
		logger)

	req := dispatch.Request{
		EventType:      scrapeType,
		TimeRange:      scrapeRange,
		VenueIDs:       scrapeVenueIDs,
		SourceIDs:      scrapeSourceIDs,
		MaxExhibitions: scrapeMaxExhib,
		MaxEvents:      scrapeMaxEvents,
	}
	if scrapeCityID != 0 {
		req.CityID = &scrapeCityID
	}
	if scrapeStart != "" {
		t, err := time.Parse("2006-01-02", scrapeStart)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		req.CustomStart = &t
	}
	if scrapeEnd != "" {
		t, err := time.Parse("2006-01-02", scrapeEnd)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
		req.CustomEnd = &t
	}

	stream := dispatch.NewStream()
	done := make(chan error, 1)
	go func() {
		done <- dispatcher.Run(ctx, req, stream)
	}()

	for rec := range stream.Records() {
		switch rec.Kind {
		case dispatch.KindProgress:
			if rec.Message != "" {
				fmt.Printf("[%3d%%] %s\n", rec.Percentage, rec.Message)
			}
		case dispatch.KindEvent:
			if rec.Event != nil {
				fmt.Printf("       + %s\n", rec.Event.Title)
			}
		case dispatch.KindError:
			fmt.Printf("       ! %s\n", rec.Message)
		case dispatch.KindComplete:
			fmt.Printf("done: %d events (%d created, %d updated, %d skipped), %d errors\n",
				rec.TotalEvents, rec.Outcome.Created, rec.Outcome.Updated, rec.Outcome.Skipped, rec.ErrorCount)
		}
	}
	return <-done
}
