package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/citylore/server/internal/api"
	"github.com/citylore/server/internal/auth"
	"github.com/citylore/server/internal/config"
	"github.com/citylore/server/internal/dispatch"
	"github.com/citylore/server/internal/domain/events"
	"github.com/citylore/server/internal/domain/ids"
	"github.com/citylore/server/internal/domain/sources"
	"github.com/citylore/server/internal/email"
	"github.com/citylore/server/internal/imagery"
	"github.com/citylore/server/internal/jobs"
	"github.com/citylore/server/internal/locations"
	"github.com/citylore/server/internal/locations/nominatim"
	"github.com/citylore/server/internal/metrics"
	"github.com/citylore/server/internal/scraper"
	"github.com/citylore/server/internal/snapshot"
	"github.com/citylore/server/internal/storage/postgres"
	"github.com/citylore/server/internal/telemetry"
	"github.com/riverqueue/river/rivertype"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
	runMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the citylore HTTP server",
	Long: `Start the HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables
- Reconcile the database schema (add missing columns, never drop)
- Bootstrap the admin account if ADMIN_* env vars are set
- Start background workers for geocoding and the nightly event sweep
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Apply pending migrations before serving
  server serve --migrate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
	serveCmd.Flags().BoolVar(&runMigrate, "migrate", false, "apply pending migrations before serving")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Msg("starting citylore server")

	metrics.Init(Version, GitCommit, BuildDate)

	if cfg.Tracing.Enabled {
		shutdownTracing, err := telemetry.InitTracing(context.Background(), cfg.Tracing, Version)
		if err != nil {
			logger.Error().Err(err).Msg("tracing init failed; continuing without tracing")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(ctx)
			}()
		}
	}

	if runMigrate {
		if err := postgres.MigrateUp(cfg.Database.URL, ""); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		logger.Info().Msg("migrations applied")
	}

	poolCtx, poolCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := pgxpool.New(poolCtx, cfg.Database.URL)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	// Schema reconciliation: adds any columns the running build expects.
	// Failures log and never block startup.
	evolveCtx, evolveCancel := context.WithTimeout(context.Background(), 30*time.Second)
	report := postgres.NewEvolver(pool, logger).Evolve(evolveCtx)
	evolveCancel()
	if len(report.Added) > 0 {
		logger.Info().Strs("columns", report.Added).Msg("schema evolved")
	}

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return fmt.Errorf("repository init failed: %w", err)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := bootstrapAdmin(bootCtx, cfg, repo, logger); err != nil {
		logger.Error().Err(err).Msg("admin bootstrap failed")
	}
	bootCancel()

	// Database pool metrics, sampled every 15 seconds.
	collector := metrics.NewDBCollector(pool)
	collectorCtx, collectorCancel := context.WithCancel(context.Background())
	go collector.Start(collectorCtx, 15*time.Second)
	defer collectorCancel()

	// Extraction and persistence core.
	geocoder := locations.NewResolver(
		nominatim.NewClient(nominatim.DefaultBaseURL, cfg.Email.AlertTo),
		repo.GeocodeCache(), logger)

	fetcher := scraper.NewFetcher(logger)
	if cfg.Scraper.DisableBrowser {
		fetcher = fetcher.WithoutBrowserFallback()
	}
	site := scraper.NewSiteExtractor(fetcher, logger)
	aggregator := scraper.NewAggregatorClient(logger)
	expander := scraper.NewRecurringExpander(fetcher, logger)

	engine := events.NewEngine(postgres.NewEventStore(repo), logger)
	snapshots := snapshot.NewWriter(cfg.Scraper.SnapshotDir)

	alerter := email.NewAlerter(cfg.Email, logger)
	dispatcher := dispatch.NewDispatcher(repo, site, aggregator, engine, snapshots, logger).
		WithAlerts(func(ctx context.Context, requestID, summary string, errCount int) {
			if err := alerter.ScrapeFailure(ctx, requestID, summary, errCount); err != nil {
				logger.Error().Err(err).Msg("scrape failure alert not sent")
			}
		})

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	seedSources(seedCtx, cfg, repo, logger)
	seedCancel()

	var registry *imagery.VenueRegistry
	if cfg.Imagery.VenueRegistryPath != "" {
		registry, err = imagery.LoadVenueRegistry(cfg.Imagery.VenueRegistryPath)
		if err != nil {
			logger.Error().Err(err).Str("path", cfg.Imagery.VenueRegistryPath).
				Msg("venue registry load failed; auto-attach disabled")
		}
	}
	ocr := imagery.NewOCRChain(cfg.Imagery.OCREngine, logger, imagery.NewTesseractEngine())
	llm := imagery.NewLLMClient(cfg.Imagery.LLMAPIKey, cfg.Imagery.LLMModel, cfg.Imagery.LLMBaseURL, logger)
	extractor := imagery.NewExtractor(ocr, llm, repo.Cities(), repo.Venues(), registry, cfg.Imagery.UploadsDir, logger)

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, "citylore")

	// Background workers.
	workers := jobs.NewWorkers(
		jobs.NewSweepPastEventsWorker(repo.Events(), logger),
		jobs.NewGeocodeVenueWorker(repo.Venues(), geocoder, logger),
	)
	errorHandler := jobs.NewAlertingErrorHandler(logger, func(ctx context.Context, job *rivertype.JobRow, jobErr error) {
		if err := alerter.JobFailure(ctx, job.Kind, job.ID, jobErr); err != nil {
			logger.Error().Err(err).Msg("job failure alert not sent")
		}
	})
	riverClient, err := jobs.NewClient(pool, workers, errorHandler, jobs.NewPeriodicJobs())
	if err != nil {
		return fmt.Errorf("job client init failed: %w", err)
	}
	riverCtx, riverCancel := context.WithCancel(context.Background())
	defer riverCancel()
	if err := riverClient.Start(riverCtx); err != nil {
		return fmt.Errorf("job workers failed to start: %w", err)
	}
	logger.Info().Msg("background job workers started")
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := riverClient.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("job workers shutdown error")
		}
	}()

	handler := api.NewRouter(api.Dependencies{
		Config:     cfg,
		Logger:     logger,
		Store:      repo,
		Engine:     engine,
		Dispatcher: dispatcher,
		Extractor:  extractor,
		Expander:   expander,
		JWT:        jwtManager,
		PingDB:     pool.Ping,
		Version:    Version,
		GitCommit:  GitCommit,
		BuildDate:  BuildDate,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      0, // scrape-stream responses outlive any fixed write budget
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	return gracefulShutdown(server, logger)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

// bootstrapAdmin creates the configured admin account when it does not
// exist yet. Unset credentials skip the bootstrap.
func bootstrapAdmin(ctx context.Context, cfg config.Config, repo *postgres.Repository, logger zerolog.Logger) error {
	bootstrap := cfg.AdminBootstrap
	if bootstrap.Username == "" || bootstrap.Password == "" {
		logger.Warn().Msg("admin bootstrap env vars not set; skipping")
		return nil
	}

	admins := repo.Admins()
	if _, err := admins.GetByUsername(ctx, bootstrap.Username); err == nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(bootstrap.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if _, err := admins.Create(ctx, bootstrap.Username, string(hash)); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	logger.Info().Str("username", bootstrap.Username).Msg("bootstrapped admin account")
	return nil
}

// seedSources loads the curated YAML seeds into an empty sources table.
// A non-empty table means an operator already manages sources; seeds are
// never re-applied over it.
func seedSources(ctx context.Context, cfg config.Config, repo *postgres.Repository, logger zerolog.Logger) {
	existing, err := repo.Sources().List(ctx, nil)
	if err != nil {
		logger.Error().Err(err).Msg("listing sources for seeding failed")
		return
	}
	if len(existing) > 0 {
		return
	}

	seeds, err := scraper.LoadSourceConfigs(cfg.Scraper.SourcesDir)
	if err != nil {
		logger.Error().Err(err).Str("dir", cfg.Scraper.SourcesDir).Msg("loading source seeds failed")
		return
	}

	created := 0
	for _, seed := range seeds {
		id, err := ids.NewULID()
		if err != nil {
			logger.Error().Err(err).Msg("minting source ulid failed")
			continue
		}
		_, err = repo.Sources().Insert(ctx, sources.CreateParams{
			ULID:       id,
			Name:       seed.Name,
			Type:       seed.Type,
			URL:        seed.URL,
			EventTypes: seed.EventTypes,
			IsActive:   seed.Enabled,
		})
		if err != nil {
			logger.Error().Err(err).Str("source", seed.Name).Msg("seeding source failed")
			continue
		}
		created++
	}
	if created > 0 {
		logger.Info().Int("count", created).Msg("seeded sources from config")
	}
}

func gracefulShutdown(server *http.Server, logger zerolog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
