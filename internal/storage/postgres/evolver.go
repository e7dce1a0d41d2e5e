package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/citylore/server/internal/metrics"
)

// expectedColumns lists, per table, columns that older deployments may be
// missing along with the DDL to add them. Additions are non-destructive:
// nullable or defaulted, booleans default false. Columns created by the
// baseline migrations appear here so a database restored from an old dump
// converges on the current shape.
var expectedColumns = map[string]map[string]string{
	"events": {
		"end_date":              "DATE",
		"start_time":            "VARCHAR(5)",
		"end_time":              "VARCHAR(5)",
		"image_url":             "TEXT NOT NULL DEFAULT ''",
		"start_location":        "TEXT NOT NULL DEFAULT ''",
		"end_location":          "TEXT NOT NULL DEFAULT ''",
		"registration_required": "BOOLEAN NOT NULL DEFAULT FALSE",
		"registration_url":      "TEXT NOT NULL DEFAULT ''",
		"is_online":             "BOOLEAN NOT NULL DEFAULT FALSE",
		"is_baby_friendly":      "BOOLEAN NOT NULL DEFAULT FALSE",
		"is_permanent":          "BOOLEAN NOT NULL DEFAULT FALSE",
		"language":              "TEXT NOT NULL DEFAULT 'English'",
		"source_name":           "TEXT NOT NULL DEFAULT ''",
		"source_url":            "TEXT NOT NULL DEFAULT ''",
		"type_details":          "JSONB",
	},
	"venues": {
		"ticketing_url":   "TEXT NOT NULL DEFAULT ''",
		"social_urls":     "JSONB NOT NULL DEFAULT '{}'::jsonb",
		"hours":           "TEXT NOT NULL DEFAULT ''",
		"contact":         "TEXT NOT NULL DEFAULT ''",
		"additional_info": "JSONB NOT NULL DEFAULT '{}'::jsonb",
		"lat":             "DOUBLE PRECISION",
		"lon":             "DOUBLE PRECISION",
	},
	"cities": {
		"state":    "TEXT NOT NULL DEFAULT ''",
		"timezone": "TEXT NOT NULL DEFAULT 'UTC'",
	},
	"sources": {
		"covers_multiple_cities": "BOOLEAN NOT NULL DEFAULT FALSE",
		"covered_cities":         "TEXT[] NOT NULL DEFAULT '{}'",
		"reliability_score":      "DOUBLE PRECISION NOT NULL DEFAULT 0",
		"posting_frequency":      "TEXT NOT NULL DEFAULT ''",
		"last_checked":           "TIMESTAMPTZ",
		"last_event_found":       "TIMESTAMPTZ",
		"events_found_count":     "INTEGER NOT NULL DEFAULT 0",
	},
}

// EvolveReport summarizes one reconciliation pass.
type EvolveReport struct {
	Added  []string
	Errors []error
}

// Evolver reconciles the live schema against the expected column lists at
// startup. It only ever adds columns; failures are reported, never fatal.
type Evolver struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewEvolver(pool *pgxpool.Pool, logger zerolog.Logger) *Evolver {
	return &Evolver{pool: pool, logger: logger}
}

// Evolve runs one reconciliation pass. Idempotent: a second run on the
// same database adds nothing.
func (e *Evolver) Evolve(ctx context.Context) EvolveReport {
	var report EvolveReport

	for table, columns := range expectedColumns {
		existing, err := e.existingColumns(ctx, table)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("inspect %s: %w", table, err))
			continue
		}
		if existing == nil {
			// Table absent entirely; migrations own table creation.
			continue
		}

		for column, ddl := range columns {
			if existing[column] {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", table, column, ddl)
			if _, err := e.pool.Exec(ctx, stmt); err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("add %s.%s: %w", table, column, err))
				e.logger.Error().Err(err).
					Str("table", table).
					Str("column", column).
					Msg("schema evolution failed")
				continue
			}
			report.Added = append(report.Added, table+"."+column)
			metrics.SchemaColumnsAddedTotal.Inc()
			e.logger.Info().
				Str("table", table).
				Str("column", column).
				Msg("schema evolution added column")
		}
	}

	return report
}

// existingColumns returns the column set of table, or nil when the table
// does not exist.
func (e *Evolver) existingColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := e.pool.Query(ctx, `
SELECT column_name
  FROM information_schema.columns
 WHERE table_schema = 'public' AND table_name = $1
`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, nil
	}
	return columns, nil
}
