// Package internal holds the event aggregation server internals.
//
// The tree is organized by responsibility:
//   - scraper, imagery: candidate extraction from venue sites, APIs,
//     and screenshots
//   - normalize, timeparse, locations: canonicalization of fields,
//     dates, and localities
//   - domain: the City/Venue/Event/Source models, dedup, quotas, and
//     the merge engine
//   - dispatch: the scrape orchestrator and its progress stream
//   - storage: postgres repositories, migrations, and the schema
//     evolver
//   - api, jobs, config, auth, metrics, telemetry: serving and
//     operational infrastructure
//
// Code in internal/ is not meant for external import.
package internal
