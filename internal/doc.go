// Package internal documents the recipe aggregation server internals.
//
// The internal tree is organized by responsibility:
// - scraper: site configs, listing crawl, detail extraction, orchestration
// - domain: business logic and domain models
// - storage: database access and repositories (pgx + Postgres)
// - config, metrics: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
