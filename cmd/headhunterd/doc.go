// Package main hosts the headhunter service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and pool endpoints. GET /v1/pool serves a cached JSON
//     rendering of the recruit shortlist; POST /v1/pool/invited marks contacted candidates; POST /v1/scan kicks off
//     an on-demand scout run when none is in flight.
//   - Scout runs: internal/app.Scout executes the discovery pipeline on a fixed interval and on demand, serialized
//     by a named lock so a scan and a bulk invite can never interleave their roster rewrites.
//   - Fetch pipeline: every upstream read flows through internal/fetch.Engine, which batches, deduplicates, and
//     caches GETs against the game API, rotates a pool of bearer credentials, retires keys that answer 403/429, and
//     aborts the run once the per-run fetch budget is spent.
//   - Discovery: internal/scanner fans one tournament search out per keyword, samples large rooms by lottery,
//     extracts clanless non-blacklisted players, profiles them against the trophy threshold, and scores recent
//     river-race activity from battle logs, all under a wall-clock budget that degrades to partial results.
//   - Persistence & fanout: the roster lives in memory or Postgres (pgx); each rewrite first snapshots the previous
//     pool to the configured BlobStore (memory/local/GCS); the suppression blacklist rides a chunked property store;
//     a scan report is published to Pub/Sub when a topic is configured.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     counters and gauges are exported on /metrics.
//
// Operational notes:
//   - Concurrency model: one scout run at a time; the fetch engine fans each batch chunk out concurrently and is
//     otherwise run-scoped. Shutdown is coordinated via context cancellation from main through the scheduler.
//   - Rate limiting/backoff: chunked batches with an inter-chunk delay, linear backoff on retryable statuses, and a
//     hard per-run fetch budget keep the service inside upstream quotas.
//   - Observability: zap logs carry run IDs at key transitions; Prometheus tracks fetch outcomes, key evictions,
//     scan phase durations, pool size, and blacklist occupancy.
//
// Quick checklist:
//   - Configure env vars: HEADHUNTER_SERVER_PORT, HEADHUNTER_HEADHUNTER_CLAN_TAG, HEADHUNTER_API_KEYS via config
//     file, storage (HEADHUNTER_STORAGE_*), db DSN, and pubsub when persistence beyond memory is required.
//   - Run locally: go run ./cmd/headhunterd -config config.yaml (or rely solely on env overrides).
package main
