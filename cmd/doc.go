// Package cmd defines and implements the CLI commands for the demoscraper executable.
//
// Architecture overview:
//   - discover: the event extractor pages through /events/archive 50 blocks at a time, optionally
//     enriches each event through the match extractor and writes the Lookup Document. With db.dsn set
//     the document is also upserted into Postgres.
//   - download: replays of one event (matches fetched live) or of a Lookup Document are streamed into
//     demofiles/<event_id>/<demo_id>.rar, sequentially or through the dispatcher's worker pool. Each
//     written file may be mirrored to GCS and announced on Pub/Sub.
//   - Every page and replay request goes through the shared retry policy: a non-200 answer costs a
//     60s emergency sleep and at most 3 attempts are made. retry.run_budget caps the total sleep.
//   - Progress events are batched by a hub into the log, Prometheus and (with db.dsn) run-store sinks.
//
// Quick checklist:
//   - Configure env vars: DEMOSCRAPER_SITE_BASE_URL, DEMOSCRAPER_RETRY_EMERGENCY_SLEEP,
//     DEMOSCRAPER_DOWNLOAD_WORKERS, DEMOSCRAPER_DB_DSN, DEMOSCRAPER_STORAGE_GCS_BUCKET,
//     DEMOSCRAPER_PUBSUB_PROJECT_ID and DEMOSCRAPER_PUBSUB_TOPIC_NAME, or put them in .env.
//   - Run locally: go run . discover --start 2021-04-22 --end 2022-04-22 --type ONLINE --include-matches
//   - Then: go run . download --lookup event_lookup__2021_04_22__2022_04_22__ONLINE.json --parallel
package cmd
