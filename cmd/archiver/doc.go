// Package main hosts the board archiver entrypoint.
//
// Architecture overview:
//   - Engine: internal/archiver walks the configured boards in order, once per
//     cycle. Each thread is fetched conditionally through the wire client;
//     unchanged or vanished threads cost one request and nothing else.
//   - Work units: every post of an admitted thread becomes one unit (save the
//     row, then the attachment when the board keeps full media, then the
//     thumbnail). Units run under a fixed permit pool and a failing unit only
//     ends itself.
//   - Persistence: post rows go to Postgres, SQLite or memory; attachment and
//     thumbnail bytes go to a local directory, GCS, S3 or memory, sharded by
//     key. Keys are write-once, so existing blobs are never fetched again.
//   - Configuration & plumbing: Viper populates config from env/files, and
//     edits to the config file swap the board list at the next cycle. zap
//     provides structured logging; Prometheus metrics are exported on the
//     optional ops server alongside health and status endpoints.
//
// Quick checklist:
//   - Configure a board list in YAML (boards[].name, full_media, filters).
//   - Point DATABASE_URL at Postgres, or leave it unset for SQLite under
//     data/archive.db. DATA_DIR sets the local media root.
//   - Run locally: go run ./cmd/archiver -config config.yaml
//   - SIGINT/SIGTERM stop dispatching, drain in-flight units and exit.
package main
