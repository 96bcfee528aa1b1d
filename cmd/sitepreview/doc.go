// Package main hosts the sitepreview CLI entrypoint.
//
// Architecture overview:
//   - Registry: config.registry lists the external pages the site links to, in display order. Each URL maps to
//     <host-with-dashes>.png under output.dir; two URLs on the same host share a file.
//   - Prefetch pipeline: internal/pipeline walks the registry sequentially. A cached file at or above
//     validity.min_bytes is reused without touching the network; anything smaller is deleted and fetched again
//     through the screenshot API (internal/screenshot) by the streaming downloader (internal/download). Fetched
//     files are compressed (internal/compress), hashed, mirrored to the configured blob store (internal/storage) and
//     recorded in the optional Postgres ledger (internal/ledger). A fixed pause separates entries.
//   - Fallbacks: when the API fails the optional chromedp renderer captures the page locally; when that fails too an
//     SVG placeholder (internal/placeholder) keeps the site rendering.
//   - Build helpers: compress re-encodes everything already in the asset directory, stage copies static trees into
//     the standalone output, serve runs the chi wrapper with security headers and request timing.
//   - Configuration & plumbing: viper reads a YAML file plus SITEPREVIEW_* env overrides (after godotenv loads .env);
//     zap provides structured logging; Prometheus collectors back /metrics and the optional textfile dump.
//
// Quick checklist:
//   - Run locally: go run ./cmd/sitepreview prefetch --config sitepreview.yaml
//   - Exit status: prefetch exits 1 once failures exceed prefetch.failure_threshold (default 5); every other command
//     exits 1 on error.
//   - Ctrl-C stops a prefetch between entries; the manifest still lists what finished.
package main
