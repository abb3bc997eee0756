// Package httpapi is the public HTTP surface: the match_updated SSE stream,
// the cached live-game endpoint, match ingestion, health and metrics.
package httpapi
