// Package sse fans live-match and match-history notifications out to
// server-sent-event subscribers.
//
// A Hub keeps one topic per summoner. Topics are created by the first
// subscriber and purged by a cleanup job once they have been empty for a
// grace period. A Stream sits between a receiver and the HTTP response and
// debounces events into numbered frames.
package sse
