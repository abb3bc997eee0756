package app

import "ruche/internal/metrics"

func (a *App) registerCollectors() {
	a.metrics.Register("scheduler", func(b *metrics.Builder) {
		for _, j := range a.sched.Snapshot() {
			b.Counter("job_runs_total", "Completed job runs.", float64(j.Runs), "job", j.Name)
			b.Counter("job_failures_total", "Job runs that returned an error or panicked.", float64(j.Failures), "job", j.Name)
			b.Counter("job_panics_total", "Job runs that panicked.", float64(j.Panics), "job", j.Name)
			b.Gauge("job_in_flight", "Runs currently executing.", float64(j.InFlight), "job", j.Name)
			b.Gauge("job_last_duration_seconds", "Duration of the last run.", j.LastDuration.Seconds(), "job", j.Name)
		}
	})
	a.metrics.Register("livegame", func(b *metrics.Builder) {
		cs := a.cache.Stats()
		b.Gauge("live_cache_summoners", "Summoners with a cached status.", float64(cs.Summoners), "state", "any")
		b.Gauge("live_cache_summoners", "Summoners with a cached status.", float64(cs.InGame), "state", "in_game")
		b.Gauge("live_cache_summoners", "Summoners with a cached status.", float64(cs.NotInGame), "state", "not_in_game")
		b.Gauge("live_cache_matches", "Cached live match snapshots.", float64(cs.Matches))

		ps := a.poller.Stats()
		b.Counter("poll_cycles_total", "Completed poll cycles.", float64(ps.Cycles))
		b.Counter("poll_lookups_total", "Spectator lookups issued by the poller.", float64(ps.Lookups))
		b.Counter("poll_lookup_failures_total", "Spectator lookups that failed or timed out.", float64(ps.LookupFailures))
		b.Counter("poll_transitions_total", "Summoner live-state transitions.", float64(ps.Transitions))
		b.Counter("poll_store_failures_total", "Store calls that failed during polling.", float64(ps.StoreFailures))
		b.Counter("poll_primes_total", "On-subscribe resolutions.", float64(ps.Primes))
	})
	a.metrics.Register("sse", func(b *metrics.Builder) {
		hs := a.hub.Stats()
		b.Gauge("sse_topics", "Summoner topics.", float64(hs.Topics))
		b.Gauge("sse_receivers", "Connected SSE receivers.", float64(hs.Receivers))
		b.Counter("sse_published_total", "Events published to topics.", float64(hs.Published))
		b.Counter("sse_dropped_total", "Events dropped by slow receivers.", float64(hs.Dropped))
	})
	a.metrics.Register("riot", func(b *metrics.Builder) {
		rs := a.riot.Stats()
		b.Counter("riot_requests_total", "Spectator API requests.", float64(rs.Requests))
		b.Counter("riot_responses_total", "Spectator API outcomes.", float64(rs.Found), "result", "found")
		b.Counter("riot_responses_total", "Spectator API outcomes.", float64(rs.NotFound), "result", "not_found")
		b.Counter("riot_responses_total", "Spectator API outcomes.", float64(rs.Failures), "result", "failure")
		b.Counter("riot_responses_total", "Spectator API outcomes.", float64(rs.RateLimited), "result", "rate_limited")
	})
	a.metrics.Register("supervisor", func(b *metrics.Builder) {
		if a.sup == nil {
			return
		}
		for _, g := range a.sup.Snapshot() {
			b.Gauge("goroutine_active", "Supervised goroutines running.", float64(g.Active), "name", g.Name)
			b.Counter("goroutine_restarts_total", "Supervised goroutine restarts.", float64(g.Restarts), "name", g.Name)
			b.Counter("goroutine_panics_total", "Supervised goroutine panics.", float64(g.Panics), "name", g.Name)
		}
	})
}
