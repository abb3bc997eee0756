// Package livegame tracks which watched summoners are currently in a match.
//
// Cache holds summoner -> match and match -> Snapshot. Poller is the
// scheduled job that refreshes the cache for every summoner with at least
// one live subscriber and publishes the resulting transitions.
//
// Locking: Cache guards both maps with one RWMutex held only for map
// operations. The poller never performs I/O while holding it.
package livegame
