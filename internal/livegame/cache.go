package livegame

import (
	"sync"
	"time"
)

const DefaultNoneTTL = 60 * time.Second

type summonerEntry struct {
	matchID string // empty: not in a match
	seenAt  time.Time
}

type matchEntry struct {
	snap *Snapshot
	refs int
}

// Cache maps summoners to live matches.
//
// A matchID present in the summoner map always has a snapshot: Set and Link
// install both under one lock, Clear and MarkNone drop a snapshot with its
// last reference.
type Cache struct {
	now     func() time.Time
	noneTTL time.Duration

	mu         sync.RWMutex
	bySummoner map[int64]summonerEntry
	matches    map[string]*matchEntry
}

type CacheOption func(*Cache)

func WithCacheClock(now func() time.Time) CacheOption { return func(c *Cache) { c.now = now } }

// WithNoneTTL sets how long a "not in a match" result is trusted.
func WithNoneTTL(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.noneTTL = d
		}
	}
}

func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		now:        time.Now,
		noneTTL:    DefaultNoneTTL,
		bySummoner: map[int64]summonerEntry{},
		matches:    map[string]*matchEntry{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the snapshot of the match the summoner is in.
func (c *Cache) Get(summonerID int64) (*Snapshot, bool) {
	c.mu.RLock()
	e, ok := c.bySummoner[summonerID]
	if !ok || e.matchID == "" {
		c.mu.RUnlock()
		return nil, false
	}
	if m := c.matches[e.matchID]; m != nil && m.snap != nil {
		snap := m.snap
		c.mu.RUnlock()
		return snap, true
	}
	c.mu.RUnlock()

	c.heal(summonerID, e.matchID)
	return nil, false
}

// Status reports what the cache knows about the summoner. Expired "not in a
// match" entries read as unknown.
func (c *Cache) Status(summonerID int64) (string, State) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.bySummoner[summonerID]
	if !ok {
		c.mu.RUnlock()
		return "", StateUnknown
	}
	if e.matchID == "" {
		c.mu.RUnlock()
		if now.Sub(e.seenAt) > c.noneTTL {
			return "", StateUnknown
		}
		return "", StateNotInGame
	}
	if m := c.matches[e.matchID]; m != nil && m.snap != nil {
		c.mu.RUnlock()
		return e.matchID, StateInGame
	}
	c.mu.RUnlock()

	c.heal(summonerID, e.matchID)
	return "", StateUnknown
}

// heal drops a mapping whose snapshot is gone.
func (c *Cache) heal(summonerID int64, matchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.bySummoner[summonerID]
	if !ok || e.matchID != matchID {
		return
	}
	if m := c.matches[matchID]; m != nil && m.snap != nil {
		return
	}
	delete(c.bySummoner, summonerID)
	delete(c.matches, matchID)
}

// Set installs or replaces the snapshot of matchID and maps every listed
// summoner to it.
func (c *Cache) Set(matchID string, summonerIDs []int64, snap *Snapshot) {
	if matchID == "" || snap == nil || len(summonerIDs) == 0 {
		return
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.matches[matchID]
	if m == nil {
		m = &matchEntry{}
		c.matches[matchID] = m
	}
	m.snap = snap
	c.linkLocked(matchID, m, summonerIDs, now)
}

// Link maps summoners onto an existing snapshot without rebuilding it. It
// reports false when matchID has no snapshot.
func (c *Cache) Link(matchID string, summonerIDs ...int64) bool {
	if matchID == "" {
		return false
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.matches[matchID]
	if m == nil || m.snap == nil {
		return false
	}
	c.linkLocked(matchID, m, summonerIDs, now)
	return true
}

func (c *Cache) linkLocked(matchID string, m *matchEntry, ids []int64, now time.Time) {
	for _, id := range ids {
		prev, ok := c.bySummoner[id]
		if ok && prev.matchID == matchID {
			c.bySummoner[id] = summonerEntry{matchID: matchID, seenAt: now}
			continue
		}
		if ok && prev.matchID != "" {
			c.unrefLocked(prev.matchID)
		}
		c.bySummoner[id] = summonerEntry{matchID: matchID, seenAt: now}
		m.refs++
	}
}

func (c *Cache) unrefLocked(matchID string) {
	m := c.matches[matchID]
	if m == nil {
		return
	}
	m.refs--
	if m.refs <= 0 {
		delete(c.matches, matchID)
	}
}

// Clear forgets the summoner's mapping, in-game or not.
func (c *Cache) Clear(summonerID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked(summonerID)
}

func (c *Cache) clearLocked(summonerID int64) {
	e, ok := c.bySummoner[summonerID]
	if !ok {
		return
	}
	delete(c.bySummoner, summonerID)
	if e.matchID != "" {
		c.unrefLocked(e.matchID)
	}
}

// Forget clears many summoners at once; used when their topics are purged.
func (c *Cache) Forget(summonerIDs []int64) {
	if len(summonerIDs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range summonerIDs {
		c.clearLocked(id)
	}
}

// MarkNone records a fresh "not in a match", replacing any mapping.
func (c *Cache) MarkNone(summonerID int64) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked(summonerID)
	c.bySummoner[summonerID] = summonerEntry{seenAt: now}
}

// Sweep purges expired "not in a match" entries, mappings without a
// snapshot and unreferenced snapshots.
func (c *Cache) Sweep(now time.Time) (expired, orphans int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.bySummoner {
		if e.matchID == "" {
			if now.Sub(e.seenAt) > c.noneTTL {
				delete(c.bySummoner, id)
				expired++
			}
			continue
		}
		if m := c.matches[e.matchID]; m == nil || m.snap == nil {
			delete(c.bySummoner, id)
			orphans++
		}
	}
	for matchID, m := range c.matches {
		if m.refs <= 0 || m.snap == nil {
			delete(c.matches, matchID)
			orphans++
		}
	}
	return expired, orphans
}

type CacheStats struct {
	Summoners int
	InGame    int
	NotInGame int
	Matches   int
}

func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := CacheStats{Summoners: len(c.bySummoner), Matches: len(c.matches)}
	for _, e := range c.bySummoner {
		if e.matchID == "" {
			st.NotInGame++
		} else {
			st.InGame++
		}
	}
	return st
}
