package livegame

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ruche/internal/riot"
	"ruche/internal/storage"
	logx "ruche/pkg/logx"
)

// Publisher is the subscription side the poller reports to.
type Publisher interface {
	// ActiveSummoners lists summoners with at least one live subscriber.
	ActiveSummoners() []int64
	// PublishLive bumps the summoner's live version and announces it.
	PublishLive(summonerID int64) uint64
	PublishNotLive(summonerID int64)
}

// GameLookup resolves the match a player is in; (nil, nil) means none.
type GameLookup interface {
	CurrentGame(ctx context.Context, p riot.Platform, puuid string) (*riot.CurrentGame, error)
}

// Store is the subset of storage.Store the poller needs.
type Store interface {
	SummonersByIDs(ctx context.Context, ids []int64) (map[int64]storage.Summoner, error)
	SummonersByPuuids(ctx context.Context, puuids []string) (map[string]storage.Summoner, error)
	InsertSummoners(ctx context.Context, rows []storage.Summoner) error
	ParticipantStats(ctx context.Context, summonerIDs []int64) (storage.ParticipantStats, error)
}

type Config struct {
	// Concurrency caps lookups in flight (default 5).
	Concurrency int
	// LookupTimeout bounds each external lookup (default 3s).
	LookupTimeout time.Duration
}

type PollerStats struct {
	Cycles         uint64
	Lookups        uint64
	LookupFailures uint64
	Transitions    uint64
	StoreFailures  uint64
	Primes         uint64
}

type Poller struct {
	cache *Cache
	hub   Publisher
	games GameLookup
	store Store
	cfg   Config
	log   logx.Logger
	now   func() time.Time

	root context.Context

	// writeMu serializes cache writes between a cycle and on-demand primes.
	writeMu sync.Mutex

	primeMu sync.Mutex
	priming map[int64]struct{}
	primeWG sync.WaitGroup

	configMu sync.RWMutex

	cycles         atomic.Uint64
	lookups        atomic.Uint64
	lookupFailures atomic.Uint64
	transitions    atomic.Uint64
	storeFailures  atomic.Uint64
	primes         atomic.Uint64
}

func NewPoller(cache *Cache, hub Publisher, games GameLookup, store Store, cfg Config, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{
		cache:   cache,
		hub:     hub,
		games:   games,
		store:   store,
		cfg:     normalizeConfig(cfg),
		log:     log,
		now:     time.Now,
		root:    context.Background(),
		priming: map[int64]struct{}{},
	}
}

func normalizeConfig(cfg Config) Config {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 3 * time.Second
	}
	return cfg
}

// Bind sets the context background resolutions run under.
func (p *Poller) Bind(ctx context.Context) {
	if ctx != nil {
		p.root = ctx
	}
}

// Apply swaps tuning knobs at runtime.
func (p *Poller) Apply(cfg Config) {
	p.configMu.Lock()
	p.cfg = normalizeConfig(cfg)
	p.configMu.Unlock()
}

func (p *Poller) config() Config {
	p.configMu.RLock()
	defer p.configMu.RUnlock()
	return p.cfg
}

func (p *Poller) Stats() PollerStats {
	return PollerStats{
		Cycles:         p.cycles.Load(),
		Lookups:        p.lookups.Load(),
		LookupFailures: p.lookupFailures.Load(),
		Transitions:    p.transitions.Load(),
		StoreFailures:  p.storeFailures.Load(),
		Primes:         p.primes.Load(),
	}
}

// Run is one poll cycle. Lookup failures count as "not in a match"; a store
// failure ends the cycle and is returned.
func (p *Poller) Run(ctx context.Context) error {
	p.cycles.Add(1)
	active := p.hub.ActiveSummoners()
	if len(active) == 0 {
		return nil
	}

	summoners, err := p.store.SummonersByIDs(ctx, active)
	if err != nil {
		p.storeFailures.Add(1)
		return fmt.Errorf("%w: load summoners: %v", ErrPersistence, err)
	}

	c := newCycle(p, summoners)
	c.probeGroups(ctx)
	c.drainUnknown(ctx)
	// Lookups cut short by shutdown would read as "left the game".
	if err := ctx.Err(); err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return c.apply(ctx)
}

// cycle is the state of one Run.
type cycle struct {
	p   *Poller
	cfg Config

	ids       []int64 // sorted
	summoners map[int64]storage.Summoner
	byPuuid   map[string]int64

	prev     map[int64]string
	next     map[int64]string
	resolved map[int64]bool
	games    map[string]*riot.CurrentGame

	groups  map[string][]int64 // matchID -> members, sorted
	unknown []int64

	lookups int
}

func newCycle(p *Poller, summoners map[int64]storage.Summoner) *cycle {
	c := &cycle{
		p:         p,
		cfg:       p.config(),
		summoners: summoners,
		byPuuid:   make(map[string]int64, len(summoners)),
		prev:      make(map[int64]string, len(summoners)),
		next:      make(map[int64]string, len(summoners)),
		resolved:  make(map[int64]bool, len(summoners)),
		games:     map[string]*riot.CurrentGame{},
		groups:    map[string][]int64{},
	}
	for id, sm := range summoners {
		c.ids = append(c.ids, id)
		if sm.Puuid != "" {
			c.byPuuid[sm.Puuid] = id
		}
	}
	sort.Slice(c.ids, func(i, j int) bool { return c.ids[i] < c.ids[j] })

	for _, id := range c.ids {
		matchID, st := p.cache.Status(id)
		if st == StateInGame {
			c.prev[id] = matchID
			c.groups[matchID] = append(c.groups[matchID], id)
			continue
		}
		c.unknown = append(c.unknown, id)
	}
	return c
}

func (c *cycle) resolve(id int64, matchID string) {
	c.resolved[id] = true
	c.next[id] = matchID
}

// absorb records a discovered game and resolves every tracked participant
// of its roster.
func (c *cycle) absorb(g *riot.CurrentGame) {
	if g == nil {
		return
	}
	if _, ok := c.games[g.MatchID]; !ok {
		c.games[g.MatchID] = g
	}
	for _, puuid := range g.Puuids() {
		id, ok := c.byPuuid[puuid]
		if !ok || c.resolved[id] {
			continue
		}
		c.resolve(id, g.MatchID)
	}
}

// apply diffs prev against next and publishes the transitions. It runs under
// writeMu; a summoner whose cache entry moved since newCycle was settled by a
// prime, which already published, and is left for the next cycle.
func (c *cycle) apply(ctx context.Context) error {
	p := c.p
	entering := map[string][]int64{}
	settled := 0
	for _, id := range c.ids {
		prev, next := c.prev[id], c.next[id]
		if cur, _ := p.cache.Status(id); cur != prev {
			settled++
			p.log.Debug("summoner settled during cycle",
				logx.Int64("summoner", id),
				logx.String("was", prev),
				logx.String("now", cur),
			)
			continue
		}
		switch {
		case next != "" && prev == next:
			// Still in the same match; the snapshot stays as is.
		case next == "":
			p.cache.MarkNone(id)
			if prev != "" {
				p.transitions.Add(1)
				p.hub.PublishNotLive(id)
			}
		default:
			if prev != "" {
				p.cache.Clear(id)
			}
			entering[next] = append(entering[next], id)
		}
	}

	matchIDs := make([]string, 0, len(entering))
	for m := range entering {
		matchIDs = append(matchIDs, m)
	}
	sort.Strings(matchIDs)

	for _, matchID := range matchIDs {
		ids := entering[matchID]
		if !p.cache.Link(matchID, ids...) {
			g := c.games[matchID]
			if g == nil {
				continue
			}
			snap, err := p.buildSnapshot(ctx, g, c.summoners[ids[0]].Platform)
			if err != nil {
				if errors.Is(err, ErrPersistence) {
					p.storeFailures.Add(1)
					p.log.Error("snapshot writes aborted",
						logx.String("match", matchID),
						logx.Int("pending_matches", len(matchIDs)),
						logx.Err(err),
					)
					return err
				}
				p.log.Warn("snapshot build failed", logx.String("match", matchID), logx.Err(err))
				continue
			}
			p.cache.Set(matchID, ids, snap)
		}
		for _, id := range ids {
			p.transitions.Add(1)
			p.hub.PublishLive(id)
		}
	}

	p.log.Debug("poll cycle done",
		logx.Int("tracked", len(c.ids)),
		logx.Int("groups", len(c.groups)),
		logx.Int("lookups", c.lookups),
		logx.Int("entering", len(matchIDs)),
		logx.Int("settled_elsewhere", settled),
	)
	return nil
}
