package livegame

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ruche/internal/riot"
	"ruche/internal/storage"
	logx "ruche/pkg/logx"
)

// ---- fakes ----

type fakeHub struct {
	mu       sync.Mutex
	active   []int64
	versions map[int64]uint64
	live     map[int64][]uint64
	notLive  map[int64]int
}

func newFakeHub(active ...int64) *fakeHub {
	return &fakeHub{
		active:   active,
		versions: map[int64]uint64{},
		live:     map[int64][]uint64{},
		notLive:  map[int64]int{},
	}
}

func (h *fakeHub) ActiveSummoners() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.active...)
}

func (h *fakeHub) PublishLive(id int64) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.versions[id]++
	h.live[id] = append(h.live[id], h.versions[id])
	return h.versions[id]
}

func (h *fakeHub) PublishNotLive(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notLive[id]++
}

func (h *fakeHub) events(id int64) (live []uint64, notLive int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint64(nil), h.live[id]...), h.notLive[id]
}

type fakeGames struct {
	mu       sync.Mutex
	games    map[string]*riot.CurrentGame // puuid -> game
	errs     map[string]error
	calls    map[string]int
	delay    time.Duration
	inflight atomic.Int32
	maxIn    atomic.Int32

	// intercept runs before every lookup; a non-nil error fails it.
	intercept func(puuid string) error
}

func newFakeGames() *fakeGames {
	return &fakeGames{games: map[string]*riot.CurrentGame{}, errs: map[string]error{}, calls: map[string]int{}}
}

// play puts every puuid into the same match.
func (f *fakeGames) play(matchID string, puuids ...string) *riot.CurrentGame {
	g := &riot.CurrentGame{MatchID: matchID, PlatformID: "EUW1", QueueID: 420, MapID: 11, LengthSeconds: 120}
	for i, p := range puuids {
		g.Participants = append(g.Participants, riot.GameParticipant{
			Puuid: p, GameName: "name-" + p, TagLine: "EUW", ChampionID: int64(100 + i), TeamID: 100,
			Spell1: 4, Spell2: 14, PrimaryPerk: 8112, SubStyle: 8200,
		})
	}
	f.mu.Lock()
	for _, p := range puuids {
		f.games[p] = g
	}
	f.mu.Unlock()
	return g
}

func (f *fakeGames) leave(puuid string) {
	f.mu.Lock()
	delete(f.games, puuid)
	f.mu.Unlock()
}

func (f *fakeGames) CurrentGame(ctx context.Context, _ riot.Platform, puuid string) (*riot.CurrentGame, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxIn.Load()
		if n <= m || f.maxIn.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.intercept != nil {
		if err := f.intercept(puuid); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[puuid]++
	if err := f.errs[puuid]; err != nil {
		return nil, err
	}
	return f.games[puuid], nil
}

func (f *fakeGames) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeStore struct {
	mu        sync.Mutex
	byID      map[int64]storage.Summoner
	nextID    int64
	stats     storage.ParticipantStats
	failLoad  error
	failStats error
	inserted  []string
}

func newFakeStore(ids ...int64) *fakeStore {
	s := &fakeStore{byID: map[int64]storage.Summoner{}, stats: storage.ParticipantStats{}, nextID: 1000}
	for _, id := range ids {
		s.byID[id] = storage.Summoner{ID: id, Puuid: puuid(id), GameName: fmt.Sprintf("s%d", id), TagLine: "EUW", Platform: "EUW"}
	}
	return s
}

func puuid(id int64) string { return fmt.Sprintf("p%d", id) }

func (s *fakeStore) SummonersByIDs(_ context.Context, ids []int64) (map[int64]storage.Summoner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad != nil {
		return nil, s.failLoad
	}
	out := map[int64]storage.Summoner{}
	for _, id := range ids {
		if sm, ok := s.byID[id]; ok {
			out[id] = sm
		}
	}
	return out, nil
}

func (s *fakeStore) SummonersByPuuids(_ context.Context, puuids []string) (map[string]storage.Summoner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]storage.Summoner{}
	want := map[string]bool{}
	for _, p := range puuids {
		want[p] = true
	}
	for _, sm := range s.byID {
		if want[sm.Puuid] {
			out[sm.Puuid] = sm
		}
	}
	return out, nil
}

func (s *fakeStore) InsertSummoners(_ context.Context, rows []storage.Summoner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.nextID++
		r.ID = s.nextID
		s.byID[r.ID] = r
		s.inserted = append(s.inserted, r.Puuid)
	}
	return nil
}

func (s *fakeStore) ParticipantStats(_ context.Context, ids []int64) (storage.ParticipantStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStats != nil {
		return nil, s.failStats
	}
	return s.stats, nil
}

type harness struct {
	cache  *Cache
	hub    *fakeHub
	games  *fakeGames
	store  *fakeStore
	poller *Poller
}

func newHarness(cfg Config, ids ...int64) *harness {
	h := &harness{
		cache: NewCache(),
		hub:   newFakeHub(ids...),
		games: newFakeGames(),
		store: newFakeStore(ids...),
	}
	h.poller = NewPoller(h.cache, h.hub, h.games, h.store, cfg, logx.Nop())
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	if err := h.poller.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// ---- tests ----

func TestTransitions(t *testing.T) {
	tests := []struct {
		name      string
		prev      string // installed before the cycle; "" = no entry
		prevNone  bool
		next      string // game the lookup returns; "" = none
		wantLive  int
		wantNone  int
		wantMatch string
	}{
		{name: "none to some", next: "A", wantLive: 1, wantMatch: "A"},
		{name: "marked none to some", prevNone: true, next: "A", wantLive: 1, wantMatch: "A"},
		{name: "some to none", prev: "A", wantNone: 1},
		{name: "some a to some b", prev: "A", next: "B", wantLive: 1, wantMatch: "B"},
		{name: "same to same", prev: "A", next: "A"},
		{name: "none to none", prevNone: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(Config{}, 1)
			var before *Snapshot
			if tt.prev != "" {
				before = &Snapshot{MatchID: tt.prev}
				h.cache.Set(tt.prev, []int64{1}, before)
			}
			if tt.prevNone {
				h.cache.MarkNone(1)
			}
			if tt.next != "" {
				h.games.play(tt.next, "p1", "p99")
			}

			h.run(t)

			live, none := h.hub.events(1)
			if len(live) != tt.wantLive || none != tt.wantNone {
				t.Fatalf("events live=%v none=%d, want live=%d none=%d", live, none, tt.wantLive, tt.wantNone)
			}
			snap, ok := h.cache.Get(1)
			if tt.wantMatch == "" {
				if tt.next == "" {
					if ok {
						t.Fatalf("still mapped to %q", snap.MatchID)
					}
					if _, st := h.cache.Status(1); st != StateNotInGame {
						t.Fatalf("status = %v, want not_in_game", st)
					}
				}
			} else if !ok || snap.MatchID != tt.wantMatch {
				t.Fatalf("Get(1) = %v,%v want match %q", snap, ok, tt.wantMatch)
			}
			if tt.prev != "" && tt.prev == tt.next && snap != before {
				t.Fatal("unchanged match rebuilt its snapshot")
			}
		})
	}
}

func TestLiveVersionBumpsPriorCounter(t *testing.T) {
	h := newHarness(Config{}, 1)
	h.hub.versions[1] = 4
	h.games.play("A", "p1")
	h.run(t)
	live, _ := h.hub.events(1)
	if len(live) != 1 || live[0] != 5 {
		t.Fatalf("live events = %v, want [5]", live)
	}
}

func TestGroupProbeVouchesForMembers(t *testing.T) {
	h := newHarness(Config{}, 1, 2, 3, 4)
	snap := &Snapshot{MatchID: "M"}
	h.cache.Set("M", []int64{1, 2, 3, 4}, snap)
	h.games.play("M", "p1", "p2", "p3", "p4")

	h.run(t)

	if got := h.games.totalCalls(); got != 1 {
		t.Fatalf("lookups = %d, want 1 probe for the group", got)
	}
	for id := int64(1); id <= 4; id++ {
		if live, none := h.hub.events(id); len(live) != 0 || none != 0 {
			t.Fatalf("summoner %d got events %v/%d", id, live, none)
		}
		if got, _ := h.cache.Get(id); got != snap {
			t.Fatalf("summoner %d snapshot replaced", id)
		}
	}
}

func TestBatchedProbingAfterOneLeaves(t *testing.T) {
	h := newHarness(Config{}, 1, 2, 3, 4)
	snap := &Snapshot{MatchID: "M"}
	h.cache.Set("M", []int64{1, 2, 3, 4}, snap)
	// Summoner 1, the group's probe, is out; 2-4 are still in M.
	h.games.play("M", "p2", "p3", "p4")

	h.run(t)

	if got := h.games.totalCalls(); got != 2 {
		t.Fatalf("lookups = %d (%v), want 1 probe + 1 individual", got, h.games.calls)
	}
	if _, none := h.hub.events(1); none != 1 {
		t.Fatalf("summoner 1 not announced as not live")
	}
	for id := int64(2); id <= 4; id++ {
		if live, none := h.hub.events(id); len(live) != 0 || none != 0 {
			t.Fatalf("summoner %d got events %v/%d", id, live, none)
		}
		if got, _ := h.cache.Get(id); got != snap {
			t.Fatalf("summoner %d snapshot replaced", id)
		}
	}
}

func TestSplitGroupFillsWaves(t *testing.T) {
	tests := []struct {
		name     string
		games    map[int64]string // where members 2-5 went; absent = no match
		wantLive int
		wantNone int
	}{
		{name: "all left", wantNone: 5},
		{name: "scattered", games: map[int64]string{2: "W", 3: "X", 4: "Y", 5: "Z"}, wantLive: 4, wantNone: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(Config{Concurrency: 5}, 1, 2, 3, 4, 5)
			h.cache.Set("M", []int64{1, 2, 3, 4, 5}, &Snapshot{MatchID: "M"})
			for id, matchID := range tt.games {
				h.games.play(matchID, puuid(id))
			}
			h.games.delay = 20 * time.Millisecond

			h.run(t)

			if got := h.games.totalCalls(); got != 5 {
				t.Fatalf("lookups = %d, want one per member", got)
			}
			// group check, first sample, then the other three together
			if got := h.games.maxIn.Load(); got < 3 {
				t.Fatalf("max in flight = %d, the split group stayed one per wave", got)
			}
			live, none := 0, 0
			for id := int64(1); id <= 5; id++ {
				l, n := h.hub.events(id)
				live += len(l)
				none += n
			}
			if live != tt.wantLive || none != tt.wantNone {
				t.Fatalf("events live=%d none=%d, want %d/%d", live, none, tt.wantLive, tt.wantNone)
			}
		})
	}
}

func TestRosterShortCircuitsLaterWaves(t *testing.T) {
	h := newHarness(Config{Concurrency: 1}, 1, 2, 3)
	h.games.play("G", "p1", "p2", "p3")

	h.run(t)

	if got := h.games.totalCalls(); got != 1 {
		t.Fatalf("lookups = %d, want 1", got)
	}
	first, _ := h.cache.Get(1)
	for id := int64(1); id <= 3; id++ {
		got, ok := h.cache.Get(id)
		if !ok || got != first {
			t.Fatalf("summoner %d not sharing the match snapshot", id)
		}
		if live, _ := h.hub.events(id); len(live) != 1 {
			t.Fatalf("summoner %d live events = %v", id, live)
		}
	}
}

func TestLookupConcurrencyIsBounded(t *testing.T) {
	ids := make([]int64, 12)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	h := newHarness(Config{Concurrency: 5}, ids...)
	h.games.delay = 10 * time.Millisecond

	h.run(t)

	if got := h.games.maxIn.Load(); got > 5 {
		t.Fatalf("max in flight = %d, want <= 5", got)
	}
	if got := h.games.totalCalls(); got != 12 {
		t.Fatalf("lookups = %d, want 12", got)
	}
}

func TestLookupFailureFailsOpen(t *testing.T) {
	h := newHarness(Config{}, 1, 2)
	h.cache.Set("A", []int64{1}, &Snapshot{MatchID: "A"})
	h.games.play("B", "p2")
	h.games.errs["p1"] = errors.New("upstream timeout")

	h.run(t)

	if _, none := h.hub.events(1); none != 1 {
		t.Fatal("failed lookup must read as not in a match")
	}
	if live, _ := h.hub.events(2); len(live) != 1 {
		t.Fatal("other summoners are unaffected by one failure")
	}
}

func TestLookupTimeoutIsBounded(t *testing.T) {
	h := newHarness(Config{LookupTimeout: 20 * time.Millisecond}, 1)
	h.games.delay = time.Second
	start := time.Now()
	h.run(t)
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Fatalf("cycle took %s despite the per-call timeout", d)
	}
}

func TestStoreFailureAbortsCycle(t *testing.T) {
	h := newHarness(Config{}, 1)
	h.store.failLoad = errors.New("db down")
	err := h.poller.Run(context.Background())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Run() = %v, want persistence error", err)
	}
	if h.games.totalCalls() != 0 {
		t.Fatal("lookups issued after the store failed")
	}
}

func TestStatsFailureLeavesNoDanglingMatch(t *testing.T) {
	h := newHarness(Config{}, 1, 2)
	h.cache.Set("A", []int64{1}, &Snapshot{MatchID: "A"})
	h.games.play("B", "p1", "p2")
	h.store.failStats = errors.New("db down")

	err := h.poller.Run(context.Background())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Run() = %v, want persistence error", err)
	}
	for _, id := range []int64{1, 2} {
		if _, st := h.cache.Status(id); st == StateInGame {
			t.Fatalf("summoner %d mapped although its snapshot was never written", id)
		}
		if live, _ := h.hub.events(id); len(live) != 0 {
			t.Fatalf("summoner %d announced live without a snapshot", id)
		}
	}
	if st := h.cache.Stats(); st.Matches != 0 {
		t.Fatalf("matches = %d", st.Matches)
	}
}

func TestSnapshotContents(t *testing.T) {
	h := newHarness(Config{}, 1)
	h.store.stats[1] = map[int64]storage.ChampionStats{
		100: {ChampionID: 100, Games: 4, Wins: 3, AvgKills: 5.556, AvgDeaths: 2, AvgAssists: 7.123},
		22:  {ChampionID: 22, Games: 6, Wins: 2},
	}
	h.games.play("A", "p1", "p-new")

	h.run(t)

	snap, ok := h.cache.Get(1)
	if !ok {
		t.Fatal("no snapshot")
	}
	if snap.QueueID != 420 || snap.GameLength != 120 || snap.Platform != "EUW" {
		t.Fatalf("unexpected snapshot header: %+v", snap)
	}
	if len(snap.Participants) != 2 {
		t.Fatalf("participants = %d", len(snap.Participants))
	}
	me := snap.Participants[0]
	if me.SummonerID != 1 || me.PrimaryPerk != 8112 || me.SubStyle != 8200 {
		t.Fatalf("participant: %+v", me)
	}
	if me.Champion == nil || me.Champion.Games != 4 || me.Champion.Losses != 1 || me.Champion.AvgKills != 5.56 {
		t.Fatalf("champion stats: %+v", me.Champion)
	}
	if me.Ranked == nil || me.Ranked.Games != 10 || me.Ranked.Wins != 5 || me.Ranked.WinRate != 0.5 {
		t.Fatalf("ranked stats: %+v", me.Ranked)
	}

	other := snap.Participants[1]
	if other.SummonerID == 0 || other.Champion != nil || other.Ranked != nil {
		t.Fatalf("new participant: %+v", other)
	}
	if len(h.store.inserted) != 1 || h.store.inserted[0] != "p-new" {
		t.Fatalf("inserted = %v", h.store.inserted)
	}
}

func TestSecondCycleIsQuiet(t *testing.T) {
	h := newHarness(Config{}, 1, 2)
	h.games.play("A", "p1", "p2")
	h.run(t)
	first, _ := h.cache.Get(1)
	h.run(t)
	second, _ := h.cache.Get(1)
	if first != second {
		t.Fatal("snapshot rebuilt on an unchanged cycle")
	}
	for _, id := range []int64{1, 2} {
		if live, _ := h.hub.events(id); len(live) != 1 {
			t.Fatalf("summoner %d live events = %v, want exactly one", id, live)
		}
	}

	h.games.leave("p1")
	h.games.leave("p2")
	h.run(t)
	for _, id := range []int64{1, 2} {
		if _, none := h.hub.events(id); none != 1 {
			t.Fatalf("summoner %d not announced as not live", id)
		}
	}
	if st := h.cache.Stats(); st.Matches != 0 || st.NotInGame != 2 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestPrime(t *testing.T) {
	t.Run("resolves unknown in background", func(t *testing.T) {
		h := newHarness(Config{}, 1)
		h.games.play("A", "p1")
		h.poller.Prime(1)
		h.poller.WaitPrimes()
		if live, _ := h.hub.events(1); len(live) != 1 {
			t.Fatalf("live events = %v", live)
		}
		if _, ok := h.cache.Get(1); !ok {
			t.Fatal("prime did not install the snapshot")
		}
	})
	t.Run("re-announces cached game", func(t *testing.T) {
		h := newHarness(Config{}, 1)
		h.cache.Set("A", []int64{1}, &Snapshot{MatchID: "A"})
		h.poller.Prime(1)
		h.poller.WaitPrimes()
		if live, _ := h.hub.events(1); len(live) != 1 {
			t.Fatalf("live events = %v", live)
		}
		if h.games.totalCalls() != 0 {
			t.Fatal("cached status should not hit the provider")
		}
	})
	t.Run("not in game stays silent", func(t *testing.T) {
		h := newHarness(Config{}, 1)
		h.cache.MarkNone(1)
		h.poller.Prime(1)
		h.poller.WaitPrimes()
		if live, none := h.hub.events(1); len(live) != 0 || none != 0 {
			t.Fatal("unexpected events")
		}
		if h.games.totalCalls() != 0 {
			t.Fatal("fresh none should not hit the provider")
		}
	})
	t.Run("none result is cached", func(t *testing.T) {
		h := newHarness(Config{}, 1)
		h.poller.Prime(1)
		h.poller.WaitPrimes()
		if _, st := h.cache.Status(1); st != StateNotInGame {
			t.Fatalf("status = %v", st)
		}
	})
}

func TestActiveWithoutStoreRowIsSkipped(t *testing.T) {
	h := newHarness(Config{}, 1)
	h.hub.active = append(h.hub.active, 42)
	h.games.play("A", "p1")
	h.run(t)
	if got := h.games.totalCalls(); got != 1 {
		t.Fatalf("lookups = %d, want only the stored summoner", got)
	}
	if _, st := h.cache.Status(42); st != StateUnknown {
		t.Fatalf("status of unstored summoner = %v", st)
	}
}

func TestPrimeDuringCycleIsNotOverwritten(t *testing.T) {
	h := newHarness(Config{}, 1)
	h.games.play("A", "p1")
	var primed atomic.Bool
	h.games.intercept = func(puuid string) error {
		if puuid != "p1" || !primed.CompareAndSwap(false, true) {
			return nil
		}
		// The first subscriber arrives while the cycle's lookup is in flight;
		// the prime wins the race and the cycle's own lookup is throttled.
		h.poller.Prime(1)
		h.poller.WaitPrimes()
		return riot.ErrRateLimited
	}

	h.run(t)

	live, none := h.hub.events(1)
	if len(live) != 1 || none != 0 {
		t.Fatalf("after first cycle live=%v none=%d, want one live event", live, none)
	}
	if matchID, st := h.cache.Status(1); st != StateInGame || matchID != "A" {
		t.Fatalf("status = %q/%v, want the primed match", matchID, st)
	}

	h.games.leave("p1")
	h.run(t)

	if _, none := h.hub.events(1); none != 1 {
		t.Fatalf("not-live events = %d after leaving, want 1", none)
	}
	if _, st := h.cache.Status(1); st != StateNotInGame {
		t.Fatalf("status = %v, want not_in_game", st)
	}
}
