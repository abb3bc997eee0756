package sse

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	logx "ruche/pkg/logx"
)

const DefaultCapacity = 3

type topic struct {
	id        int64
	receivers map[*Receiver]struct{}

	liveVer     uint64
	livePresent bool
	matchVer    uint64

	emptySince time.Time
}

// Receiver is one subscription. C is closed by Close or Hub.Close.
type Receiver struct {
	C <-chan Event

	ch      chan Event
	hub     *Hub
	topic   *topic
	closed  bool // guarded by hub.mu
	baseVer uint64
	dropped atomic.Uint64
}

// MatchBase is the topic's match version when the receiver subscribed.
func (r *Receiver) MatchBase() uint64 { return r.baseVer }

// Dropped counts events discarded because the receiver fell behind.
func (r *Receiver) Dropped() uint64 { return r.dropped.Load() }

func (r *Receiver) Close() {
	if r == nil || r.hub == nil {
		return
	}
	r.hub.unsubscribe(r)
}

// Hub owns one topic per watched summoner.
//
// All topic state is guarded by mu; publishing never blocks because every
// receiver channel is bounded and drops its oldest event when full.
type Hub struct {
	capacity int
	now      func() time.Time
	log      logx.Logger

	primerMu sync.RWMutex
	primer   func(summonerID int64)

	mu     sync.Mutex
	topics map[int64]*topic

	published atomic.Uint64
	dropped   atomic.Uint64
}

type Option func(*Hub)

func WithCapacity(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.capacity = n
		}
	}
}

func WithClock(now func() time.Time) Option { return func(h *Hub) { h.now = now } }

func WithLogger(log logx.Logger) Option { return func(h *Hub) { h.log = log } }

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		capacity: DefaultCapacity,
		now:      time.Now,
		log:      logx.Nop(),
		topics:   map[int64]*topic{},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// SetPrimer installs the hook called when a topic is created.
func (h *Hub) SetPrimer(fn func(summonerID int64)) {
	h.primerMu.Lock()
	h.primer = fn
	h.primerMu.Unlock()
}

// Subscribe attaches a receiver to the summoner's topic, creating it on
// first use. A receiver joining a topic that is already live starts with
// the current LiveGame event queued.
func (h *Hub) Subscribe(summonerID int64) *Receiver {
	ch := make(chan Event, h.capacity)
	r := &Receiver{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	t, ok := h.topics[summonerID]
	created := !ok
	if created {
		t = &topic{id: summonerID, receivers: map[*Receiver]struct{}{}}
		h.topics[summonerID] = t
	}
	t.receivers[r] = struct{}{}
	t.emptySince = time.Time{}
	r.topic = t
	r.baseVer = t.matchVer
	if t.livePresent {
		ch <- LiveGame(t.liveVer)
	}
	n := len(t.receivers)
	h.mu.Unlock()

	h.log.Debug("sse subscribed",
		logx.Int64("summoner", summonerID),
		logx.Int("receivers", n),
		logx.Bool("new_topic", created),
	)

	if created {
		h.primerMu.RLock()
		prime := h.primer
		h.primerMu.RUnlock()
		if prime != nil {
			prime(summonerID)
		}
	}
	return r
}

func (h *Hub) unsubscribe(r *Receiver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.ch)
	t := r.topic
	delete(t.receivers, r)
	if len(t.receivers) == 0 {
		t.emptySince = h.now()
	}
}

// Publish delivers ev to every receiver of the topic without blocking. It
// reports false when the summoner has no topic.
func (h *Hub) Publish(summonerID int64, ev Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[summonerID]
	if !ok {
		return false
	}
	h.fanoutLocked(t, ev)
	return true
}

func (h *Hub) fanoutLocked(t *topic, ev Event) {
	h.published.Add(1)
	for r := range t.receivers {
		select {
		case r.ch <- ev:
			continue
		default:
		}
		select {
		case <-r.ch:
			r.dropped.Add(1)
			h.dropped.Add(1)
		default:
		}
		select {
		case r.ch <- ev:
		default:
			r.dropped.Add(1)
			h.dropped.Add(1)
		}
	}
}

// PublishLive bumps the topic's live version and announces it. It returns
// the new version, or 0 without a topic.
func (h *Hub) PublishLive(summonerID int64) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[summonerID]
	if !ok {
		return 0
	}
	t.liveVer++
	t.livePresent = true
	h.fanoutLocked(t, LiveGame(t.liveVer))
	return t.liveVer
}

func (h *Hub) PublishNotLive(summonerID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[summonerID]
	if !ok {
		return
	}
	t.livePresent = false
	h.fanoutLocked(t, NotLive())
}

// PublishMatchesUpdated announces new match history for the summoner.
func (h *Hub) PublishMatchesUpdated(summonerID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[summonerID]
	if !ok {
		return false
	}
	t.matchVer++
	h.fanoutLocked(t, SummonerMatches(t.matchVer))
	return true
}

// ActiveSummoners lists topics with at least one receiver, sorted.
func (h *Hub) ActiveSummoners() []int64 {
	h.mu.Lock()
	out := make([]int64, 0, len(h.topics))
	for id, t := range h.topics {
		if len(t.receivers) > 0 {
			out = append(out, id)
		}
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Purge removes topics that have had no receiver for at least grace and
// returns their ids.
func (h *Hub) Purge(now time.Time, grace time.Duration) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var purged []int64
	for id, t := range h.topics {
		if len(t.receivers) > 0 || t.emptySince.IsZero() {
			continue
		}
		if now.Sub(t.emptySince) >= grace {
			delete(h.topics, id)
			purged = append(purged, id)
		}
	}
	sort.Slice(purged, func(i, j int) bool { return purged[i] < purged[j] })
	return purged
}

// Close ends every receiver; streams reading them return.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	for _, t := range h.topics {
		for r := range t.receivers {
			r.closed = true
			close(r.ch)
			delete(t.receivers, r)
		}
		t.emptySince = now
	}
}

type HubStats struct {
	Topics    int
	Receivers int
	Published uint64
	Dropped   uint64
}

func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	st := HubStats{Topics: len(h.topics)}
	for _, t := range h.topics {
		st.Receivers += len(t.receivers)
	}
	h.mu.Unlock()
	st.Published = h.published.Load()
	st.Dropped = h.dropped.Load()
	return st
}
