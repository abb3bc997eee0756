package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ruche/internal/livegame"
	"ruche/internal/sse"
	"ruche/internal/storage"
	logx "ruche/pkg/logx"
)

// Store is the slice of storage.Store the handlers need.
type Store interface {
	SummonerByID(ctx context.Context, id int64) (storage.Summoner, error)
	EncounterCounts(ctx context.Context, viewer int64, others []int64) (map[int64]int64, error)
	InsertMatchParticipants(ctx context.Context, rows []storage.MatchParticipant) (int, error)
}

// LiveGames reads cached snapshots.
type LiveGames interface {
	Get(summonerID int64) (*livegame.Snapshot, bool)
}

// StreamConfig tunes the SSE endpoint.
type StreamConfig struct {
	Debounce  time.Duration
	KeepAlive time.Duration
	Retry     time.Duration
}

type Deps struct {
	Hub     *sse.Hub
	Live    LiveGames
	Store   Store
	Metrics http.Handler
	Stream  StreamConfig
	// Pprof mounts the runtime profiler under /debug.
	Pprof bool
	Log   logx.Logger
	Now   func() time.Time
}

type api struct {
	hub    *sse.Hub
	live   LiveGames
	store  Store
	stream StreamConfig
	log    logx.Logger
	now    func() time.Time
}

func NewRouter(d Deps) http.Handler {
	a := &api{
		hub:    d.Hub,
		live:   d.Live,
		store:  d.Store,
		stream: d.Stream,
		log:    d.Log,
		now:    d.Now,
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.stream.Retry <= 0 {
		a.stream.Retry = sse.RetryMillis * time.Millisecond
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	if d.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}

	r.Get("/sse/match_updated/{platform}/{summonerID}", a.matchUpdated)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Get("/live/{platform}/{summonerID}", a.liveGame)
		r.Post("/summoners/{summonerID}/matches", a.ingestMatches)
	})
	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
