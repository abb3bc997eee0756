package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ruche/internal/sse"
	logx "ruche/pkg/logx"
)

// frameWriter renders stream frames onto a response.
type frameWriter struct {
	w     http.ResponseWriter
	fl    http.Flusher
	retry string
}

func (f *frameWriter) WriteFrame(fr sse.Frame) error {
	if _, err := fmt.Fprintf(f.w, "id: %d\nretry: %s\ndata: %s\n\n", fr.ID, f.retry, fr.Data); err != nil {
		return err
	}
	f.fl.Flush()
	return nil
}

func (f *frameWriter) KeepAlive() error {
	if _, err := f.w.Write([]byte(": keep-alive\n\n")); err != nil {
		return err
	}
	f.fl.Flush()
	return nil
}

// matchUpdated streams LiveGame and SummonerMatches notifications for one
// summoner.
func (a *api) matchUpdated(w http.ResponseWriter, r *http.Request) {
	p, ok := platformParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown platform")
		return
	}
	id, ok := summonerIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid summoner id")
		return
	}
	if _, err := a.lookupSummoner(r, id, p); a.summonerError(w, r, err) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	conn := uuid.NewString()
	log := a.log.With(logx.String("conn", conn), logx.Int64("summoner", id))

	rx := a.hub.Subscribe(id)
	defer rx.Close()

	var frames int
	stream := sse.NewStream(rx,
		sse.WithDebounce(a.stream.Debounce),
		sse.WithKeepAlive(a.stream.KeepAlive),
		sse.OnFrame(func(sse.Frame) { frames++ }),
	)
	start := time.Now()
	log.Debug("sse connected", logx.String("platform", p.String()))

	fw := &frameWriter{w: w, fl: flusher, retry: strconv.FormatInt(a.stream.Retry.Milliseconds(), 10)}
	err := stream.Run(r.Context(), fw)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Debug("sse write failed", logx.Err(err))
	}
	log.Debug("sse closed",
		logx.Int("frames", frames),
		logx.Uint64("dropped", rx.Dropped()),
		logx.Duration("dur", time.Since(start)),
	)
}
