package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ruche/internal/riot"
	"ruche/internal/storage"
	logx "ruche/pkg/logx"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func summonerIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "summonerID"), 10, 64)
	return id, err == nil && id > 0
}

func platformParam(r *http.Request) (riot.Platform, bool) {
	return riot.ParsePlatform(chi.URLParam(r, "platform"))
}

var errWrongPlatform = errors.New("summoner is on another platform")

// lookupSummoner resolves a summoner and, when p is valid, checks it plays
// on that platform.
func (a *api) lookupSummoner(r *http.Request, id int64, p riot.Platform) (storage.Summoner, error) {
	s, err := a.store.SummonerByID(r.Context(), id)
	if err != nil {
		return storage.Summoner{}, err
	}
	if p.Valid() {
		if sp, ok := riot.ParsePlatform(s.Platform); !ok || sp != p {
			return storage.Summoner{}, errWrongPlatform
		}
	}
	return s, nil
}

// summonerError maps a lookup failure to a response and reports whether
// the caller should stop.
func (a *api) summonerError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, errWrongPlatform):
		writeError(w, http.StatusNotFound, "summoner not found")
	default:
		a.log.Warn("summoner lookup failed", logx.String("path", r.URL.Path), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "storage unavailable")
	}
	return true
}
