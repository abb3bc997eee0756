package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"ruche/internal/riot"
	"ruche/internal/storage"
	logx "ruche/pkg/logx"
)

const maxIngestBody = 1 << 20

type ingestRequest struct {
	Matches []ingestMatch `json:"matches"`
}

type ingestMatch struct {
	MatchID      string              `json:"match_id"`
	QueueID      int64               `json:"queue_id"`
	MatchEnd     time.Time           `json:"match_end"`
	Participants []ingestParticipant `json:"participants"`
}

type ingestParticipant struct {
	SummonerID int64 `json:"summoner_id"`
	ChampionID int64 `json:"champion_id"`
	Won        bool  `json:"won"`
	Kills      int64 `json:"kills"`
	Deaths     int64 `json:"deaths"`
	Assists    int64 `json:"assists"`
}

type ingestResponse struct {
	Inserted int     `json:"inserted"`
	Notified []int64 `json:"notified"`
}

// ingestMatches stores the participant rows of freshly fetched matches and
// tells every affected summoner's subscribers that their history changed.
func (a *api) ingestMatches(w http.ResponseWriter, r *http.Request) {
	id, ok := summonerIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid summoner id")
		return
	}
	if _, err := a.lookupSummoner(r, id, riot.PlatformUnknown); a.summonerError(w, r, err) {
		return
	}

	var req ingestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	rows, affected, msg := flattenIngest(req)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	affected[id] = struct{}{}

	n, err := a.store.InsertMatchParticipants(r.Context(), rows)
	if err != nil {
		a.log.Warn("match ingest failed", logx.Int64("summoner", id), logx.Int("rows", len(rows)), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}

	resp := ingestResponse{Inserted: n, Notified: []int64{}}
	if n > 0 {
		ids := make([]int64, 0, len(affected))
		for sid := range affected {
			ids = append(ids, sid)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, sid := range ids {
			if a.hub.PublishMatchesUpdated(sid) {
				resp.Notified = append(resp.Notified, sid)
			}
		}
	}
	a.log.Debug("matches ingested",
		logx.Int64("summoner", id),
		logx.Int("rows", len(rows)),
		logx.Int("inserted", n),
		logx.Int("notified", len(resp.Notified)),
	)
	writeJSON(w, http.StatusOK, resp)
}

func flattenIngest(req ingestRequest) ([]storage.MatchParticipant, map[int64]struct{}, string) {
	if len(req.Matches) == 0 {
		return nil, nil, "no matches"
	}
	affected := map[int64]struct{}{}
	var rows []storage.MatchParticipant
	for _, m := range req.Matches {
		matchID := strings.TrimSpace(m.MatchID)
		if matchID == "" {
			return nil, nil, "match_id is required"
		}
		if len(m.Participants) == 0 {
			return nil, nil, "match " + matchID + " has no participants"
		}
		for _, p := range m.Participants {
			if p.SummonerID <= 0 {
				return nil, nil, "match " + matchID + ": summoner_id must be positive"
			}
			affected[p.SummonerID] = struct{}{}
			rows = append(rows, storage.MatchParticipant{
				MatchID:    matchID,
				SummonerID: p.SummonerID,
				ChampionID: p.ChampionID,
				QueueID:    m.QueueID,
				Won:        p.Won,
				Kills:      p.Kills,
				Deaths:     p.Deaths,
				Assists:    p.Assists,
				MatchEnd:   m.MatchEnd,
			})
		}
	}
	return rows, affected, ""
}
