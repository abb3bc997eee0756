package httpapi

import (
	"net/http"
	"time"

	"ruche/internal/livegame"
	logx "ruche/pkg/logx"
)

type liveGameView struct {
	MatchID      string            `json:"match_id"`
	Platform     string            `json:"platform"`
	QueueID      int64             `json:"queue_id"`
	MapID        int64             `json:"map_id"`
	GameMode     string            `json:"game_mode"`
	GameLength   int64             `json:"game_length"`
	StartedAt    time.Time         `json:"started_at"`
	Participants []participantView `json:"participants"`
}

type participantView struct {
	SummonerID     int64  `json:"summoner_id"`
	Puuid          string `json:"puuid"`
	GameName       string `json:"game_name"`
	TagLine        string `json:"tag_line"`
	Platform       string `json:"platform"`
	SummonerLevel  int64  `json:"summoner_level"`
	ProfileIcon    int64  `json:"profile_icon_id"`
	ChampionID     int64  `json:"champion_id"`
	TeamID         int64  `json:"team_id"`
	Spell1         int64  `json:"summoner_spell1"`
	Spell2         int64  `json:"summoner_spell2"`
	PrimaryPerk    int64  `json:"perk_primary_selection_id"`
	SubStyle       int64  `json:"perk_sub_style_id"`
	EncounterCount int64  `json:"encounter_count"`

	Champion *championView `json:"champion_stats,omitempty"`
	Ranked   *rankedView   `json:"ranked_stats,omitempty"`
}

type championView struct {
	Games      int64   `json:"total_champion_played"`
	Wins       int64   `json:"total_champion_wins"`
	Losses     int64   `json:"total_champion_losses"`
	WinRate    float64 `json:"champion_win_rate"`
	AvgKills   float64 `json:"avg_kills"`
	AvgDeaths  float64 `json:"avg_deaths"`
	AvgAssists float64 `json:"avg_assists"`
}

type rankedView struct {
	Games   int64   `json:"total_ranked"`
	Wins    int64   `json:"total_ranked_wins"`
	Losses  int64   `json:"total_ranked_losses"`
	WinRate float64 `json:"ranked_win_rate"`
}

// liveGame returns the cached live match of a summoner, 204 when there is
// none.
func (a *api) liveGame(w http.ResponseWriter, r *http.Request) {
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

	snap, ok := a.live.Get(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var others []int64
	for _, sid := range snap.SummonerIDs() {
		if sid != id {
			others = append(others, sid)
		}
	}
	counts, err := a.store.EncounterCounts(r.Context(), id, others)
	if err != nil {
		// Encounters are decoration; serve the match without them.
		a.log.Warn("encounter counts failed", logx.Int64("summoner", id), logx.Err(err))
		counts = nil
	}
	writeJSON(w, http.StatusOK, newLiveGameView(snap, a.now(), counts))
}

func newLiveGameView(s *livegame.Snapshot, now time.Time, encounters map[int64]int64) liveGameView {
	v := liveGameView{
		MatchID:      s.MatchID,
		Platform:     s.Platform,
		QueueID:      s.QueueID,
		MapID:        s.MapID,
		GameMode:     s.GameMode,
		GameLength:   s.LengthAt(now),
		StartedAt:    s.StartedAt,
		Participants: make([]participantView, 0, len(s.Participants)),
	}
	for _, p := range s.Participants {
		pv := participantView{
			SummonerID:     p.SummonerID,
			Puuid:          p.Puuid,
			GameName:       p.GameName,
			TagLine:        p.TagLine,
			Platform:       p.Platform,
			SummonerLevel:  p.SummonerLevel,
			ProfileIcon:    p.ProfileIcon,
			ChampionID:     p.ChampionID,
			TeamID:         p.TeamID,
			Spell1:         p.Spell1,
			Spell2:         p.Spell2,
			PrimaryPerk:    p.PrimaryPerk,
			SubStyle:       p.SubStyle,
			EncounterCount: encounters[p.SummonerID],
		}
		if c := p.Champion; c != nil {
			pv.Champion = &championView{
				Games: c.Games, Wins: c.Wins, Losses: c.Losses, WinRate: c.WinRate,
				AvgKills: c.AvgKills, AvgDeaths: c.AvgDeaths, AvgAssists: c.AvgAssists,
			}
		}
		if rk := p.Ranked; rk != nil {
			pv.Ranked = &rankedView{Games: rk.Games, Wins: rk.Wins, Losses: rk.Losses, WinRate: rk.WinRate}
		}
		v.Participants = append(v.Participants, pv)
	}
	return v
}
