package livegame

import (
	"context"
	"fmt"
	"strings"

	"ruche/internal/riot"
	"ruche/internal/storage"
)

// buildSnapshot resolves the roster against the store, inserting players
// seen for the first time, and attaches their ranked aggregates.
func (p *Poller) buildSnapshot(ctx context.Context, g *riot.CurrentGame, platform string) (*Snapshot, error) {
	if g == nil {
		return nil, fmt.Errorf("nil game")
	}
	if pl, ok := riot.ParsePlatform(g.PlatformID); ok {
		platform = pl.String()
	}

	puuids := g.Puuids()
	known, err := p.store.SummonersByPuuids(ctx, puuids)
	if err != nil {
		return nil, fmt.Errorf("%w: summoners by puuid: %v", ErrPersistence, err)
	}

	var missing []storage.Summoner
	for _, gp := range g.Participants {
		if _, ok := known[gp.Puuid]; ok || gp.Puuid == "" {
			continue
		}
		missing = append(missing, storage.Summoner{
			Puuid:       gp.Puuid,
			GameName:    gp.GameName,
			TagLine:     gp.TagLine,
			Platform:    platform,
			ProfileIcon: gp.ProfileIcon,
		})
	}
	if len(missing) > 0 {
		if err := p.store.InsertSummoners(ctx, missing); err != nil {
			return nil, fmt.Errorf("%w: insert summoners: %v", ErrPersistence, err)
		}
		added := make([]string, len(missing))
		for i, m := range missing {
			added[i] = m.Puuid
		}
		fresh, err := p.store.SummonersByPuuids(ctx, added)
		if err != nil {
			return nil, fmt.Errorf("%w: summoners by puuid: %v", ErrPersistence, err)
		}
		for k, v := range fresh {
			known[k] = v
		}
	}

	ids := make([]int64, 0, len(known))
	for _, sm := range known {
		ids = append(ids, sm.ID)
	}
	stats, err := p.store.ParticipantStats(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: participant stats: %v", ErrPersistence, err)
	}

	snap := &Snapshot{
		MatchID:      g.MatchID,
		Platform:     platform,
		QueueID:      g.QueueID,
		MapID:        g.MapID,
		GameMode:     g.GameMode,
		GameLength:   g.LengthSeconds,
		StartedAt:    g.StartedAt,
		CreatedAt:    p.now(),
		Participants: make([]Participant, 0, len(g.Participants)),
	}
	for _, gp := range g.Participants {
		sm := known[gp.Puuid]
		part := Participant{
			SummonerID:    sm.ID,
			Puuid:         gp.Puuid,
			GameName:      firstNonEmpty(sm.GameName, gp.GameName),
			TagLine:       firstNonEmpty(sm.TagLine, gp.TagLine),
			Platform:      firstNonEmpty(sm.Platform, platform),
			SummonerLevel: sm.SummonerLevel,
			ProfileIcon:   gp.ProfileIcon,
			ChampionID:    gp.ChampionID,
			TeamID:        gp.TeamID,
			Spell1:        gp.Spell1,
			Spell2:        gp.Spell2,
			PrimaryPerk:   gp.PrimaryPerk,
			SubStyle:      gp.SubStyle,
		}
		if sm.ID != 0 {
			part.Champion, part.Ranked = summarize(stats[sm.ID], gp.ChampionID)
		}
		snap.Participants = append(snap.Participants, part)
	}
	return snap, nil
}

// summarize extracts the played champion's line and sums ranked totals over
// every champion.
func summarize(byChampion map[int64]storage.ChampionStats, championID int64) (*ChampionStats, *RankedStats) {
	if len(byChampion) == 0 {
		return nil, nil
	}
	var champ *ChampionStats
	if cs, ok := byChampion[championID]; ok && cs.Games > 0 {
		champ = &ChampionStats{
			Games:      cs.Games,
			Wins:       cs.Wins,
			Losses:     cs.Games - cs.Wins,
			WinRate:    float64(cs.Wins) / float64(cs.Games),
			AvgKills:   round2(cs.AvgKills),
			AvgDeaths:  round2(cs.AvgDeaths),
			AvgAssists: round2(cs.AvgAssists),
		}
	}
	var games, wins int64
	for _, cs := range byChampion {
		games += cs.Games
		wins += cs.Wins
	}
	if games == 0 {
		return champ, nil
	}
	return champ, &RankedStats{
		Games:   games,
		Wins:    wins,
		Losses:  games - wins,
		WinRate: float64(wins) / float64(games),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
