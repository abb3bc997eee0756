package riot

import (
	"fmt"
	"strings"
	"time"
)

// CurrentGame is a match in progress as reported by the spectator API.
type CurrentGame struct {
	// MatchID is "<gameId>_<platformId>", stable across polls.
	MatchID       string
	GameID        int64
	PlatformID    string
	QueueID       int64
	MapID         int64
	GameMode      string
	StartedAt     time.Time
	LengthSeconds int64
	Participants  []GameParticipant
}

type GameParticipant struct {
	Puuid       string
	GameName    string
	TagLine     string
	ChampionID  int64
	TeamID      int64
	Spell1      int64
	Spell2      int64
	PrimaryPerk int64
	SubStyle    int64
	ProfileIcon int64
	Bot         bool
}

// Puuids lists the participants' puuids in roster order.
func (g *CurrentGame) Puuids() []string {
	if g == nil {
		return nil
	}
	out := make([]string, 0, len(g.Participants))
	for _, p := range g.Participants {
		out = append(out, p.Puuid)
	}
	return out
}

// wire format of /lol/spectator/v5/active-games/by-summoner/{puuid}
type currentGameInfo struct {
	GameID            int64                    `json:"gameId"`
	MapID             int64                    `json:"mapId"`
	GameMode          string                   `json:"gameMode"`
	GameQueueConfigID int64                    `json:"gameQueueConfigId"`
	PlatformID        string                   `json:"platformId"`
	GameStartTime     int64                    `json:"gameStartTime"`
	GameLength        int64                    `json:"gameLength"`
	Participants      []currentGameParticipant `json:"participants"`
}

type currentGameParticipant struct {
	Puuid         string `json:"puuid"`
	RiotID        string `json:"riotId"`
	ChampionID    int64  `json:"championId"`
	TeamID        int64  `json:"teamId"`
	Spell1ID      int64  `json:"spell1Id"`
	Spell2ID      int64  `json:"spell2Id"`
	ProfileIconID int64  `json:"profileIconId"`
	Bot           bool   `json:"bot"`
	Perks         *struct {
		PerkIDs      []int64 `json:"perkIds"`
		PerkStyle    int64   `json:"perkStyle"`
		PerkSubStyle int64   `json:"perkSubStyle"`
	} `json:"perks"`
}

// MatchID formats the cache key of a spectator game.
func MatchID(gameID int64, platformID string) string {
	return fmt.Sprintf("%d_%s", gameID, strings.ToUpper(platformID))
}

// SplitRiotID splits "name#tag". A missing tag yields an empty tag line.
func SplitRiotID(riotID string) (gameName, tagLine string) {
	name, tag, _ := strings.Cut(riotID, "#")
	return strings.TrimSpace(name), strings.TrimSpace(tag)
}

func (w currentGameInfo) toGame() *CurrentGame {
	g := &CurrentGame{
		MatchID:       MatchID(w.GameID, w.PlatformID),
		GameID:        w.GameID,
		PlatformID:    w.PlatformID,
		QueueID:       w.GameQueueConfigID,
		MapID:         w.MapID,
		GameMode:      w.GameMode,
		LengthSeconds: w.GameLength,
		Participants:  make([]GameParticipant, 0, len(w.Participants)),
	}
	if w.GameStartTime > 0 {
		g.StartedAt = time.UnixMilli(w.GameStartTime)
	}
	for _, p := range w.Participants {
		// Anonymized (streamer mode) and bot slots carry no puuid.
		if strings.TrimSpace(p.Puuid) == "" {
			continue
		}
		name, tag := SplitRiotID(p.RiotID)
		gp := GameParticipant{
			Puuid:       p.Puuid,
			GameName:    name,
			TagLine:     tag,
			ChampionID:  p.ChampionID,
			TeamID:      p.TeamID,
			Spell1:      p.Spell1ID,
			Spell2:      p.Spell2ID,
			ProfileIcon: p.ProfileIconID,
			Bot:         p.Bot,
		}
		if p.Perks != nil {
			if len(p.Perks.PerkIDs) > 0 {
				gp.PrimaryPerk = p.Perks.PerkIDs[0]
			}
			gp.SubStyle = p.Perks.PerkSubStyle
		}
		g.Participants = append(g.Participants, gp)
	}
	return g
}
