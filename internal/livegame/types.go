package livegame

import (
	"errors"
	"math"
	"time"
)

// ErrPersistence wraps store failures; it aborts the snapshot writes of the
// current cycle.
var ErrPersistence = errors.New("livegame: persistence error")

type State uint8

const (
	StateUnknown State = iota
	StateNotInGame
	StateInGame
)

func (s State) String() string {
	switch s {
	case StateNotInGame:
		return "not_in_game"
	case StateInGame:
		return "in_game"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of one live match shared by every viewer.
type Snapshot struct {
	MatchID    string
	Platform   string
	QueueID    int64
	MapID      int64
	GameMode   string
	GameLength int64 // seconds, as reported when fetched
	StartedAt  time.Time
	CreatedAt  time.Time

	Participants []Participant
}

// LengthAt is the game length in seconds at now.
func (s *Snapshot) LengthAt(now time.Time) int64 {
	if s == nil {
		return 0
	}
	elapsed := now.Sub(s.CreatedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return s.GameLength + int64(elapsed/time.Second)
}

// SummonerIDs lists the stored ids of the participants.
func (s *Snapshot) SummonerIDs() []int64 {
	if s == nil {
		return nil
	}
	out := make([]int64, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.SummonerID != 0 {
			out = append(out, p.SummonerID)
		}
	}
	return out
}

type Participant struct {
	SummonerID    int64
	Puuid         string
	GameName      string
	TagLine       string
	Platform      string
	SummonerLevel int64
	ProfileIcon   int64

	ChampionID  int64
	TeamID      int64
	Spell1      int64
	Spell2      int64
	PrimaryPerk int64
	SubStyle    int64

	// Champion is nil when the summoner has no ranked games on the champion.
	Champion *ChampionStats
	// Ranked is nil when the summoner has no ranked games at all.
	Ranked *RankedStats
}

type ChampionStats struct {
	Games      int64
	Wins       int64
	Losses     int64
	WinRate    float64
	AvgKills   float64
	AvgDeaths  float64
	AvgAssists float64
}

type RankedStats struct {
	Games   int64
	Wins    int64
	Losses  int64
	WinRate float64
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
