package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "ruche/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "ruche.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSummonerLookups(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	require.NoError(t, st.InsertSummoners(ctx, []Summoner{
		{Puuid: "p-a", GameName: "Alpha", TagLine: "EUW", Platform: "EUW"},
		{Puuid: "p-b", GameName: "Beta", TagLine: "EUW", Platform: "EUW"},
		{Puuid: "", GameName: "skipped"},
	}))
	// Second insert of an existing puuid is ignored.
	require.NoError(t, st.InsertSummoners(ctx, []Summoner{{Puuid: "p-a", GameName: "Renamed"}}))

	byPuuid, err := st.SummonersByPuuids(ctx, []string{"p-a", "p-b", "p-missing", "p-a"})
	require.NoError(t, err)
	require.Len(t, byPuuid, 2)
	require.Equal(t, "Alpha", byPuuid["p-a"].GameName)

	a := byPuuid["p-a"]
	got, err := st.SummonerByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.Puuid, got.Puuid)
	require.False(t, got.UpdatedAt.IsZero())

	byID, err := st.SummonersByIDs(ctx, []int64{a.ID, byPuuid["p-b"].ID, 9999})
	require.NoError(t, err)
	require.Len(t, byID, 2)

	_, err = st.SummonerByID(ctx, 9999)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestParticipantStatsAndEncounters(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	end := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

	rows := []MatchParticipant{
		{MatchID: "m1", SummonerID: 1, ChampionID: 103, QueueID: RankedSoloQueue, Won: true, Kills: 10, Deaths: 2, Assists: 6, MatchEnd: end},
		{MatchID: "m2", SummonerID: 1, ChampionID: 103, QueueID: RankedSoloQueue, Won: false, Kills: 4, Deaths: 6, Assists: 2, MatchEnd: end},
		{MatchID: "m3", SummonerID: 1, ChampionID: 22, QueueID: RankedSoloQueue, Won: true, Kills: 1, Deaths: 1, Assists: 1, MatchEnd: end},
		// Normal games do not count.
		{MatchID: "m4", SummonerID: 1, ChampionID: 103, QueueID: 400, Won: true, Kills: 30, Deaths: 0, Assists: 0, MatchEnd: end},
		{MatchID: "m1", SummonerID: 2, ChampionID: 1, QueueID: RankedSoloQueue, Won: false, MatchEnd: end},
		{MatchID: "m2", SummonerID: 2, ChampionID: 1, QueueID: RankedSoloQueue, Won: true, MatchEnd: end},
		{MatchID: "m4", SummonerID: 3, ChampionID: 7, QueueID: 400, MatchEnd: end},
	}
	n, err := st.InsertMatchParticipants(ctx, rows)
	require.NoError(t, err)
	require.Equal(t, len(rows), n)

	n, err = st.InsertMatchParticipants(ctx, rows[:2])
	require.NoError(t, err)
	require.Zero(t, n, "duplicates are ignored")

	stats, err := st.ParticipantStats(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, stats, 2)

	annie := stats[1][103]
	require.EqualValues(t, 2, annie.Games)
	require.EqualValues(t, 1, annie.Wins)
	require.InDelta(t, 7.0, annie.AvgKills, 1e-9)
	require.InDelta(t, 4.0, annie.AvgDeaths, 1e-9)
	require.InDelta(t, 4.0, annie.AvgAssists, 1e-9)
	require.EqualValues(t, 1, stats[1][22].Games)
	require.EqualValues(t, 2, stats[2][1].Games)

	enc, err := st.EncounterCounts(ctx, 1, []int64{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, map[int64]int64{2: 2, 3: 1}, enc)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mongo"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "none"}, logx.Nop())
	require.ErrorIs(t, err, ErrDisabled)
	_, err = Open(Config{Driver: "postgres"}, logx.Nop())
	require.Error(t, err)
}
