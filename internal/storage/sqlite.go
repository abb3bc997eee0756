package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "ruche/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const summonerColumns = `id, puuid, game_name, tag_line, platform, summoner_level, profile_icon_id, updated_at`

func scanSummoner(row interface{ Scan(...any) error }) (Summoner, error) {
	var (
		s  Summoner
		ms int64
	)
	if err := row.Scan(&s.ID, &s.Puuid, &s.GameName, &s.TagLine, &s.Platform, &s.SummonerLevel, &s.ProfileIcon, &ms); err != nil {
		return Summoner{}, err
	}
	if ms > 0 {
		s.UpdatedAt = time.UnixMilli(ms)
	}
	return s, nil
}

func (s *sqliteStore) SummonerByID(ctx context.Context, id int64) (Summoner, error) {
	if s == nil || s.db == nil {
		return Summoner{}, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+summonerColumns+` FROM summoners WHERE id = ?`, id)
	sm, err := scanSummoner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Summoner{}, ErrNotFound
	}
	return sm, err
}

func (s *sqliteStore) SummonersByIDs(ctx context.Context, ids []int64) (map[int64]Summoner, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	ids = uniqueIDs(ids)
	out := make(map[int64]Summoner, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summonerColumns+` FROM summoners WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		sm, err := scanSummoner(rows)
		if err != nil {
			return nil, err
		}
		out[sm.ID] = sm
	}
	return out, rows.Err()
}

func (s *sqliteStore) SummonersByPuuids(ctx context.Context, puuids []string) (map[string]Summoner, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	puuids = uniqueStrings(puuids)
	out := make(map[string]Summoner, len(puuids))
	if len(puuids) == 0 {
		return out, nil
	}
	args := make([]any, len(puuids))
	for i, p := range puuids {
		args[i] = p
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summonerColumns+` FROM summoners WHERE puuid IN (`+placeholders(len(puuids))+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		sm, err := scanSummoner(rows)
		if err != nil {
			return nil, err
		}
		out[sm.Puuid] = sm
	}
	return out, rows.Err()
}

func (s *sqliteStore) InsertSummoners(ctx context.Context, in []Summoner) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if len(in) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO summoners(puuid, game_name, tag_line, platform, summoner_level, profile_icon_id, updated_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(puuid) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, sm := range in {
		if strings.TrimSpace(sm.Puuid) == "" {
			continue
		}
		at := sm.UpdatedAt
		if at.IsZero() {
			at = now
		}
		if _, err := stmt.ExecContext(ctx, sm.Puuid, sm.GameName, sm.TagLine, sm.Platform, sm.SummonerLevel, sm.ProfileIcon, at.UnixMilli()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ParticipantStats(ctx context.Context, summonerIDs []int64) (ParticipantStats, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	ids := uniqueIDs(summonerIDs)
	out := ParticipantStats{}
	if len(ids) == 0 {
		return out, nil
	}
	args := append(int64Args(ids), RankedSoloQueue)
	rows, err := s.db.QueryContext(ctx,
		`SELECT summoner_id, champion_id, COUNT(*),
		        SUM(CASE WHEN won THEN 1 ELSE 0 END),
		        AVG(kills), AVG(deaths), AVG(assists)
		 FROM lol_match_participants
		 WHERE summoner_id IN (`+placeholders(len(ids))+`) AND queue_id = ?
		 GROUP BY summoner_id, champion_id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			summonerID int64
			cs         ChampionStats
		)
		if err := rows.Scan(&summonerID, &cs.ChampionID, &cs.Games, &cs.Wins, &cs.AvgKills, &cs.AvgDeaths, &cs.AvgAssists); err != nil {
			return nil, err
		}
		out.add(summonerID, cs)
	}
	return out, rows.Err()
}

func (s *sqliteStore) EncounterCounts(ctx context.Context, viewer int64, others []int64) (map[int64]int64, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	ids := uniqueIDs(others)
	out := make(map[int64]int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := append([]any{viewer}, int64Args(ids)...)
	args = append(args, viewer)
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.summoner_id, COUNT(DISTINCT a.match_id)
		 FROM lol_match_participants a
		 JOIN lol_match_participants b ON a.match_id = b.match_id
		 WHERE a.summoner_id = ? AND b.summoner_id IN (`+placeholders(len(ids))+`) AND b.summoner_id <> ?
		 GROUP BY b.summoner_id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (s *sqliteStore) InsertMatchParticipants(ctx context.Context, in []MatchParticipant) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	if len(in) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO lol_match_participants(match_id, summoner_id, champion_id, queue_id, won, kills, deaths, assists, match_end)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(match_id, summoner_id) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, p := range in {
		res, err := stmt.ExecContext(ctx, p.MatchID, p.SummonerID, p.ChampionID, p.QueueID, p.Won, p.Kills, p.Deaths, p.Assists, p.MatchEnd.UnixMilli())
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
