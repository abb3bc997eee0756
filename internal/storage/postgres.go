package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	logx "ruche/pkg/logx"
)

type summonerRow struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	Puuid         string `gorm:"uniqueIndex;not null"`
	GameName      string `gorm:"not null;default:''"`
	TagLine       string `gorm:"not null;default:''"`
	Platform      string `gorm:"not null;default:''"`
	SummonerLevel int64  `gorm:"not null;default:0"`
	ProfileIconID int64  `gorm:"not null;default:0"`
	UpdatedAt     time.Time
}

func (summonerRow) TableName() string { return "summoners" }

func (r summonerRow) toSummoner() Summoner {
	return Summoner{
		ID:            r.ID,
		Puuid:         r.Puuid,
		GameName:      r.GameName,
		TagLine:       r.TagLine,
		Platform:      r.Platform,
		SummonerLevel: r.SummonerLevel,
		ProfileIcon:   r.ProfileIconID,
		UpdatedAt:     r.UpdatedAt,
	}
}

type participantRow struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	MatchID    string `gorm:"not null;uniqueIndex:uq_lmp_match_summoner;index:idx_lmp_match"`
	SummonerID int64  `gorm:"not null;uniqueIndex:uq_lmp_match_summoner;index:idx_lmp_summoner"`
	ChampionID int64  `gorm:"not null"`
	QueueID    int64  `gorm:"not null;index:idx_lmp_summoner"`
	Won        bool   `gorm:"not null;default:false"`
	Kills      int64  `gorm:"not null;default:0"`
	Deaths     int64  `gorm:"not null;default:0"`
	Assists    int64  `gorm:"not null;default:0"`
	MatchEnd   time.Time
}

func (participantRow) TableName() string { return "lol_match_participants" }

type postgresStore struct {
	db  *gorm.DB
	log logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&summonerRow{}, &participantRow{}); err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	log.Debug("postgres store opened")
	return &postgresStore{db: db, log: log}, nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *postgresStore) SummonerByID(ctx context.Context, id int64) (Summoner, error) {
	var row summonerRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Summoner{}, ErrNotFound
	}
	if err != nil {
		return Summoner{}, err
	}
	return row.toSummoner(), nil
}

func (s *postgresStore) SummonersByIDs(ctx context.Context, ids []int64) (map[int64]Summoner, error) {
	ids = uniqueIDs(ids)
	out := make(map[int64]Summoner, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []summonerRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r.toSummoner()
	}
	return out, nil
}

func (s *postgresStore) SummonersByPuuids(ctx context.Context, puuids []string) (map[string]Summoner, error) {
	puuids = uniqueStrings(puuids)
	out := make(map[string]Summoner, len(puuids))
	if len(puuids) == 0 {
		return out, nil
	}
	var rows []summonerRow
	if err := s.db.WithContext(ctx).Where("puuid IN ?", puuids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.Puuid] = r.toSummoner()
	}
	return out, nil
}

func (s *postgresStore) InsertSummoners(ctx context.Context, in []Summoner) error {
	rows := make([]summonerRow, 0, len(in))
	now := time.Now()
	for _, sm := range in {
		if strings.TrimSpace(sm.Puuid) == "" {
			continue
		}
		at := sm.UpdatedAt
		if at.IsZero() {
			at = now
		}
		rows = append(rows, summonerRow{
			Puuid:         sm.Puuid,
			GameName:      sm.GameName,
			TagLine:       sm.TagLine,
			Platform:      sm.Platform,
			SummonerLevel: sm.SummonerLevel,
			ProfileIconID: sm.ProfileIcon,
			UpdatedAt:     at,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "puuid"}}, DoNothing: true}).
		Create(&rows).Error
}

func (s *postgresStore) ParticipantStats(ctx context.Context, summonerIDs []int64) (ParticipantStats, error) {
	ids := uniqueIDs(summonerIDs)
	out := ParticipantStats{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		SummonerID int64
		ChampionID int64
		Games      int64
		Wins       int64
		AvgKills   float64
		AvgDeaths  float64
		AvgAssists float64
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT summoner_id, champion_id,
		        COUNT(*) AS games,
		        SUM(CASE WHEN won THEN 1 ELSE 0 END) AS wins,
		        AVG(kills)::float8 AS avg_kills,
		        AVG(deaths)::float8 AS avg_deaths,
		        AVG(assists)::float8 AS avg_assists
		 FROM lol_match_participants
		 WHERE summoner_id IN ? AND queue_id = ?
		 GROUP BY summoner_id, champion_id`,
		ids, RankedSoloQueue,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out.add(r.SummonerID, ChampionStats{
			ChampionID: r.ChampionID,
			Games:      r.Games,
			Wins:       r.Wins,
			AvgKills:   r.AvgKills,
			AvgDeaths:  r.AvgDeaths,
			AvgAssists: r.AvgAssists,
		})
	}
	return out, nil
}

func (s *postgresStore) EncounterCounts(ctx context.Context, viewer int64, others []int64) (map[int64]int64, error) {
	ids := uniqueIDs(others)
	out := make(map[int64]int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		SummonerID int64
		Encounters int64
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT b.summoner_id, COUNT(DISTINCT a.match_id) AS encounters
		 FROM lol_match_participants a
		 JOIN lol_match_participants b ON a.match_id = b.match_id
		 WHERE a.summoner_id = ? AND b.summoner_id IN ? AND b.summoner_id <> ?
		 GROUP BY b.summoner_id`,
		viewer, ids, viewer,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.SummonerID] = r.Encounters
	}
	return out, nil
}

func (s *postgresStore) InsertMatchParticipants(ctx context.Context, in []MatchParticipant) (int, error) {
	if len(in) == 0 {
		return 0, nil
	}
	rows := make([]participantRow, 0, len(in))
	for _, p := range in {
		rows = append(rows, participantRow{
			MatchID:    p.MatchID,
			SummonerID: p.SummonerID,
			ChampionID: p.ChampionID,
			QueueID:    p.QueueID,
			Won:        p.Won,
			Kills:      p.Kills,
			Deaths:     p.Deaths,
			Assists:    p.Assists,
			MatchEnd:   p.MatchEnd,
		})
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "match_id"}, {Name: "summoner_id"}}, DoNothing: true}).
		Create(&rows)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
