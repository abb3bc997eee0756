package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"ruche/internal/config"
	"ruche/internal/httpapi"
	"ruche/internal/livegame"
	"ruche/internal/riot"
	"ruche/internal/sse"
	"ruche/internal/storage"
	"ruche/internal/task/scheduler"
	logx "ruche/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Format:  cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		path := strings.TrimSpace(sc.Path)
		if path == "" {
			path = "./data/ruche.db"
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "postgres", "postgresql":
		if strings.TrimSpace(sc.DSN) == "" {
			return storage.Config{}, errors.New("storage.dsn is required when storage.driver=postgres")
		}
		return storage.Config{Driver: "postgres", DSN: strings.TrimSpace(sc.DSN)}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapRiotConfig(cfg *config.Config) (riot.Config, error) {
	timeout, err := config.ParseDurationOrDefault("riot.timeout", cfg.Riot.Timeout, 3*time.Second)
	if err != nil {
		return riot.Config{}, err
	}
	return riot.Config{
		APIKey:     strings.TrimSpace(cfg.Riot.APIKey),
		RatePerSec: cfg.Riot.RatePerSec,
		Burst:      cfg.Riot.Burst,
		Timeout:    timeout,
		BaseURL:    strings.TrimSpace(cfg.Riot.BaseURL),
	}, nil
}

func mapPollerConfig(cfg *config.Config) (livegame.Config, error) {
	timeout, err := config.ParseDurationOrDefault("live_game.lookup_timeout", cfg.LiveGame.LookupTimeout, 3*time.Second)
	if err != nil {
		return livegame.Config{}, err
	}
	return livegame.Config{
		Concurrency:   cfg.LiveGame.LookupConcurrency,
		LookupTimeout: timeout,
	}, nil
}

func mapServerConfig(cfg *config.Config) (httpapi.ServerConfig, error) {
	rht, err := config.ParseDurationOrDefault("http.read_header_timeout", cfg.HTTP.ReadHeaderTimeout, 5*time.Second)
	if err != nil {
		return httpapi.ServerConfig{}, err
	}
	st, err := config.ParseDurationOrDefault("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout, 5*time.Second)
	if err != nil {
		return httpapi.ServerConfig{}, err
	}
	return httpapi.ServerConfig{
		Addr:              strings.TrimSpace(cfg.HTTP.Addr),
		ReadHeaderTimeout: rht,
		ShutdownTimeout:   st,
	}, nil
}

type sseSettings struct {
	stream   httpapi.StreamConfig
	capacity int
	grace    time.Duration
}

func mapSSEConfig(cfg *config.Config) (sseSettings, error) {
	var (
		out sseSettings
		err error
	)
	if out.stream.Debounce, err = config.ParseDurationAtLeast("sse.debounce", cfg.SSE.Debounce, sse.DefaultDebounce, 10*time.Millisecond); err != nil {
		return out, err
	}
	if out.stream.KeepAlive, err = config.ParseDurationOrDefault("sse.keep_alive", cfg.SSE.KeepAlive, sse.DefaultKeepAlive); err != nil {
		return out, err
	}
	if out.stream.Retry, err = config.ParseDurationOrDefault("sse.retry", cfg.SSE.Retry, sse.RetryMillis*time.Millisecond); err != nil {
		return out, err
	}
	if out.grace, err = config.ParseDurationOrDefault("sse.cleanup_grace", cfg.SSE.CleanupGrace, sse.DefaultGrace); err != nil {
		return out, err
	}
	out.capacity = cfg.SSE.TopicCapacity
	if out.capacity <= 0 {
		out.capacity = sse.DefaultCapacity
	}
	return out, nil
}

type schedules struct {
	poll    cron.Schedule
	sweep   cron.Schedule
	cleanup cron.Schedule
	noneTTL time.Duration
}

func mapSchedules(cfg *config.Config) (schedules, error) {
	var (
		out schedules
		err error
	)
	if out.poll, err = scheduler.ParseCronSchedule(cfg.LiveGame.PollSchedule, 5*time.Second); err != nil {
		return out, fmt.Errorf("live_game.poll_schedule: %w", err)
	}
	if out.sweep, err = scheduler.ParseCronSchedule(cfg.LiveGame.SweepSchedule, 30*time.Second); err != nil {
		return out, fmt.Errorf("live_game.sweep_schedule: %w", err)
	}
	if out.cleanup, err = scheduler.ParseCronSchedule(cfg.SSE.CleanupSchedule, 10*time.Second); err != nil {
		return out, fmt.Errorf("sse.cleanup_schedule: %w", err)
	}
	if out.noneTTL, err = config.ParseDurationOrDefault("live_game.none_ttl", cfg.LiveGame.NoneTTL, livegame.DefaultNoneTTL); err != nil {
		return out, err
	}
	return out, nil
}

// validateConfig is the hot-reload gate: field checks plus every mapping
// the app would run on restart.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	var errs []error
	if _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapRiotConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapPollerConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapServerConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapSSEConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapSchedules(cfg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
