package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "ruche/pkg/logx"
)

// Validate checks field-level constraints that do not need any component to
// be constructed. Schedules are validated by the app mapping layer.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "pretty", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: want pretty or json, got %q", cfg.Logging.Format))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
	case "postgres", "postgresql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required when storage.driver=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	if cfg.Riot.RatePerSec < 0 || cfg.Riot.Burst < 0 {
		errs = append(errs, errors.New("riot.rate_per_sec and riot.burst must be >= 0"))
	}
	if cfg.LiveGame.LookupConcurrency < 0 {
		errs = append(errs, errors.New("live_game.lookup_concurrency must be >= 0"))
	}
	if cfg.SSE.TopicCapacity < 0 {
		errs = append(errs, errors.New("sse.topic_capacity must be >= 0"))
	}

	durations := []struct{ path, raw string }{
		{"http.read_header_timeout", cfg.HTTP.ReadHeaderTimeout},
		{"http.shutdown_timeout", cfg.HTTP.ShutdownTimeout},
		{"riot.timeout", cfg.Riot.Timeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"live_game.lookup_timeout", cfg.LiveGame.LookupTimeout},
		{"live_game.none_ttl", cfg.LiveGame.NoneTTL},
		{"sse.keep_alive", cfg.SSE.KeepAlive},
		{"sse.retry", cfg.SSE.Retry},
		{"sse.cleanup_grace", cfg.SSE.CleanupGrace},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := ParseDurationAtLeast("sse.debounce", cfg.SSE.Debounce, 500*time.Millisecond, 10*time.Millisecond); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
