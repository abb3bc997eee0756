package config

import (
	"reflect"
	"sort"
	"strings"

	logx "ruche/pkg/logx"
)

// SummarizeConfigChange returns the sorted list of changed sections and safe
// structured attrs for logging. Secrets (API key, DSN) are reported only as
// "set" booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs, logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)))
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Riot (never log the key)
	oR, nR := oldCfg.Riot, newCfg.Riot
	if oR.RatePerSec != nR.RatePerSec || oR.Burst != nR.Burst ||
		strings.TrimSpace(oR.Timeout) != strings.TrimSpace(nR.Timeout) ||
		strings.TrimSpace(oR.BaseURL) != strings.TrimSpace(nR.BaseURL) ||
		oR.APIKey != nR.APIKey {
		changed = append(changed, "riot")
		attrs = append(attrs,
			logx.Int("riot.rate_per_sec", nR.RatePerSec),
			logx.Int("riot.burst", nR.Burst),
			logx.String("riot.timeout", strings.TrimSpace(nR.Timeout)),
			logx.Bool("riot.api_key_set", strings.TrimSpace(nR.APIKey) != ""),
		)
	}

	// Storage (never log the DSN)
	oS, nS := oldCfg.Storage, newCfg.Storage
	if !strings.EqualFold(strings.TrimSpace(oS.Driver), strings.TrimSpace(nS.Driver)) ||
		strings.TrimSpace(oS.Path) != strings.TrimSpace(nS.Path) ||
		oS.DSN != nS.DSN ||
		strings.TrimSpace(oS.BusyTimeout) != strings.TrimSpace(nS.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(nS.DSN) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.LiveGame, newCfg.LiveGame) {
		changed = append(changed, "live_game")
		attrs = append(attrs,
			logx.String("live_game.poll_schedule", newCfg.LiveGame.PollSchedule),
			logx.Int("live_game.lookup_concurrency", newCfg.LiveGame.LookupConcurrency),
			logx.String("live_game.lookup_timeout", newCfg.LiveGame.LookupTimeout),
		)
	}

	if !reflect.DeepEqual(oldCfg.SSE, newCfg.SSE) {
		changed = append(changed, "sse")
		attrs = append(attrs,
			logx.String("sse.debounce", newCfg.SSE.Debounce),
			logx.Int("sse.topic_capacity", newCfg.SSE.TopicCapacity),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
