package config

type Config struct {
	Env      string         `json:"env,omitempty"`
	HTTP     HTTPConfig     `json:"http"`
	Logging  LoggingConfig  `json:"logging"`
	Riot     RiotConfig     `json:"riot"`
	Storage  StorageConfig  `json:"storage"`
	LiveGame LiveGameConfig `json:"live_game"`
	SSE      SSEConfig      `json:"sse"`
}

// HTTPConfig controls the public listener.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type HTTPConfig struct {
	Addr              string `json:"addr"`
	ReadHeaderTimeout string `json:"read_header_timeout,omitempty"`
	ShutdownTimeout   string `json:"shutdown_timeout,omitempty"`
	// Pprof mounts net/http/pprof under /debug on the public listener.
	Pprof bool `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty"` // pretty | json
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// RiotConfig controls the spectator API client.
//
// The API key is a secret: prefer RIOT_API_KEY over the config file and never
// log it.
type RiotConfig struct {
	APIKey     string `json:"api_key,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Burst      int    `json:"burst,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	// BaseURL replaces https://{platform}.api.riotgames.com (tests, proxies).
	BaseURL string `json:"base_url,omitempty"`
}

// StorageConfig selects the summoner store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/ruche.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://..." }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// LiveGameConfig controls the live-game poller and cache.
//
// Schedules accept anything scheduler.ParseSchedule does ("5s", "@every 5s",
// "*/5 * * * * *").
type LiveGameConfig struct {
	PollSchedule      string `json:"poll_schedule,omitempty"`
	LookupConcurrency int    `json:"lookup_concurrency,omitempty"`
	LookupTimeout     string `json:"lookup_timeout,omitempty"`
	NoneTTL           string `json:"none_ttl,omitempty"`
	SweepSchedule     string `json:"sweep_schedule,omitempty"`
}

type SSEConfig struct {
	Debounce        string `json:"debounce,omitempty"`
	KeepAlive       string `json:"keep_alive,omitempty"`
	Retry           string `json:"retry,omitempty"`
	TopicCapacity   int    `json:"topic_capacity,omitempty"`
	CleanupSchedule string `json:"cleanup_schedule,omitempty"`
	CleanupGrace    string `json:"cleanup_grace,omitempty"`
}
