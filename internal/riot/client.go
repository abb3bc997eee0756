package riot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	logx "ruche/pkg/logx"
)

var (
	ErrRateLimited = errors.New("riot: rate limited")
	ErrUpstream    = errors.New("riot: upstream error")
	ErrNoAPIKey    = errors.New("riot: api key is not configured")
)

const defaultBaseURL = "https://{platform}.api.riotgames.com"

// maxBody caps how much of a response is read; active-game payloads are a
// few KiB.
const maxBody = 1 << 20

type Config struct {
	APIKey     string
	RatePerSec int
	Burst      int
	// Timeout bounds one request including the limiter wait.
	Timeout time.Duration
	// BaseURL may contain a "{platform}" placeholder replaced by the
	// lowercased platform route.
	BaseURL    string
	HTTPClient *http.Client
}

type Stats struct {
	Requests    uint64
	Found       uint64
	NotFound    uint64
	Failures    uint64
	RateLimited uint64
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	requests    atomic.Uint64
	found       atomic.Uint64
	notFound    atomic.Uint64
	failures    atomic.Uint64
	rateLimited atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 15
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RatePerSec
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:     cfg,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:     log,
	}, nil
}

func (c *Client) Stats() Stats {
	return Stats{
		Requests:    c.requests.Load(),
		Found:       c.found.Load(),
		NotFound:    c.notFound.Load(),
		Failures:    c.failures.Load(),
		RateLimited: c.rateLimited.Load(),
	}
}

func (c *Client) endpoint(p Platform, path string) string {
	base := strings.TrimRight(strings.ReplaceAll(c.cfg.BaseURL, "{platform}", p.Host()), "/")
	return base + path
}

// CurrentGame returns the match the player is in, or (nil, nil) when the
// player is not in a game.
func (c *Client) CurrentGame(ctx context.Context, p Platform, puuid string) (*CurrentGame, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("riot: invalid platform %d", p)
	}
	puuid = strings.TrimSpace(puuid)
	if puuid == "" {
		return nil, errors.New("riot: empty puuid")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		c.failures.Add(1)
		return nil, fmt.Errorf("riot: limiter: %w", err)
	}

	u := c.endpoint(p, "/lol/spectator/v5/active-games/by-summoner/"+url.PathEscape(puuid))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Riot-Token", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	c.requests.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		c.failures.Add(1)
		return nil, fmt.Errorf("riot: active game: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		drain(resp.Body)
		c.notFound.Add(1)
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		drain(resp.Body)
		c.rateLimited.Add(1)
		c.log.Warn("riot rate limited",
			logx.String("platform", p.String()),
			logx.String("retry_after", resp.Header.Get("Retry-After")),
		)
		return nil, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		drain(resp.Body)
		c.failures.Add(1)
		return nil, fmt.Errorf("%w: active game status %d", ErrUpstream, resp.StatusCode)
	}

	var info currentGameInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&info); err != nil {
		c.failures.Add(1)
		return nil, fmt.Errorf("%w: decode active game: %v", ErrUpstream, err)
	}
	if info.PlatformID == "" {
		info.PlatformID = p.Route()
	}
	c.found.Add(1)
	return info.toGame(), nil
}

// drain reads what is left of an unused body so the connection can be reused.
func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxBody))
}
