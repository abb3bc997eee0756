package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/require"

	"ruche/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testConfig(t *testing.T, riotURL, extra string) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "ruche.db")
	return writeConfig(t, fmt.Sprintf(`
http:
  addr: "127.0.0.1:0"
logging:
  level: error
riot:
  api_key: test-key
  base_url: %q
storage:
  driver: sqlite
  path: %q
live_game:
  poll_schedule: "20ms"
%s`, riotURL, db, extra))
}

func scrape(addr string) (map[string]float64, error) {
	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, err
	}
	out := map[string]float64{}
	for name, mf := range mfs {
		for _, m := range mf.GetMetric() {
			key := name
			for _, l := range m.GetLabel() {
				key += "|" + l.GetValue()
			}
			out[key] = m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
	}
	return out, nil
}

func TestAppServesAndStops(t *testing.T) {
	riotSrv := httptest.NewServer(http.NotFoundHandler())
	defer riotSrv.Close()

	a, err := NewApp(testConfig(t, riotSrv.URL, ""))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	require.Error(t, a.Start(ctx), "second start")

	require.Eventually(t, func() bool { return a.server.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	addr := a.server.Addr()

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/sse/match_updated/EUW/1")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "empty store knows no summoner")

	require.Eventually(t, func() bool {
		m, err := scrape(addr)
		return err == nil && m["ruche_job_runs_total|"+jobPoll] >= 2
	}, 3*time.Second, 20*time.Millisecond)

	m, err := scrape(addr)
	require.NoError(t, err)
	require.Contains(t, m, "ruche_job_runs_total|"+jobSweep)
	require.Contains(t, m, "ruche_sse_topics")
	require.Contains(t, m, "ruche_goroutine_active|http")
	require.Zero(t, m["ruche_job_failures_total|"+jobPoll])

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopAppStop))

	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
	require.NoError(t, a.Err())
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"schedule": "  sweep_schedule: \"cron:not a cron\"\n",
		"duration": "  lookup_timeout: \"3 seconds\"\n",
	}
	for name, extra := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewApp(testConfig(t, "http://127.0.0.1:1", extra))
			require.Error(t, err)
		})
	}
}

func TestValidateConfigMappings(t *testing.T) {
	cfg := &config.Config{}
	require.NoError(t, validateConfig(context.Background(), cfg))

	cfg.SSE.CleanupSchedule = "every:nope"
	err := validateConfig(context.Background(), cfg)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "sse.cleanup_schedule"), err.Error())

	cfg = &config.Config{}
	cfg.Storage.Driver = "postgres"
	require.Error(t, validateConfig(context.Background(), cfg))
}

func TestLatestCoalescesBurst(t *testing.T) {
	sub := make(chan *config.Config, 4)
	a, b, c := &config.Config{Env: "a"}, &config.Config{Env: "b"}, &config.Config{Env: "c"}
	sub <- b
	sub <- nil
	sub <- c
	require.Same(t, c, latest(sub, a))
	require.Same(t, a, latest(sub, a))
}
