package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "ruche/pkg/logx"
)

func TestServerRunsUntilCanceled(t *testing.T) {
	var shutdownHooked atomic.Bool
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second},
		http.HandlerFunc(healthz), func() { shutdownHooked.Store(true) }, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, 5*time.Millisecond)
	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	// Shutdown runs its hooks on their own goroutines.
	require.Eventually(t, shutdownHooked.Load, time.Second, 5*time.Millisecond)
}

func TestServerListenError(t *testing.T) {
	srv := NewServer(ServerConfig{Addr: "256.0.0.1:bad"}, http.NotFoundHandler(), nil, logx.Nop())
	require.Error(t, srv.Run(context.Background()))
}
