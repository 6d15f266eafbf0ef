package debugserver_test

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/myrjola/fraudalert/internal/debugserver"
	"github.com/myrjola/fraudalert/internal/metrics"
	"github.com/myrjola/fraudalert/internal/testhelpers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestLaunch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.IncrementSessionStarted()

	addr, err := debugserver.Launch(ctx, "127.0.0.1:0", reg, testhelpers.NewLogger(io.Discard))
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/metrics", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "fraudalert_sessions_started_total 1")
}

func TestLaunch_rejectsPublicAddress(t *testing.T) {
	_, err := debugserver.Launch(context.Background(), "0.0.0.0:6060", prometheus.NewRegistry(),
		testhelpers.NewLogger(io.Discard))
	require.ErrorIs(t, err, debugserver.ErrNotLoopback)
}
