package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct{ status HealthStatus }

func (f fakeProvider) Status() HealthStatus { return f.status }

func unixClient(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return (&net.Dialer{}).DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

func TestHealthServer_HealthzOkThenShuttingDown(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "daemon.sock")
	h := NewHealthServer(socketPath, "test", fakeProvider{}, NewMetrics(), nil)
	require.NoError(t, h.Start())
	defer h.Close(context.Background())

	client := unixClient(socketPath)

	resp, err := client.Get("http://unix/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	h.SetShuttingDown(true)
	resp2, err := client.Get("http://unix/healthz")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func TestHealthServer_StatusReflectsProvider(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "daemon.sock")
	provider := fakeProvider{status: HealthStatus{Status: StatusUnhealthy, Version: "v1"}}
	h := NewHealthServer(socketPath, "test", provider, NewMetrics(), nil)
	require.NoError(t, h.Start())
	defer h.Close(context.Background())

	client := unixClient(socketPath)
	resp, err := client.Get("http://unix/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var got HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, StatusUnhealthy, got.Status)
	assert.Equal(t, "v1", got.Version)
}

func TestHealthServer_StaleSocketIsUnlinkedOnStart(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "daemon.sock")
	stale, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	stale.Close() // leaves the socket file on disk without a live listener

	h := NewHealthServer(socketPath, "test", fakeProvider{}, NewMetrics(), nil)
	require.NoError(t, h.Start())
	defer h.Close(context.Background())

	client := unixClient(socketPath)
	resp, err := client.Get("http://unix/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthServer_CloseUnlinksSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "daemon.sock")
	h := NewHealthServer(socketPath, "test", fakeProvider{}, NewMetrics(), nil)
	require.NoError(t, h.Start())
	require.NoError(t, h.Close(context.Background()))

	_, err := net.Dial("unix", socketPath)
	assert.Error(t, err)
}

func TestMetrics_ObservePollRecordsWithoutPanic(t *testing.T) {
	m := NewMetrics()
	assert.NotPanics(t, func() {
		m.ObservePoll(0.05, 2, 1, 0, 0)
	})
}
