package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbot/internal/bus"
	"modbot/internal/metrics"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func health(t *testing.T, h http.Handler) HealthResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth_TracksPlatforms(t *testing.T) {
	status := NewStatus()
	s := New(Config{Version: "1.2.3", Status: status, Logger: quiet()})
	h := s.Handler()

	resp := health(t, h)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Empty(t, resp.Platforms)

	b := bus.New(quiet())
	status.Track("discord", b)
	assert.Equal(t, "degraded", health(t, h).Status)

	require.NoError(t, b.Trigger(context.Background(), bus.ReadyEvent{Platform: "discord", User: "modbot"}))
	resp = health(t, h)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Platforms, 1)
	assert.Equal(t, "modbot", resp.Platforms[0].User)

	require.NoError(t, b.Trigger(context.Background(), bus.ErrorEvent{Platform: "discord", Err: errors.New("gateway closed")}))
	resp = health(t, h)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "gateway closed", resp.Platforms[0].LastError)
}

func TestStatus_SnapshotSorted(t *testing.T) {
	status := NewStatus()
	status.Track("telegram", bus.New(quiet()))
	status.Track("discord", bus.New(quiet()))

	snap := status.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "discord", snap[0].Name)
	assert.Equal(t, "telegram", snap[1].Name)
}

func TestHandler_OptionalRoutes(t *testing.T) {
	bare := New(Config{Logger: quiet()}).Handler()
	for _, path := range []string{"/metrics", "/events"} {
		rec := httptest.NewRecorder()
		bare.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	feed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	full := New(Config{Metrics: metrics.New(), Feed: feed, Logger: quiet()}).Handler()

	rec := httptest.NewRecorder()
	full.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "modbot_uptime_seconds")

	rec = httptest.NewRecorder()
	full.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(Config{Logger: quiet()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestRun_BadAddr(t *testing.T) {
	err := New(Config{Addr: "256.0.0.1:bogus", Logger: quiet()}).Run(context.Background())
	assert.ErrorContains(t, err, "listen")
}
