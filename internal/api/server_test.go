package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/prewarm/internal/config"
	"github.com/ternarybob/prewarm/pkg/readiness"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	return NewServer(cfg, NewHub(), "test")
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	rec := get(t, newTestServer(t), "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleVersion(t *testing.T) {
	rec := get(t, newTestServer(t), "/version")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"version":"test"}`, rec.Body.String())
}

func TestHandleStatus_TracksRun(t *testing.T) {
	s := newTestServer(t)

	s.SetPhase("polling")
	s.SetStatus(readiness.Status{Started: true, Indexing: true, UnitCount: 42})

	var snap Snapshot
	rec := get(t, s, "/status")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))

	assert.Equal(t, "polling", snap.Phase)
	assert.True(t, snap.Status.Indexing)
	assert.Equal(t, 42, snap.Status.UnitCount)
	assert.Nil(t, snap.Ready)

	s.SetOutcome(readiness.PollOutcome{Ready: true, Elapsed: 90 * time.Second})

	rec = get(t, s, "/status")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))

	require.NotNil(t, snap.Ready)
	assert.True(t, *snap.Ready)
	assert.Equal(t, "finished", snap.Phase)
	assert.Equal(t, int64(90000), snap.ElapsedMS)
}

func TestHandleHistory(t *testing.T) {
	s := newTestServer(t)
	s.SetPhase("editor")
	s.SetPhase("browser")

	var events []Event
	rec := get(t, s, "/history")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))

	require.Len(t, events, 2)
	assert.Equal(t, EventStepStarted, events[0].Type)
	assert.Equal(t, "editor", events[0].Data["phase"])
}

func TestHandleIndex_ServesEmbeddedPage(t *testing.T) {
	rec := get(t, newTestServer(t), "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "prewarm")
}

func TestHandleEvents_StreamsSSE(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.Handler().ServeHTTP(rec, req)
		close(done)
	}()

	// Give the handler a moment to subscribe before emitting.
	time.Sleep(50 * time.Millisecond)
	s.SetStatus(readiness.Status{Started: true})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "data: "), "SSE frames start with a data field")
	assert.Contains(t, body, string(EventStatusChanged))
}
