package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"finqueue/internal/binding"
	"finqueue/internal/config"
	"finqueue/internal/database"
	"finqueue/internal/deadletter"
	"finqueue/internal/events"
	"finqueue/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	calls atomic.Int32
}

func (s *fakeSyncer) SyncNow(context.Context) error {
	s.calls.Add(1)
	return nil
}

type fakeNetwork struct {
	online atomic.Bool
}

func (n *fakeNetwork) IsOnline() bool { return n.online.Load() }

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Port: 0},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: "rw-key", Name: "test", Permissions: []string{"read:queue", "write:queue"}},
				{Key: "ro-key", Name: "reader", Permissions: []string{"read:queue"}},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 1000, Burst: 1000},
	}
}

func newTestServer(t *testing.T, cfg config.APIConfig) (*HTTPServer, *database.DB) {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := events.NewBus()
	b, err := binding.New(context.Background(), db, &fakeSyncer{}, &fakeNetwork{}, bus, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)

	return NewHTTPServer(cfg, b, deadletter.NewMemoryStore(), nil), db
}

func doRequest(t *testing.T, srv *HTTPServer, method, path, apiKey string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthzSkipsAuth(t *testing.T) {
	srv, _ := newTestServer(t, testAPIConfig())

	rec := doRequest(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t, testAPIConfig())

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/status", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/status", "ro-key", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWritePermissionEnforced(t *testing.T) {
	srv, _ := newTestServer(t, testAPIConfig())

	body := []byte(`{"type":"social-post","payload":{"checkin_id":"c1","location_slug":"edgewood","content":"hi"}}`)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/queue", "ro-key", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/queue", "rw-key", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestEnqueueAndList(t *testing.T) {
	srv, _ := newTestServer(t, testAPIConfig())

	body := []byte(`{"type":"dj-tip","payload":{"from_checkin_id":"c1","location_slug":"edgewood","amount":5}}`)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/queue", "rw-key", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.QueueEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, models.EntryStatusPending, created.Status)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/queue", "ro-key", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Entries []models.QueueEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Entries, 1)
	assert.Equal(t, created.ID, listed.Entries[0].ID)
}

func TestEnqueueRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, testAPIConfig())

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/queue", "rw-key", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/queue", "rw-key", []byte(`{"type":"social-post"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/queue", "rw-key",
		[]byte(`{"type":"unknown","payload":{"a":1}}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteEntry(t *testing.T) {
	srv, db := newTestServer(t, testAPIConfig())

	entry := &models.QueueEntry{Type: models.TypeSocialPost,
		Payload: json.RawMessage(`{"checkin_id":"c1","location_slug":"e","content":"x"}`)}
	require.NoError(t, db.InsertEntry(context.Background(), entry))

	rec := doRequest(t, srv, http.MethodDelete, fmt.Sprintf("/api/v1/queue/%d", entry.ID), "rw-key", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// deletion of a missing entry is benign
	rec = doRequest(t, srv, http.MethodDelete, fmt.Sprintf("/api/v1/queue/%d", entry.ID), "rw-key", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/queue/abc", "rw-key", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetryEntry(t *testing.T) {
	srv, db := newTestServer(t, testAPIConfig())
	ctx := context.Background()

	entry := &models.QueueEntry{Type: models.TypeDJTip,
		Payload: json.RawMessage(`{"from_checkin_id":"c1","location_slug":"e","amount":1}`)}
	require.NoError(t, db.InsertEntry(ctx, entry))
	for i := 0; i < models.MaxRetries; i++ {
		require.NoError(t, db.MarkEntryFailed(ctx, entry.ID, "HTTP 500", nil))
	}

	rec := doRequest(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/queue/%d/retry", entry.ID), "rw-key", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := db.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPending, got.Status)
	assert.Equal(t, 0, got.Retries)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/queue/99999/retry", "rw-key", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusAndSync(t *testing.T) {
	srv, _ := newTestServer(t, testAPIConfig())

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/status", "ro-key", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap binding.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 0, snap.PendingCount)
	assert.Equal(t, models.SyncStatusIdle, snap.SyncStatus)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/sync", "rw-key", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeadLetterList(t *testing.T) {
	srv, _ := newTestServer(t, testAPIConfig())

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/deadletter", "ro-key", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Entries []models.QueueEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Empty(t, listed.Entries)
}

func TestRateLimit(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 1, Burst: 2}
	srv, _ := newTestServer(t, cfg)

	codes := make(map[int]int)
	for i := 0; i < 5; i++ {
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/status", "ro-key", nil)
		codes[rec.Code]++
	}
	assert.Equal(t, 2, codes[http.StatusOK])
	assert.Equal(t, 3, codes[http.StatusTooManyRequests])
}

func TestAuthDisabledAllowsAnonymous(t *testing.T) {
	cfg := testAPIConfig()
	cfg.Auth.Enabled = false
	srv, _ := newTestServer(t, cfg)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/status", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
