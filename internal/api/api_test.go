package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/slackarchive/internal/config"
	"github.com/edgard/slackarchive/internal/database"
	"github.com/edgard/slackarchive/internal/ingest"
	"github.com/edgard/slackarchive/internal/metrics"
	"github.com/edgard/slackarchive/internal/model"
	"github.com/edgard/slackarchive/internal/timeline"
)

type testServer struct {
	handler http.Handler
	engine  *timeline.Engine
	store   database.Store
}

func newTestServer(t *testing.T, slack config.SlackConfig) testServer {
	t.Helper()
	log := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db, log) })

	store := database.NewStore(db, log)
	m := metrics.New()
	engine := timeline.NewEngine(store, log, m)
	live := ingest.NewLive(engine, store, log, m)
	srv := NewServer(engine, store, live, m, slack, log)
	return testServer{handler: srv.Router(), engine: engine, store: store}
}

func (ts testServer) seed(t *testing.T, channel string, n int) {
	t.Helper()
	ctx := context.Background()
	msgs := make([]model.Message, 0, n)
	for i := 1; i <= n; i++ {
		msgs = append(msgs, model.Message{Channel: channel, TS: float64(i), User: "U1", Text: fmt.Sprintf("message %d", i)})
	}
	_, err := ts.engine.Insert(ctx, timeline.Classify(msgs))
	require.NoError(t, err)
	_, err = ts.engine.AdvanceAll(ctx, channel)
	require.NoError(t, err)
}

func (ts testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return ts.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func TestGetPage(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, config.SlackConfig{})
	srv.seed(t, "C1", 150)

	rec := srv.get(t, "/api/channel/C1/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

	var closed pageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &closed))
	assert.True(t, closed.Closed)
	assert.Len(t, closed.Messages, 100)
	require.NotNil(t, closed.EndTS)
	assert.Equal(t, "100", *closed.EndTS)

	rec = srv.get(t, "/api/channel/C1/2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	var open pageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &open))
	assert.False(t, open.Closed)
	assert.Nil(t, open.EndTS)
	assert.Equal(t, "101", open.StartTS)
	assert.Len(t, open.Messages, 50)
}

func TestGetPageErrors(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, config.SlackConfig{})
	srv.seed(t, "C1", 10)

	tests := []struct {
		path   string
		status int
	}{
		{"/api/channel/C1/2", http.StatusNotFound},
		{"/api/channel/C1/0", http.StatusBadRequest},
		{"/api/channel/C1/abc", http.StatusNotFound},
		{"/api/channel/C9/1", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := srv.get(t, tt.path)
		assert.Equal(t, tt.status, rec.Code, tt.path)
	}
}

func TestResolveTimestamp(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, config.SlackConfig{})
	srv.seed(t, "C1", 250)

	rec := srv.get(t, "/api/ts/C1/205")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body["page"])

	assert.Equal(t, http.StatusBadRequest, srv.get(t, "/api/ts/C1/nope").Code)
	assert.Equal(t, http.StatusNotFound, srv.get(t, "/api/ts/C2/5").Code)
}

func TestListsAndSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := newTestServer(t, config.SlackConfig{})
	srv.seed(t, "C1", 12)
	require.NoError(t, srv.store.UpsertUser(ctx, &model.User{ID: "U1", Name: "amy"}))
	require.NoError(t, srv.store.UpsertChannel(ctx, &model.Channel{ID: "C1", Name: "general"}))

	rec := srv.get(t, "/api/users")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=600", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), `"amy"`)

	rec = srv.get(t, "/api/channels")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"general"`)

	rec = srv.get(t, "/api/search?q=message+11")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=600", rec.Header().Get("Cache-Control"))
	var found []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "message 11", found[0]["text"])

	assert.Equal(t, http.StatusBadRequest, srv.get(t, "/api/search?q=").Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, config.SlackConfig{})

	assert.Equal(t, http.StatusOK, srv.get(t, "/healthz").Code)

	rec := srv.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func slackRequest(t *testing.T, secret string, sent time.Time, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewBufferString(body))
	if secret != "" {
		ts := strconv.FormatInt(sent.Unix(), 10)
		req.Header.Set(slackTimestampHeader, ts)
		req.Header.Set(slackSignatureHeader, signSlackRequest(secret, ts, []byte(body)))
	}
	return req
}

func TestSlackEvents(t *testing.T) {
	t.Parallel()
	const secret = "s3cret"
	srv := newTestServer(t, config.SlackConfig{EventsEnabled: true, SigningSecret: secret, MaxClockSkew: time.Minute})

	rec := srv.do(t, slackRequest(t, secret, time.Now(), `{"type":"url_verification","challenge":"xyz"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"challenge":"xyz"}`, rec.Body.String())

	msg := `{"type":"event_callback","event_id":"Ev1","event":{"type":"message","channel":"C1","user":"U1","text":"live hello","ts":"42.000100"}}`
	rec = srv.do(t, slackRequest(t, secret, time.Now(), msg))
	require.Equal(t, http.StatusOK, rec.Code)

	page := srv.get(t, "/api/channel/C1/1")
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "live hello")

	react := `{"type":"event_callback","event":{"type":"reaction_added","user":"U2","reaction":"tada","item":{"type":"message","channel":"C1","ts":"42.000100"}}}`
	rec = srv.do(t, slackRequest(t, secret, time.Now(), react))
	require.Equal(t, http.StatusOK, rec.Code)

	m, err := srv.store.GetMessage(context.Background(), "C1", 42.0001)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Len(t, m.Reactions, 1)
	assert.Equal(t, "tada", m.Reactions[0].Name)
}

func TestSlackEventsRejectsBadSignature(t *testing.T) {
	t.Parallel()
	const secret = "s3cret"
	srv := newTestServer(t, config.SlackConfig{EventsEnabled: true, SigningSecret: secret, MaxClockSkew: time.Minute})
	body := `{"type":"url_verification","challenge":"xyz"}`

	assert.Equal(t, http.StatusUnauthorized, srv.do(t, slackRequest(t, "wrong", time.Now(), body)).Code)
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, slackRequest(t, secret, time.Now().Add(-time.Hour), body)).Code)
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, slackRequest(t, "", time.Now(), body)).Code)
}

func TestSlackEventsDisabled(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, config.SlackConfig{})

	rec := srv.do(t, slackRequest(t, "", time.Now(), `{"type":"url_verification","challenge":"xyz"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifySlackSignature(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"a":1}`)
	h := http.Header{}
	h.Set(slackTimestampHeader, "1700000000")
	h.Set(slackSignatureHeader, signSlackRequest("k", "1700000000", body))

	require.NoError(t, verifySlackSignature("k", h, body, now, time.Minute))
	require.Error(t, verifySlackSignature("k", h, []byte(`{"a":2}`), now, time.Minute))
	require.Error(t, verifySlackSignature("k", h, body, now.Add(2*time.Minute), time.Minute))
}
