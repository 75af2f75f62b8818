package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"research-chat/backend/pkg/logger"
	"research-chat/backend/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T, now func() time.Time) (*gin.Engine, session.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := session.NewMemoryStore(now)
	r := gin.New()
	RegisterSessionRoutes(r, NewSessionHandler(store, 24*time.Hour, logger.Nop()))
	return r, store
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetSessionAndConversation(t *testing.T) {
	r, store := setupRouter(t, nil)
	ctx := context.Background()
	_, err := store.InitSession(ctx, "s1", "start")
	require.NoError(t, err)
	_, err = store.InitConversation(ctx, "c1", "s1", "start")
	require.NoError(t, err)
	require.NoError(t, store.AddExchange(ctx, "c1", "s1", "hi", "hello"))

	w := do(r, http.MethodGet, "/session/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sess session.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, 1, sess.MessageCount)
	assert.Equal(t, []string{"c1"}, sess.Conversations)

	w = do(r, http.MethodGet, "/conversation/c1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var conv session.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hello", conv.Messages[0].AIResponse)
}

func TestUnknownIDsAreNotFound(t *testing.T) {
	r, _ := setupRouter(t, nil)

	w := do(r, http.MethodGet, "/session/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Session not found"}`, w.Body.String())

	w = do(r, http.MethodGet, "/conversation/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Conversation not found"}`, w.Body.String())
}

func TestCleanup(t *testing.T) {
	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r, store := setupRouter(t, clock)
	ctx := context.Background()

	_, err := store.InitSession(ctx, "old", "")
	require.NoError(t, err)
	now = now.Add(3 * time.Hour)
	_, err = store.InitSession(ctx, "new", "")
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/cleanup", `{"max_age_hours": 2}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status          string        `json:"status"`
		CleanedSessions int           `json:"cleaned_sessions"`
		RemainingStats  session.Stats `json:"remaining_stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, 1, body.CleanedSessions)
	assert.Equal(t, 1, body.RemainingStats.TotalSessions)

	// default max age keeps the remaining session
	w = do(r, http.MethodPost, "/cleanup", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cleaned_sessions":0`)

	w = do(r, http.MethodPost, "/cleanup", `{"max_age_hours": -1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
