package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"research-chat/backend/pkg/config"
	"research-chat/backend/pkg/di"
	"research-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("CHATLOG_LOCAL_PATH", filepath.Join(t.TempDir(), "chat_logs.db"))
	t.Setenv("LLM_API_KEY", "")

	cfg, err := config.Load(config.Options{})
	require.NoError(t, err)

	container, err := di.New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	r := New(container)
	r.SetupRoutes()
	return r
}

func serve(r *Router, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestChatWithoutProviderIsBadGateway(t *testing.T) {
	r := setupRouter(t)

	w := serve(r, http.MethodPost, "/chat", `{"message":"hi","session":{"sessionId":"s1"},"conversation":{"conversationId":"c1"}}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "llm provider not configured")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	// the session was still tracked
	w = serve(r, http.MethodGet, "/session/s1", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChatBodyIsValidated(t *testing.T) {
	r := setupRouter(t)

	w := serve(r, http.MethodPost, "/chat", `{"message":["not","a","string"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid request")
}

func TestHealthAndMetrics(t *testing.T) {
	r := setupRouter(t)
	r.Container.Health.RunChecks(context.Background())

	w := serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "local_sink")

	w = serve(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodGet, "/api/docs/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")
}

func TestAdminRoutesNeedToken(t *testing.T) {
	r := setupRouter(t)

	w := serve(r, http.MethodGet, "/admin/stats", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// no password hash configured
	w = serve(r, http.MethodPost, "/admin/login", `{"username":"admin","password":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := setupRouter(t)

	w := serve(r, http.MethodOptions, "/chat", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
