package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", JSON: true, Output: &buf})

	log.Info("dropped")
	log.Warn("kept")
	log.LogError(errors.New("disk full"), "write failed", "sink", "local")

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "kept", recs[0]["msg"])
	assert.Equal(t, "disk full", recs[1]["error"])
	assert.Equal(t, "local", recs[1]["sink"])
}

func TestContextualLoggers(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", JSON: true, Output: &buf})

	log.WithComponent("redcap_sink").WithRequestID("req-1").WithAdmin("").Debug("forwarded")

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "redcap_sink", recs[0]["component"])
	assert.Equal(t, "req-1", recs[0]["request_id"])
	assert.NotContains(t, recs[0], "admin")
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base := New(Config{Level: "info", JSON: true, Output: &buf})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("requestID", "fixed-id")
		c.Next()
	})
	r.Use(Middleware(base))
	r.GET("/chat", func(c *gin.Context) {
		assert.NotSame(t, base, FromContext(c, base))
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "fixed-id", recs[0]["request_id"])
	assert.EqualValues(t, http.StatusNoContent, recs[0]["status"])
	assert.Equal(t, "/chat", recs[0]["path"])
}

func TestMiddlewareGeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(Nop()))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
