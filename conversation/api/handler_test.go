package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"research-chat/backend/conversation/models"
	"research-chat/backend/conversation/service"
	"research-chat/backend/pkg/errors"
	"research-chat/backend/pkg/jwt"
	"research-chat/backend/pkg/logger"
	"research-chat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeLog struct {
	messages   []models.ChatMessage
	stats      models.Stats
	err        error
	exportPath string
}

func (f *fakeLog) GetConversation(_ context.Context, id string) ([]models.ChatMessage, error) {
	out := []models.ChatMessage{}
	for _, m := range f.messages {
		if m.ConversationID == id {
			out = append(out, m)
		}
	}
	return out, f.err
}

func (f *fakeLog) GetSessionMessages(_ context.Context, id string) ([]models.ChatMessage, error) {
	out := []models.ChatMessage{}
	for _, m := range f.messages {
		if m.SessionID == id {
			out = append(out, m)
		}
	}
	return out, f.err
}

func (f *fakeLog) GetStats(context.Context) (models.Stats, error) { return f.stats, f.err }

func (f *fakeLog) WriteCSV(_ context.Context, w io.Writer, filter string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	_, err := io.WriteString(w, "session_id,conversation_id,message,role,created_at\ns1,c1,hi,user,2025-01-01 09:00:00.000000\n")
	return 1, err
}

func (f *fakeLog) ExportToCSV(_ context.Context, path, _ string) error {
	f.exportPath = path
	return f.err
}

const adminPassword = "correct horse"

func setupRouter(t *testing.T, log ConversationLog) (*gin.Engine, *jwt.Service) {
	t.Helper()
	return setupRouterWithExportDir(t, log, t.TempDir())
}

func setupRouterWithExportDir(t *testing.T, log ConversationLog, exportDir string) (*gin.Engine, *jwt.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := jwt.NewService("test-secret", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.Use(errors.ErrorHandler(logger.Nop()))

	handler := NewMessageHandler(log, exportDir, logger.Nop())
	handler.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	RegisterMessageRoutes(r, handler)
	RegisterAdminRoutes(r,
		NewAdminHandler("admin", string(hash), tokens, logger.Nop()),
		handler,
		middleware.RequireAdmin(tokens, logger.Nop()),
	)
	return r, tokens
}

func request(r http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestConversationMessages(t *testing.T) {
	created := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	r, _ := setupRouter(t, &fakeLog{messages: []models.ChatMessage{
		{SessionID: "s1", ConversationID: "c1", Content: "hi", Role: models.RoleUser, CreatedAt: created},
		{SessionID: "s1", ConversationID: "c2", Content: "other", Role: models.RoleUser, CreatedAt: created},
	}})

	w := request(r, http.MethodGet, "/conversation/c1/messages", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ConversationID string               `json:"conversation_id"`
		Messages       []models.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "c1", body.ConversationID)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "hi", body.Messages[0].Content)

	w = request(r, http.MethodGet, "/conversation/unknown/messages", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"messages":[]`)

	w = request(r, http.MethodGet, "/session/s1/messages", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "other")
}

func TestStorageErrorsMapTo500(t *testing.T) {
	r, _ := setupRouter(t, &fakeLog{err: errors.NewStorageError("read conversation", stderrors.New("disk gone"))})

	w := request(r, http.MethodGet, "/conversation/c1/messages", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "STORAGE_ERROR")
}

func TestAdminLogin(t *testing.T) {
	r, tokens := setupRouter(t, &fakeLog{})

	w := request(r, http.MethodPost, "/admin/login", `{"username":"admin","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(r, http.MethodPost, "/admin/login", `{"username":"root","password":"`+adminPassword+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(r, http.MethodPost, "/admin/login", `{"username":"admin"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodPost, "/admin/login", `{"username":"admin","password":"`+adminPassword+`"}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3600, body.ExpiresIn)

	claims, err := tokens.ValidateToken(body.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
}

func TestLoginDisabledWithoutHash(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens, err := jwt.NewService("s", time.Hour)
	require.NoError(t, err)
	r := gin.New()
	r.Use(errors.ErrorHandler(logger.Nop()))
	RegisterAdminRoutes(r, NewAdminHandler("admin", "", tokens, logger.Nop()), NewMessageHandler(&fakeLog{}, "", logger.Nop()), middleware.RequireAdmin(tokens, logger.Nop()))

	w := request(r, http.MethodPost, "/admin/login", `{"username":"admin","password":"x"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	first := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	r, tokens := setupRouter(t, &fakeLog{stats: models.Stats{TotalMessages: 2, UniqueSessions: 1, UniqueConversations: 1, EarliestMessage: &first, LatestMessage: &first}})

	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/admin/stats", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/admin/export", "", "").Code)

	token, err := tokens.GenerateToken("admin")
	require.NoError(t, err)

	w := request(r, http.MethodGet, "/admin/stats", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_messages":2`)
}

func TestAdminExport(t *testing.T) {
	log := &fakeLog{}
	r, tokens := setupRouter(t, log)
	token, err := tokens.GenerateToken("admin")
	require.NoError(t, err)

	w := request(r, http.MethodGet, "/admin/export?filter=role+%3D%3D+%22user%22", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="chat_logs_20250102_030405.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "1", w.Header().Get("X-Export-Rows"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "session_id,conversation_id,message,role,created_at\n"))

	w = request(r, http.MethodGet, "/admin/export?filter=role+%3D%3D", "", token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_FILTER")

}

func TestAdminExportToFile(t *testing.T) {
	log := &fakeLog{}
	dir := t.TempDir()
	r, tokens := setupRouterWithExportDir(t, log, dir)
	token, err := tokens.GenerateToken("admin")
	require.NoError(t, err)

	w := request(r, http.MethodPost, "/admin/export", `{"path":"daily/out.csv","filter":""}`, token)
	require.Equal(t, http.StatusOK, w.Code)
	want := filepath.Join(dir, "daily", "out.csv")
	assert.Equal(t, want, log.exportPath)
	assert.DirExists(t, filepath.Join(dir, "daily"))
	assert.Contains(t, w.Body.String(), `"status":"success"`)
}

func TestAdminExportToFileRejectsUnsafePaths(t *testing.T) {
	log := &fakeLog{}
	r, tokens := setupRouter(t, log)
	token, err := tokens.GenerateToken("admin")
	require.NoError(t, err)

	for _, path := range []string{"/tmp/out.csv", "../out.csv", "daily/../../out.csv", ""} {
		t.Run(path, func(t *testing.T) {
			body, err := json.Marshal(map[string]string{"path": path})
			require.NoError(t, err)
			w := request(r, http.MethodPost, "/admin/export", string(body), token)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Empty(t, log.exportPath)
}

func TestAdminExportToFileRefusesProtectedFile(t *testing.T) {
	log := &fakeLog{err: errors.NewStorageError("export to chat_logs.db", service.ErrProtectedPath)}
	r, tokens := setupRouter(t, log)
	token, err := tokens.GenerateToken("admin")
	require.NoError(t, err)

	w := request(r, http.MethodPost, "/admin/export", `{"path":"chat_logs.db"}`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_PATH")
}

func TestAdminExportToFileDisabled(t *testing.T) {
	log := &fakeLog{}
	r, tokens := setupRouterWithExportDir(t, log, "")
	token, err := tokens.GenerateToken("admin")
	require.NoError(t, err)

	w := request(r, http.MethodPost, "/admin/export", `{"path":"out.csv"}`, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "EXPORT_DISABLED")
	assert.Empty(t, log.exportPath)
}
