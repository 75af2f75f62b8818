package errors

import (
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"research-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"app error", NewNotFoundError("NOT_FOUND", "missing"), http.StatusNotFound, "NOT_FOUND"},
		{"validation", NewValidationError("role", "must not be empty"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"storage", NewStorageError("read", stderrors.New("disk")), http.StatusInternalServerError, "STORAGE_ERROR"},
		{"remote", NewRemoteDeliveryError("redcap", 403, stderrors.New("denied")), http.StatusBadGateway, "REMOTE_DELIVERY_ERROR"},
		{"wrapped validation", wrapped(NewValidationError("content", "must not be empty")), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"plain", stderrors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := FromError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.status, appErr.StatusCode)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, GetStatusCode(tt.err))
		})
	}

	assert.Nil(t, FromError(nil))
	assert.Equal(t, http.StatusOK, GetStatusCode(nil))
}

func wrapped(err error) error {
	return stderrors.Join(stderrors.New("context"), err)
}

func TestKinds(t *testing.T) {
	cause := stderrors.New("timeout")
	remote := NewRemoteDeliveryError("redcap", 0, cause)

	assert.True(t, IsRemoteDelivery(remote))
	assert.False(t, IsStorage(remote))
	assert.ErrorIs(t, remote, cause)
	assert.Equal(t, "remote delivery to redcap failed: timeout", remote.Error())
	assert.Contains(t, NewRemoteDeliveryError("redcap", 500, cause).Error(), "status 500")

	storage := NewStorageError("export", cause)
	assert.True(t, IsStorage(storage))
	assert.ErrorIs(t, storage, cause)

	assert.True(t, IsValidation(NewValidationError("role", "has unknown label x")))
	assert.Equal(t, "missing", GetErrorMessage(NewNotFoundError("NOT_FOUND", "missing")))
	assert.Equal(t, "timeout", GetErrorMessage(cause))
}

func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(logger.Nop()))
	r.GET("/fail", func(c *gin.Context) {
		Abort(c, NewValidationError("filter", "is invalid"))
	})
	r.GET("/written", func(c *gin.Context) {
		_ = c.Error(stderrors.New("ignored"))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":{"code":"VALIDATION_ERROR","message":"validation: filter is invalid","details":{"field":"filter"}}}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RecoveryWithLogger(logger.Nop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "SERVER_ERROR")
}
