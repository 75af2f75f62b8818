package api

import (
	"net/http"

	"research-chat/backend/pkg/errors"
	"research-chat/backend/pkg/jwt"
	"research-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type AdminHandler struct {
	username     string
	passwordHash []byte
	tokens       *jwt.Service
	log          *logger.Logger
}

// NewAdminHandler checks logins against a bcrypt hash. An empty hash
// disables login.
func NewAdminHandler(username, passwordHash string, tokens *jwt.Service, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		username:     username,
		passwordHash: []byte(passwordHash),
		tokens:       tokens,
		log:          log,
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AdminHandler) Login(c *gin.Context) {
	if len(h.passwordHash) == 0 {
		errors.Abort(c, errors.NewError(http.StatusServiceUnavailable, "LOGIN_DISABLED", "Admin login is not configured"))
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.Abort(c, errors.NewBadRequestError("INVALID_REQUEST", err.Error()))
		return
	}

	hashErr := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password))
	if req.Username != h.username || hashErr != nil {
		logger.FromContext(c, h.log).Warn("admin login rejected", "username", req.Username)
		errors.Abort(c, errors.NewUnauthorizedError("INVALID_CREDENTIALS", "Invalid username or password"))
		return
	}

	token, err := h.tokens.GenerateToken(req.Username)
	if err != nil {
		errors.Abort(c, errors.NewInternalServerError("TOKEN_ERROR", "Failed to issue token"))
		return
	}

	logger.FromContext(c, h.log).WithAdmin(req.Username).Info("admin logged in")
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int(h.tokens.Expiry().Seconds()),
	})
}
