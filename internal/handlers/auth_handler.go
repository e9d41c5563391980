package handlers

import (
	"net/http"

	"sms-relay-server/internal/config"
	"sms-relay-server/pkg/logger"
	"sms-relay-server/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler exchanges the configured relay client credentials for a JWT.
type AuthHandler struct {
	cfg *config.Config
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// LoginRequest is the login request body.
type LoginRequest struct {
	ClientID  string `json:"client_id" binding:"required"`
	ClientKey string `json:"client_key" binding:"required"`
}

// Login verifies the client key against the configured bcrypt hash and
// issues a token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ClientID != h.cfg.Auth.ClientID || h.cfg.Auth.ClientKeyHash == "" {
		logger.Warn("login rejected", zap.String("client_id", req.ClientID))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.cfg.Auth.ClientKeyHash), []byte(req.ClientKey)); err != nil {
		logger.Warn("login rejected", zap.String("client_id", req.ClientID))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := middleware.GenerateToken(req.ClientID, h.cfg)
	if err != nil {
		logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(h.cfg.Auth.TokenExpiry.Seconds()),
	})
}
