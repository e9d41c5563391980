package handlers

import (
	"net/http"

	"sms-relay-server/internal/services"
	"sms-relay-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserHandler serves the user directory.
type UserHandler struct {
	svc *services.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc *services.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// Upsert registers a user on first contact or refreshes the contact fields.
func (h *UserHandler) Upsert(c *gin.Context) {
	var params services.UpsertUserParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if params.ExternalID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "external_id is required"})
		return
	}

	user, err := h.svc.Upsert(c.Request.Context(), params)
	if err != nil {
		logger.Error("failed to upsert user",
			zap.String("external_id", params.ExternalID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user)
}

// Get looks a user up by external id.
func (h *UserHandler) Get(c *gin.Context) {
	externalID := c.Param("externalID")

	user, err := h.svc.GetByExternalID(c.Request.Context(), externalID)
	if err != nil {
		logger.Error("failed to get user",
			zap.String("external_id", externalID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}
