package handlers

import (
	"net/http"
	"strconv"

	"sms-relay-server/internal/models"
	"sms-relay-server/internal/services"
	"sms-relay-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MessageHandler serves the ingestion path and the transport-facing message
// views.
type MessageHandler struct {
	svc *services.MessageService
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(svc *services.MessageService) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// IngestRequest is the ingestion request body. Timestamp is the modem-native
// string; absent or malformed values fall back to the arrival time.
type IngestRequest struct {
	Sender    string `json:"sender" binding:"required"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
	Status    string `json:"status"`
}

// Ingest stores one inbound message; a duplicate within the dedup window
// still reports saved.
func (h *MessageHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dup, err := h.svc.Ingest(c.Request.Context(), req.Sender, req.Timestamp, req.Content, models.MessageStatus(req.Status))
	if err != nil {
		logger.Error("failed to ingest message",
			zap.String("sender", req.Sender),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"saved": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"saved": true, "duplicate": dup})
}

// ListUnverified returns the unverified backlog, oldest first.
func (h *MessageHandler) ListUnverified(c *gin.Context) {
	messages, err := h.svc.ListUnverified(c.Request.Context())
	if err != nil {
		logger.Error("failed to list unverified messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// ListUnsent returns messages the transport has not forwarded yet.
func (h *MessageHandler) ListUnsent(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	messages, err := h.svc.ListUnsent(c.Request.Context(), limit)
	if err != nil {
		logger.Error("failed to list unsent messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// MarkSentRequest names the messages the transport finished forwarding.
type MarkSentRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

// MarkSent flags a batch of messages as forwarded.
func (h *MessageHandler) MarkSent(c *gin.Context) {
	var req MarkSentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.MarkSent(c.Request.Context(), req.IDs); err != nil {
		logger.Error("failed to mark messages sent", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkDeleted records that the message was deleted from the SIM.
func (h *MessageHandler) MarkDeleted(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	if err := h.svc.MarkDeleted(c.Request.Context(), id); err != nil {
		logger.Error("failed to mark message deleted",
			zap.Int64("id", id),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
