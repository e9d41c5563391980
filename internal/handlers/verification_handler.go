package handlers

import (
	"errors"
	"net/http"

	"sms-relay-server/internal/models"
	"sms-relay-server/internal/services"
	"sms-relay-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VerificationHandler serves the claim flow and the verification queries the
// transport uses for display and throttling.
type VerificationHandler struct {
	svc              *services.VerificationService
	maxDailyFailures int
}

// NewVerificationHandler creates a new VerificationHandler.
func NewVerificationHandler(svc *services.VerificationService, maxDailyFailures int) *VerificationHandler {
	return &VerificationHandler{
		svc:              svc,
		maxDailyFailures: maxDailyFailures,
	}
}

// ClaimRequest is a user's claim: "I sent Amount at Date Time". Date is
// DD/MM/YYYY and Time is HH:MM.
type ClaimRequest struct {
	ExternalID string  `json:"external_id" binding:"required"`
	Amount     float64 `json:"amount" binding:"required"`
	Date       string  `json:"date" binding:"required"`
	Time       string  `json:"time" binding:"required"`
}

// Claim resolves a claim against the message corpus and records the outcome.
// A user over the daily failure cap is refused before any matching runs.
func (h *VerificationHandler) Claim(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, err := h.svc.ResolveUser(ctx, req.ExternalID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		logger.Error("failed to resolve user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.maxDailyFailures > 0 {
		failed, err := h.svc.FailedAttemptsToday(ctx, user.ID)
		if err != nil {
			logger.Error("failed to count failed attempts", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if failed >= h.maxDailyFailures {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":           "daily attempt limit reached",
				"failed_attempts": failed,
			})
			return
		}
	}

	msg, err := h.svc.VerifyClaim(ctx, user.ID, req.Amount, req.Date, req.Time)
	if err != nil {
		logger.Error("failed to record claim outcome",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if msg == nil {
		c.JSON(http.StatusOK, gin.H{"verified": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true, "message": msg})
}

// resolve maps the externalID path param to a user, writing the error
// response itself when resolution fails.
func (h *VerificationHandler) resolve(c *gin.Context) (*models.User, bool) {
	user, err := h.svc.ResolveUser(c.Request.Context(), c.Param("externalID"))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return nil, false
		}
		logger.Error("failed to resolve user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return user, true
}

// Stats returns the user's success count and last activity.
func (h *VerificationHandler) Stats(c *gin.Context) {
	user, ok := h.resolve(c)
	if !ok {
		return
	}

	stats, err := h.svc.UserStats(c.Request.Context(), user.ID)
	if err != nil {
		logger.Error("failed to get user stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// History returns the user's full verification history, newest first.
func (h *VerificationHandler) History(c *gin.Context) {
	user, ok := h.resolve(c)
	if !ok {
		return
	}

	history, err := h.svc.HistoryFor(c.Request.Context(), user.ID)
	if err != nil {
		logger.Error("failed to get verification history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// LastSuccess returns the user's most recent successful verification.
func (h *VerificationHandler) LastSuccess(c *gin.Context) {
	user, ok := h.resolve(c)
	if !ok {
		return
	}

	detail, err := h.svc.LastSuccess(c.Request.Context(), user.ID)
	if err != nil {
		logger.Error("failed to get last success", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if detail == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no successful verification"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

// FailedToday returns today's failed attempt count and the configured cap.
func (h *VerificationHandler) FailedToday(c *gin.Context) {
	user, ok := h.resolve(c)
	if !ok {
		return
	}

	failed, err := h.svc.FailedAttemptsToday(c.Request.Context(), user.ID)
	if err != nil {
		logger.Error("failed to count failed attempts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"failed_attempts": failed,
		"daily_limit":     h.maxDailyFailures,
	})
}
