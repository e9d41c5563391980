package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"sms-relay-server/internal/config"
	"sms-relay-server/internal/db"
	"sms-relay-server/internal/models"
	"sms-relay-server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// handlerFixture wires real services over a temporary database behind a gin
// router carrying the same routes the server registers, minus auth.
type handlerFixture struct {
	cfg      *config.Config
	database *db.Database
	messages db.MessageRepository
	users    db.UserRepository
	ledger   db.VerificationRepository
	router   *gin.Engine
}

func setupHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	database := db.SetupTestDB(t)

	f := &handlerFixture{
		cfg:      cfg,
		database: database,
		messages: db.NewMessageRepository(database),
		users:    db.NewUserRepository(database),
		ledger:   db.NewVerificationRepository(database),
	}

	messageSvc := services.NewMessageService(f.messages)
	userSvc := services.NewUserService(f.users)
	verificationSvc := services.NewVerificationService(f.ledger, f.messages, f.users, cfg.Verification.MarginMinutes)

	messageHandler := NewMessageHandler(messageSvc)
	userHandler := NewUserHandler(userSvc)
	verificationHandler := NewVerificationHandler(verificationSvc, cfg.Verification.MaxDailyFailures)
	authHandler := NewAuthHandler(cfg)

	router := gin.New()
	router.POST("/api/auth/login", authHandler.Login)
	router.POST("/api/sms", messageHandler.Ingest)
	router.GET("/api/sms/unverified", messageHandler.ListUnverified)
	router.GET("/api/sms/unsent", messageHandler.ListUnsent)
	router.POST("/api/sms/sent", messageHandler.MarkSent)
	router.POST("/api/sms/:id/deleted", messageHandler.MarkDeleted)
	router.PUT("/api/users", userHandler.Upsert)
	router.GET("/api/users/:externalID", userHandler.Get)
	router.GET("/api/users/:externalID/stats", verificationHandler.Stats)
	router.GET("/api/users/:externalID/history", verificationHandler.History)
	router.GET("/api/users/:externalID/last-success", verificationHandler.LastSuccess)
	router.GET("/api/users/:externalID/failed-today", verificationHandler.FailedToday)
	router.POST("/api/verifications", verificationHandler.Claim)
	f.router = router

	return f
}

func (f *handlerFixture) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func (f *handlerFixture) seedUser(t *testing.T, externalID string) *models.User {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.users.Upsert(ctx, &models.User{
		ExternalID: externalID,
		CreatedAt:  "2024-06-15 08:00:00",
	}))
	user, err := f.users.GetByExternalID(ctx, externalID)
	require.NoError(t, err)
	return user
}

func (f *handlerFixture) seedMessage(t *testing.T, sender, receivedDate, content string) *models.Message {
	t.Helper()
	msg := &models.Message{
		Status:       models.StatusReceivedUnread,
		Sender:       sender,
		ReceivedDate: receivedDate,
		Content:      content,
		CreatedAt:    receivedDate,
	}
	require.NoError(t, f.messages.Insert(context.Background(), msg))
	return msg
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, w.Code, "body: %s", w.Body.String())
}
