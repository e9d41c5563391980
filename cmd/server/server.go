package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sms-relay-server/internal/config"
	"sms-relay-server/internal/db"
	"sms-relay-server/internal/handlers"
	"sms-relay-server/internal/services"
	"sms-relay-server/pkg/logger"
	"sms-relay-server/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const version = "1.0.0"

// maxRequestBody caps ingestion payloads; SMS content is small.
const maxRequestBody = 64 * 1024

// SetupServer initializes the storage layer, services and routes, and
// returns a configured HTTP server.
func SetupServer(cfg *config.Config) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if cfg.Server.Port <= 0 {
		return nil, errors.New("invalid server port")
	}

	database, err := db.NewDatabase(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	messageRepo := db.NewMessageRepository(database)
	userRepo := db.NewUserRepository(database)
	verificationRepo := db.NewVerificationRepository(database)

	messageService := services.NewMessageService(messageRepo)
	userService := services.NewUserService(userRepo)
	verificationService := services.NewVerificationService(
		verificationRepo, messageRepo, userRepo, cfg.Verification.MarginMinutes)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.AuditLogMiddleware())
	router.Use(middleware.RequestSizeLimitMiddleware(maxRequestBody))

	setupRoutes(router, cfg, messageService, userService, verificationService)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

// setupRoutes configures all the HTTP routes.
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	messageService *services.MessageService,
	userService *services.UserService,
	verificationService *services.VerificationService,
) {
	authHandler := handlers.NewAuthHandler(cfg)
	messageHandler := handlers.NewMessageHandler(messageService)
	userHandler := handlers.NewUserHandler(userService)
	verificationHandler := handlers.NewVerificationHandler(
		verificationService, cfg.Verification.MaxDailyFailures)

	router.GET("/health", handleHealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/login", authHandler.Login)
	}

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(cfg))
	{
		protected.POST("/sms", messageHandler.Ingest)
		protected.GET("/sms/unverified", messageHandler.ListUnverified)
		protected.GET("/sms/unsent", messageHandler.ListUnsent)
		protected.POST("/sms/sent", messageHandler.MarkSent)
		protected.POST("/sms/:id/deleted", messageHandler.MarkDeleted)

		protected.PUT("/users", userHandler.Upsert)
		protected.GET("/users/:externalID", userHandler.Get)
		protected.GET("/users/:externalID/stats", verificationHandler.Stats)
		protected.GET("/users/:externalID/history", verificationHandler.History)
		protected.GET("/users/:externalID/last-success", verificationHandler.LastSuccess)
		protected.GET("/users/:externalID/failed-today", verificationHandler.FailedToday)

		protected.POST("/verifications", verificationHandler.Claim)
	}
}

// handleHealthCheck handles the health check endpoint.
func handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now().UTC(),
		"version": version,
		"service": "sms-relay-server",
	})
}

// StartServer starts the HTTP server and handles graceful shutdown.
func StartServer(srv *http.Server) error {
	go func() {
		logger.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
