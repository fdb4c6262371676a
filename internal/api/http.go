package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/provider"
	"pix-settlement-bridge/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const webhookSecretHeader = "X-Webhook-Secret"

// SecretSource returns the shared webhook secret; empty disables the check
type SecretSource interface {
	WebhookSecret(ctx context.Context) (string, error)
}

// Server exposes the health check, the provider webhook and the cleanup admin routes
type Server struct {
	service *PaymentService
	secrets SecretSource
	router  *gin.Engine
}

type webhookRequest struct {
	Id     string `json:"id" binding:"required"`
	Status string `json:"status"`
}

func NewServer(service *PaymentService, secrets SecretSource) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		service: service,
		secrets: secrets,
		router:  router,
	}

	router.GET("/healthz", s.handleHealth)
	router.POST("/webhooks/provider", s.handleWebhook)

	admin := router.Group("/admin")
	{
		admin.GET("/cleanup/stats", s.handleCleanupStats)
		admin.POST("/cleanup/run", s.handleCleanupRun)
	}

	return s
}

// Handler returns the router for use in an http.Server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.service.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleWebhook treats the notification as a hint only: the payload status is
// ignored and the provider is polled for the deposit it names.
func (s *Server) handleWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	secret, err := s.secrets.WebhookSecret(ctx)
	if err != nil {
		zap.L().Error("Failed to read webhook secret", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook secret unavailable"})
		return
	}
	if secret != "" {
		given := c.GetHeader(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			zap.L().Warn("Rejected webhook with bad secret", zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
	}

	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	zap.L().Info("Provider notification received",
		zap.String("external_id", req.Id),
		zap.String("claimed_status", req.Status))

	result, err := s.service.HandleProviderHint(ctx, req.Id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (s *Server) handleCleanupStats(c *gin.Context) {
	stats, err := s.service.CleanupStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleCleanupRun(c *gin.Context) {
	result, err := s.service.RunCleanup(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// writeError maps domain errors onto HTTP status codes
func writeError(c *gin.Context, err error) {
	var limitErr *models.LimitExceededError
	status := http.StatusInternalServerError
	switch {
	case models.IsValidationError(err):
		status = http.StatusBadRequest
	case errors.As(err, &limitErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ratelimit.ErrDailyQuotaExceeded), errors.Is(err, provider.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, provider.ErrAuthFailure), errors.Is(err, provider.ErrUnavailable),
		errors.Is(err, provider.ErrForbidden), errors.Is(err, provider.ErrGeneric):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
