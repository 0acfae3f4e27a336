// infrastructure/gin_handlers.go
package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
	"github.com/vitovidale/autosplit-service/usecase"
)

type WebhookProcessor interface {
	Execute(ctx context.Context, envelope domain.WebhookEnvelope) ([]usecase.EventResult, error)
}

type WebhookHandlers struct {
	Processor   WebhookProcessor
	VerifyToken string
	Logger      *zap.Logger
}

func NewWebhookHandlers(processor WebhookProcessor, verifyToken string, logger *zap.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		Processor:   processor,
		VerifyToken: verifyToken,
		Logger:      logger.Named("WebhookHandlers"),
	}
}

// VerifyHandler answers the platform's subscription handshake.
func (h *WebhookHandlers) VerifyHandler(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || challenge == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing hub.mode or hub.challenge"})
		return
	}
	if token != h.VerifyToken {
		h.Logger.Warn("Webhook verification with wrong token", zap.String("ip", c.ClientIP()))
		c.Status(http.StatusForbidden)
		return
	}
	h.Logger.Info("Webhook verified")
	c.String(http.StatusOK, challenge)
}

func (h *WebhookHandlers) EventHandler(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	var envelope domain.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid JSON body: %v", err)})
		return
	}
	if envelope.Object != domain.WebhookObjectInstagram {
		h.Logger.Warn("Unrecognized webhook object", zap.String("object", envelope.Object))
		c.String(http.StatusNotFound, "unrecognized POST to webhook")
		return
	}

	results, err := h.Processor.Execute(c.Request.Context(), envelope)
	recordWebhookResults(results)
	if err != nil {
		h.Logger.Error("Webhook events failed", zap.Int("events", len(results)), zap.Error(err))
	}
	c.String(http.StatusOK, "EVENT_RECEIVED")
}

type JobLister interface {
	Execute(ctx context.Context, userID string) ([]domain.VideoJob, error)
	Get(ctx context.Context, userID, jobID string) (*domain.VideoJob, error)
}

type JobHandlers struct {
	Jobs   JobLister
	Files  domain.FileStore
	Logger *zap.Logger
}

func NewJobHandlers(jobs JobLister, files domain.FileStore, logger *zap.Logger) *JobHandlers {
	return &JobHandlers{Jobs: jobs, Files: files, Logger: logger.Named("JobHandlers")}
}

func (h *JobHandlers) ListJobsHandler(c *gin.Context) {
	userID := c.GetString(contextUserID)
	jobs, err := h.Jobs.Execute(c.Request.Context(), userID)
	if err != nil {
		h.Logger.Error("List jobs failed", zap.String("userID", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *JobHandlers) GetJobHandler(c *gin.Context) {
	userID := c.GetString(contextUserID)
	job, err := h.Jobs.Get(c.Request.Context(), userID, c.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if err != nil {
		h.Logger.Error("Get job failed", zap.String("jobID", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// OutputHandler serves a finished output file. Job ids are uuids, which
// keeps the path inside the outputs directory.
func (h *JobHandlers) OutputHandler(c *gin.Context) {
	jobID := c.Param("jobID")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Output not found"})
		return
	}
	path := h.Files.OutputPath(jobID)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Output not found"})
		return
	}
	c.Header("Content-Type", "video/mp4")
	c.File(path)
}

// HealthCheck pings every dependency and reports UP only when all answer.
func HealthCheck(checks map[string]func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{}
		healthy := true
		for name, check := range checks {
			status := "connected"
			if err := check(c.Request.Context()); err != nil {
				status = fmt.Sprintf("error: %v", err)
				healthy = false
			}
			body[name] = status
		}
		if !healthy {
			body["status"] = "DOWN"
			c.JSON(http.StatusInternalServerError, body)
			return
		}
		body["status"] = "UP"
		c.JSON(http.StatusOK, body)
	}
}
