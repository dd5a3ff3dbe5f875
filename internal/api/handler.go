// internal/api/handler.go
// Package api is the HTTP control surface for the discovery agent: start,
// stop, trigger, status, counter reset and a server-sent status stream.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trenddrop-agent/internal/agent/scheduler"
	"trenddrop-agent/internal/agent/status"
	"trenddrop-agent/internal/common/logger"
	"trenddrop-agent/internal/models"
)

// Handler holds dependencies for the control endpoints.
type Handler struct {
	sched *scheduler.Scheduler
	bcast *status.Broadcaster
	log   logger.Logger
}

func NewHandler(sched *scheduler.Scheduler, bcast *status.Broadcaster, log logger.Logger) *Handler {
	return &Handler{
		sched: sched,
		bcast: bcast,
		log:   log.With(map[string]interface{}{"component": "api"}),
	}
}

// HealthCheck returns the health status of the service.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "trenddrop-agent",
		"version": "1.0.0",
	})
}

type triggerRequest struct {
	TargetCount int `json:"targetCount"`
}

// StartAgent arms the scheduler. Starting an already running agent is a
// no-op and still returns the current status.
func (h *Handler) StartAgent(c *gin.Context) {
	h.sched.Start(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"message": "agent started",
		"status":  models.NewStatusEvent(h.sched.Status()),
	})
}

// StopAgent disarms the scheduler. The in-flight item, if any, completes.
func (h *Handler) StopAgent(c *gin.Context) {
	h.sched.Stop()
	c.JSON(http.StatusOK, gin.H{
		"message": "agent stopped",
		"status":  models.NewStatusEvent(h.sched.Status()),
	})
}

// TriggerScraping runs one out-of-band batch. Valid only while running.
func (h *Handler) TriggerScraping(c *gin.Context) {
	var req triggerRequest
	// Body is optional; an empty or invalid body falls back to defaults.
	_ = c.ShouldBindJSON(&req)

	if err := h.sched.TriggerNow(c.Request.Context(), req.TargetCount); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": "scraping triggered",
		"status":  models.NewStatusEvent(h.sched.Status()),
	})
}

// GetStatus returns the current agent status snapshot.
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, models.NewStatusEvent(h.sched.Status()))
}

// ResetCounter zeroes the products-found counter.
func (h *Handler) ResetCounter(c *gin.Context) {
	h.sched.ResetCounter()
	c.JSON(http.StatusOK, gin.H{
		"message": "counter reset",
		"status":  models.NewStatusEvent(h.sched.Status()),
	})
}
