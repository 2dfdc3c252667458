package api

import (
	"errors"
	"net/http"
	"strings"

	"escalafin-messaging/internal/models"
	"escalafin-messaging/internal/scheduler"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ScheduleHandler struct {
	queue   *scheduler.Queue
	sweeper *scheduler.Sweeper
	log     *zap.Logger
}

func NewScheduleHandler(queue *scheduler.Queue, sweeper *scheduler.Sweeper, log *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{queue: queue, sweeper: sweeper, log: log}
}

func (h *ScheduleHandler) List(c *gin.Context) {
	status := models.ScheduleStatus(strings.ToUpper(c.Query("status")))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	limit, offset := page(c)
	messages, err := h.queue.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if messages == nil {
		messages = []models.ScheduledMessage{}
	}
	c.JSON(http.StatusOK, messages)
}

func (h *ScheduleHandler) Create(c *gin.Context) {
	var req scheduler.NewMessage
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Recurrence = models.Recurrence(strings.ToUpper(string(req.Recurrence)))
	msg, err := h.queue.Schedule(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ScheduleHandler) Cancel(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	msg, err := h.queue.Cancel(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, scheduler.ErrNotPending) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "scheduled_message": msg})
			return
		}
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Sweep runs one sweep synchronously, for external triggers.
func (h *ScheduleHandler) Sweep(c *gin.Context) {
	report, err := h.sweeper.Run(c.Request.Context())
	if errors.Is(err, scheduler.ErrSweepRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	purged, err := h.sweeper.PurgeExpired(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "purged_messages": purged})
}
