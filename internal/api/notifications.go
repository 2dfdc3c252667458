package api

import (
	"net/http"

	"escalafin-messaging/internal/notification"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	dispatcher *notification.Dispatcher
	log        *zap.Logger
}

func NewNotificationHandler(dispatcher *notification.Dispatcher, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher, log: log}
}

type PaymentReceivedRequest struct {
	ClientID uint `json:"client_id" binding:"required"`
	notification.PaymentReceived
}

type PaymentReminderRequest struct {
	ClientID uint `json:"client_id" binding:"required"`
	notification.PaymentReminder
}

type LoanApprovedRequest struct {
	ClientID uint `json:"client_id" binding:"required"`
	notification.LoanApproved
}

type CustomRequest struct {
	ClientID uint `json:"client_id" binding:"required"`
	notification.Custom
}

type BroadcastRequest struct {
	ClientIDs []uint `json:"client_ids" binding:"required,min=1"`
	notification.Custom
}

func (h *NotificationHandler) PaymentReceived(c *gin.Context) {
	var req PaymentReceivedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	delivery, err := h.dispatcher.PaymentReceived(c.Request.Context(), req.ClientID, req.PaymentReceived)
	h.respond(c, delivery, err)
}

func (h *NotificationHandler) PaymentReminder(c *gin.Context) {
	var req PaymentReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	delivery, err := h.dispatcher.PaymentReminder(c.Request.Context(), req.ClientID, req.PaymentReminder)
	h.respond(c, delivery, err)
}

func (h *NotificationHandler) LoanApproved(c *gin.Context) {
	var req LoanApprovedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	delivery, err := h.dispatcher.LoanApproved(c.Request.Context(), req.ClientID, req.LoanApproved)
	h.respond(c, delivery, err)
}

func (h *NotificationHandler) Custom(c *gin.Context) {
	var req CustomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	delivery, err := h.dispatcher.Custom(c.Request.Context(), req.ClientID, req.Custom)
	h.respond(c, delivery, err)
}

// Broadcast sends one custom message to many clients and reports per-client outcomes.
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Message == "" && req.MediaURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message or media_url is required"})
		return
	}

	results := h.dispatcher.Broadcast(c.Request.Context(), req.ClientIDs, req.Custom)
	counts := map[string]int{
		notification.BroadcastSent:    0,
		notification.BroadcastSkipped: 0,
		notification.BroadcastFailed:  0,
	}
	for _, r := range results {
		counts[r.Status]++
	}
	h.log.Info("broadcast processed",
		zap.Int("total", len(results)),
		zap.Int("sent", counts[notification.BroadcastSent]),
		zap.Int("failed", counts[notification.BroadcastFailed]),
	)

	c.JSON(http.StatusOK, gin.H{
		"status":  "Broadcast processed",
		"total":   len(results),
		"sent":    counts[notification.BroadcastSent],
		"skipped": counts[notification.BroadcastSkipped],
		"failed":  counts[notification.BroadcastFailed],
		"results": results,
	})
}

// respond answers 200 for sent or skipped deliveries. A failed send keeps the FAILED
// message in the body next to the error.
func (h *NotificationHandler) respond(c *gin.Context, delivery *notification.Delivery, err error) {
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
			h.log.Error("notification failed", zap.Error(err))
		}
		body := gin.H{"error": err.Error()}
		if delivery != nil && delivery.Message != nil {
			body["message"] = delivery.Message
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, delivery)
}
