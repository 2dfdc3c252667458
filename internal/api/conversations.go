package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"escalafin-messaging/internal/conversation"
	"escalafin-messaging/internal/models"
	"escalafin-messaging/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ConversationHandler struct {
	store   *conversation.Store
	gateway *whatsapp.Gateway
	log     *zap.Logger
}

func NewConversationHandler(store *conversation.Store, gateway *whatsapp.Gateway, log *zap.Logger) *ConversationHandler {
	return &ConversationHandler{store: store, gateway: gateway, log: log}
}

// ListConversations supports ?status=, ?assigned_to=, ?client_id=, ?limit= and ?offset=.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	var f conversation.Filter
	if status := strings.ToUpper(c.Query("status")); status != "" {
		f.Status = models.ConversationStatus(status)
		if !f.Status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be ACTIVE or RESOLVED"})
			return
		}
	}
	var err error
	if f.AssignedToID, err = optionalUint(c.Query("assigned_to")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assigned_to"})
		return
	}
	if f.ClientID, err = optionalUint(c.Query("client_id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client_id"})
		return
	}
	f.Limit, f.Offset = page(c)

	conversations, total, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"data": conversations, "total": total})
}

func (h *ConversationHandler) GetConversation(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	conv, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conv, ok := h.load(c)
	if !ok {
		return
	}
	limit, offset := page(c)
	messages, err := h.store.ListMessages(c.Request.Context(), conv.ID, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if messages == nil {
		messages = []models.ConversationMessage{}
	}
	c.JSON(http.StatusOK, messages)
}

// ExportMessages streams the full conversation as CSV.
func (h *ConversationHandler) ExportMessages(c *gin.Context) {
	conv, ok := h.load(c)
	if !ok {
		return
	}
	messages, err := h.store.AllMessages(c.Request.Context(), conv.ID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=conversation-%d.csv", conv.ID))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "created_at", "direction", "type", "status", "category", "content", "media_url"})
	for _, m := range messages {
		_ = w.Write([]string{
			strconv.FormatUint(uint64(m.ID), 10),
			m.CreatedAt.Format(time.RFC3339),
			string(m.Direction),
			string(m.MessageType),
			string(m.Status),
			string(m.Category),
			m.Content,
			m.MediaURL,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.log.Warn("csv export interrupted", zap.Uint("conversation_id", conv.ID), zap.Error(err))
	}
}

type ReplyRequest struct {
	Content  string `json:"content"`
	MediaURL string `json:"media_url"`
	SentBy   *uint  `json:"sent_by"`
}

// Reply sends a staff message. Replies to a resolved conversation open a new one.
func (h *ConversationHandler) Reply(c *gin.Context) {
	conv, ok := h.load(c)
	if !ok {
		return
	}
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	to := whatsapp.Recipient{ClientID: conv.ClientID, Phone: conv.Phone}
	if conv.Status == models.ConversationActive {
		to.ConversationID = conv.ID
	}
	refs := whatsapp.Refs{SentBy: req.SentBy}

	var (
		msg *models.ConversationMessage
		err error
	)
	if req.MediaURL != "" {
		msg, err = h.gateway.SendMedia(c.Request.Context(), whatsapp.MediaRequest{
			Recipient: to, Refs: refs, MediaURL: req.MediaURL, Caption: req.Content, Category: models.CategoryManual,
		})
	} else {
		msg, err = h.gateway.SendText(c.Request.Context(), whatsapp.TextRequest{
			Recipient: to, Refs: refs, Text: req.Content, Category: models.CategoryManual,
		})
	}
	if err != nil {
		status := statusFor(err)
		h.log.Warn("staff reply failed", zap.Uint("conversation_id", conv.ID), zap.Error(err))
		c.JSON(status, gin.H{"error": err.Error(), "message": msg})
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ConversationHandler) Close(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	conv, err := h.store.Close(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) Assign(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	var req struct {
		UserID uint `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conv, err := h.store.Assign(c.Request.Context(), id, req.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) load(c *gin.Context) (*models.Conversation, bool) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, h.log, err)
		return nil, false
	}
	conv, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return nil, false
	}
	return conv, true
}

func optionalUint(raw string) (*uint, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	v := uint(n)
	return &v, nil
}
