package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"escalafin-messaging/internal/automation"
	"escalafin-messaging/internal/conversation"
	"escalafin-messaging/internal/models"
	"escalafin-messaging/internal/whatsapp"
	"escalafin-messaging/pkg/metrics"
	dto "escalafin-messaging/pkg/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Conversations is the store surface inbound processing needs.
type Conversations interface {
	SeenInbound(ctx context.Context, externalID string) (bool, error)
	GetOrCreate(ctx context.Context, phone string) (*models.Conversation, *models.Client, error)
	AppendMessage(ctx context.Context, in conversation.AppendInput) (*models.ConversationMessage, error)
}

// Matcher picks an auto-response for inbound text.
type Matcher interface {
	Match(ctx context.Context, in automation.MatchInput) (string, bool)
}

// Replier sends the auto-response.
type Replier interface {
	SendText(ctx context.Context, req whatsapp.TextRequest) (*models.ConversationMessage, error)
}

type Handler struct {
	store   Conversations
	matcher Matcher
	replier Replier
	token   string
	log     *zap.Logger
}

// NewHandler builds the inbound webhook handler. An empty token disables the
// shared-secret check.
func NewHandler(store Conversations, matcher Matcher, replier Replier, token string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{store: store, matcher: matcher, replier: replier, token: token, log: log.Named("webhook")}
}

func (h *Handler) authorized(c *gin.Context) bool {
	if h.token == "" {
		return true
	}
	got := c.Query("token")
	if got == "" {
		got = c.GetHeader("X-Webhook-Token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

// HandleMessage stores an inbound message and, for text, sends the matching
// chatbot reply. Messages from unknown numbers are acknowledged and dropped.
func (h *Handler) HandleMessage(c *gin.Context) {
	if !h.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
		return
	}

	var payload dto.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.log.Warn("invalid webhook payload", zap.Error(err))
		metrics.InboundMessagesTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}

	inbound, ok := payload.Normalize()
	if !ok {
		metrics.InboundMessagesTotal.WithLabelValues("ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	msgType, err := models.ParseMessageType(inbound.MessageType)
	if err != nil {
		metrics.InboundMessagesTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	seen, err := h.store.SeenInbound(ctx, inbound.ExternalID)
	if err != nil {
		h.log.Error("check duplicate inbound", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
		return
	}
	if seen {
		metrics.InboundMessagesTotal.WithLabelValues("duplicate").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	conv, client, err := h.store.GetOrCreate(ctx, inbound.From)
	if errors.Is(err, conversation.ErrClientNotFound) || errors.Is(err, conversation.ErrInvalidPhone) {
		h.log.Warn("inbound message from unknown number dropped",
			zap.String("from", inbound.From),
			zap.String("external_id", inbound.ExternalID),
		)
		metrics.InboundMessagesTotal.WithLabelValues("unknown_client").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "no client matches this phone number"})
		return
	}
	if err != nil {
		h.log.Error("resolve conversation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
		return
	}

	stored, err := h.store.AppendMessage(ctx, conversation.AppendInput{
		ConversationID:    conv.ID,
		Direction:         models.DirectionInbound,
		Content:           inbound.Body,
		MessageType:       msgType,
		MediaURL:          inbound.MediaURL,
		ExternalMessageID: inbound.ExternalID,
	})
	if err != nil {
		h.log.Error("store inbound message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}
	metrics.InboundMessagesTotal.WithLabelValues("stored").Inc()

	resp := gin.H{
		"status":          "processed",
		"conversation_id": conv.ID,
		"message_id":      stored.ID,
		"auto_reply":      false,
	}

	if inbound.Body != "" && h.matcher != nil {
		if reply, matched := h.matcher.Match(ctx, automation.MatchInput{
			ClientID:       client.ID,
			ConversationID: conv.ID,
			Text:           inbound.Body,
		}); matched {
			sent, err := h.replier.SendText(ctx, whatsapp.TextRequest{
				Recipient: whatsapp.Recipient{ClientID: client.ID, Phone: conv.Phone, ConversationID: conv.ID},
				Text:      reply,
				Category:  models.CategoryChatbot,
			})
			if err != nil {
				h.log.Warn("chatbot reply failed", zap.Uint("conversation_id", conv.ID), zap.Error(err))
				resp["auto_reply_error"] = err.Error()
			} else {
				resp["auto_reply"] = true
				resp["reply_message_id"] = sent.ID
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}
