package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"escalafin-messaging/internal/conversation"
	"escalafin-messaging/internal/models"
	"escalafin-messaging/pkg/metrics"

	"go.uber.org/zap"
)

// MessageStore is the part of the conversation store the gateway writes to.
type MessageStore interface {
	EnsureActive(ctx context.Context, clientID uint, phone string) (*models.Conversation, error)
	AppendMessage(ctx context.Context, in conversation.AppendInput) (*models.ConversationMessage, error)
	MarkSent(ctx context.Context, id uint, externalID, providerResponse string) (*models.ConversationMessage, error)
	MarkFailed(ctx context.Context, id uint, reason, providerResponse string) (*models.ConversationMessage, error)
}

// GatewayOptions carries address formatting defaults.
type GatewayOptions struct {
	DefaultCountryCode string
	ChatSuffix         string
}

// Gateway sends outbound messages through WAHA and records their delivery state.
type Gateway struct {
	sender Sender
	loader ConfigLoader
	store  MessageStore
	opts   GatewayOptions
	log    *zap.Logger
}

// NewGateway wires a Gateway.
func NewGateway(sender Sender, loader ConfigLoader, store MessageStore, opts GatewayOptions, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.DefaultCountryCode == "" {
		opts.DefaultCountryCode = "52"
	}
	if opts.ChatSuffix == "" {
		opts.ChatSuffix = "@c.us"
	}
	return &Gateway{sender: sender, loader: loader, store: store, opts: opts, log: log.Named("gateway")}
}

// Recipient identifies who an outbound message is for. ConversationID, when set,
// pins the message to that conversation instead of the client's ACTIVE one.
type Recipient struct {
	ClientID       uint
	Phone          string
	ConversationID uint
}

// Refs are optional links stored with the outbound row.
type Refs struct {
	SentBy    *uint
	LoanID    *uint
	PaymentID *uint
}

// TextRequest is an outbound text message.
type TextRequest struct {
	Recipient
	Refs
	Text     string
	Category models.MessageCategory
}

// MediaRequest is an outbound media message fetched by WAHA from MediaURL.
type MediaRequest struct {
	Recipient
	Refs
	MediaURL string
	Caption  string
	FileName string
	Category models.MessageCategory
}

// SendText delivers a text message. The returned message is SENT on success; on a
// provider failure it is FAILED and the error is a *ProviderError.
func (g *Gateway) SendText(ctx context.Context, req TextRequest) (*models.ConversationMessage, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: message text is required", ErrInvalidRequest)
	}

	return g.send(ctx, req.Recipient, conversation.AppendInput{
		Direction:   models.DirectionOutbound,
		Content:     req.Text,
		MessageType: models.MessageText,
		Category:    req.Category,
		SentBy:      req.SentBy,
		LoanID:      req.LoanID,
		PaymentID:   req.PaymentID,
	}, func(cfg ProviderConfig, chatID string) (*SendResult, error) {
		return g.sender.SendText(ctx, cfg, chatID, req.Text)
	})
}

// SendMedia delivers a media message. The MIME type is inferred from the URL.
func (g *Gateway) SendMedia(ctx context.Context, req MediaRequest) (*models.ConversationMessage, error) {
	if strings.TrimSpace(req.MediaURL) == "" {
		return nil, fmt.Errorf("%w: media url is required", ErrInvalidRequest)
	}

	file := MediaFile{URL: req.MediaURL, MimeType: MimeTypeFor(req.MediaURL), FileName: req.FileName}
	if file.FileName == "" {
		file.FileName = FileNameFor(req.MediaURL)
	}

	return g.send(ctx, req.Recipient, conversation.AppendInput{
		Direction:   models.DirectionOutbound,
		Content:     req.Caption,
		MessageType: messageTypeFor(file.MimeType),
		MediaURL:    req.MediaURL,
		Category:    req.Category,
		SentBy:      req.SentBy,
		LoanID:      req.LoanID,
		PaymentID:   req.PaymentID,
	}, func(cfg ProviderConfig, chatID string) (*SendResult, error) {
		return g.sender.SendMedia(ctx, cfg, chatID, file, req.Caption)
	})
}

func (g *Gateway) send(
	ctx context.Context,
	to Recipient,
	in conversation.AppendInput,
	call func(cfg ProviderConfig, chatID string) (*SendResult, error),
) (*models.ConversationMessage, error) {
	cfg, err := g.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	if conversation.NormalizeDigits(to.Phone) == "" {
		return nil, fmt.Errorf("%w: recipient phone is required", ErrInvalidRequest)
	}
	chatID := FormatChatID(to.Phone, g.opts.DefaultCountryCode, g.opts.ChatSuffix)

	in.ConversationID = to.ConversationID
	if in.ConversationID == 0 {
		conv, err := g.store.EnsureActive(ctx, to.ClientID, to.Phone)
		if err != nil {
			return nil, fmt.Errorf("resolve conversation: %w", err)
		}
		in.ConversationID = conv.ID
	}

	pending, err := g.store.AppendMessage(ctx, in)
	if err != nil {
		return nil, err
	}

	category := string(in.Category)
	result, sendErr := call(cfg, chatID)
	if sendErr != nil {
		var perr *ProviderError
		raw := ""
		if errors.As(sendErr, &perr) {
			raw = perr.Body
		}
		failed, markErr := g.store.MarkFailed(ctx, pending.ID, sendErr.Error(), raw)
		if markErr != nil {
			g.log.Error("mark message failed", zap.Uint("message_id", pending.ID), zap.Error(markErr))
			failed = pending
		}
		metrics.RecordOutbound(category, string(models.MessageFailed))
		g.log.Warn("outbound message failed",
			zap.Uint("message_id", pending.ID),
			zap.Uint("client_id", to.ClientID),
			zap.String("category", category),
			zap.Error(sendErr),
		)
		return failed, sendErr
	}

	sent, err := g.store.MarkSent(ctx, pending.ID, result.MessageID, result.Raw)
	if err != nil {
		return pending, fmt.Errorf("mark message sent: %w", err)
	}
	metrics.RecordOutbound(category, string(models.MessageSent))
	g.log.Info("outbound message sent",
		zap.Uint("message_id", sent.ID),
		zap.Uint("client_id", to.ClientID),
		zap.String("category", category),
		zap.String("external_id", result.MessageID),
	)
	return sent, nil
}

func messageTypeFor(mimeType string) models.MessageType {
	switch {
	case isImage(mimeType):
		return models.MessageImage
	case strings.HasPrefix(mimeType, "video/"):
		return models.MessageVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return models.MessageAudio
	default:
		return models.MessageDocument
	}
}
