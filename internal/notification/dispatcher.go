// Package notification sends event-driven messages to clients who opted in.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"escalafin-messaging/internal/models"
	"escalafin-messaging/internal/whatsapp"
	"escalafin-messaging/pkg/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrClientNotFound is returned for an unknown client id.
var ErrClientNotFound = errors.New("client not found")

// Gateway is the outbound surface the dispatcher sends through.
type Gateway interface {
	SendText(ctx context.Context, req whatsapp.TextRequest) (*models.ConversationMessage, error)
	SendMedia(ctx context.Context, req whatsapp.MediaRequest) (*models.ConversationMessage, error)
}

// Delivery is the outcome of one notification. Skipped deliveries made no gateway call.
type Delivery struct {
	Skipped bool                        `json:"skipped"`
	Reason  string                      `json:"reason,omitempty"`
	Message *models.ConversationMessage `json:"message,omitempty"`
}

// Dispatcher checks the client's WhatsApp preference for the event category and
// sends the hard-coded message for it.
type Dispatcher struct {
	db      *gorm.DB
	gateway Gateway
	log     *zap.Logger
}

func NewDispatcher(db *gorm.DB, gateway Gateway, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{db: db, gateway: gateway, log: log.Named("notification")}
}

// PaymentReceived confirms a payment.
func (d *Dispatcher) PaymentReceived(ctx context.Context, clientID uint, e PaymentReceived) (*Delivery, error) {
	return d.dispatchText(ctx, clientID, models.CategoryPaymentReceived, func(c *models.Client) whatsapp.TextRequest {
		return whatsapp.TextRequest{
			Text: paymentReceivedText(c.FirstName, e),
			Refs: whatsapp.Refs{LoanID: e.LoanID, PaymentID: e.PaymentID},
		}
	})
}

// PaymentReminder announces an upcoming installment.
func (d *Dispatcher) PaymentReminder(ctx context.Context, clientID uint, e PaymentReminder) (*Delivery, error) {
	return d.dispatchText(ctx, clientID, models.CategoryPaymentReminder, func(c *models.Client) whatsapp.TextRequest {
		return whatsapp.TextRequest{
			Text: paymentReminderText(c.FirstName, e),
			Refs: whatsapp.Refs{LoanID: e.LoanID, PaymentID: e.PaymentID},
		}
	})
}

// LoanApproved announces an approval.
func (d *Dispatcher) LoanApproved(ctx context.Context, clientID uint, e LoanApproved) (*Delivery, error) {
	return d.dispatchText(ctx, clientID, models.CategoryLoanApproved, func(c *models.Client) whatsapp.TextRequest {
		return whatsapp.TextRequest{
			Text: loanApprovedText(c.FirstName, e),
			Refs: whatsapp.Refs{LoanID: e.LoanID},
		}
	})
}

// Custom sends a free-form message, gated by the marketing preference. With a media
// URL the message becomes the caption.
func (d *Dispatcher) Custom(ctx context.Context, clientID uint, e Custom) (*Delivery, error) {
	return d.CustomAs(ctx, clientID, e, models.CategoryCustom)
}

// CustomAs is Custom recorded under category, used by the scheduled message sweep.
func (d *Dispatcher) CustomAs(ctx context.Context, clientID uint, e Custom, category models.MessageCategory) (*Delivery, error) {
	if strings.TrimSpace(e.Message) == "" && strings.TrimSpace(e.MediaURL) == "" {
		return nil, fmt.Errorf("%w: message or media_url is required", whatsapp.ErrInvalidRequest)
	}
	if e.MediaURL == "" {
		return d.dispatchText(ctx, clientID, category, func(*models.Client) whatsapp.TextRequest {
			return whatsapp.TextRequest{Text: e.Message}
		})
	}

	client, skipped, err := d.gate(ctx, clientID, category)
	if err != nil || skipped != nil {
		return skipped, err
	}
	msg, err := d.gateway.SendMedia(ctx, whatsapp.MediaRequest{
		Recipient: whatsapp.Recipient{ClientID: client.ID, Phone: client.Phone},
		MediaURL:  e.MediaURL,
		Caption:   e.Message,
		Category:  category,
	})
	return d.finish(category, client.ID, msg, err)
}

func (d *Dispatcher) dispatchText(
	ctx context.Context,
	clientID uint,
	category models.MessageCategory,
	build func(*models.Client) whatsapp.TextRequest,
) (*Delivery, error) {
	client, skipped, err := d.gate(ctx, clientID, category)
	if err != nil || skipped != nil {
		return skipped, err
	}

	req := build(client)
	req.Recipient = whatsapp.Recipient{ClientID: client.ID, Phone: client.Phone}
	req.Category = category
	msg, err := d.gateway.SendText(ctx, req)
	return d.finish(category, client.ID, msg, err)
}

// gate loads the client and returns a skipped Delivery when the preference is off.
func (d *Dispatcher) gate(ctx context.Context, clientID uint, category models.MessageCategory) (*models.Client, *Delivery, error) {
	var client models.Client
	if err := d.db.WithContext(ctx).First(&client, clientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrClientNotFound
		}
		return nil, nil, fmt.Errorf("load client: %w", err)
	}

	if !client.Preferences.Allows(models.ChannelWhatsApp, category) {
		metrics.NotificationsTotal.WithLabelValues(string(category), "skipped").Inc()
		d.log.Info("notification skipped by client preference",
			zap.Uint("client_id", clientID),
			zap.String("category", string(category)),
		)
		return nil, &Delivery{Skipped: true, Reason: "client disabled whatsapp notifications for this category"}, nil
	}
	if strings.TrimSpace(client.Phone) == "" {
		metrics.NotificationsTotal.WithLabelValues(string(category), "skipped").Inc()
		return nil, &Delivery{Skipped: true, Reason: "client has no phone number"}, nil
	}
	return &client, nil, nil
}

func (d *Dispatcher) finish(category models.MessageCategory, clientID uint, msg *models.ConversationMessage, err error) (*Delivery, error) {
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(category), "failed").Inc()
		return &Delivery{Message: msg}, fmt.Errorf("send %s notification to client %d: %w", category, clientID, err)
	}
	metrics.NotificationsTotal.WithLabelValues(string(category), "sent").Inc()
	return &Delivery{Message: msg}, nil
}

// BroadcastResult is the outcome for one recipient of a broadcast.
type BroadcastResult struct {
	ClientID uint   `json:"client_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

const (
	BroadcastSent    = "sent"
	BroadcastSkipped = "skipped"
	BroadcastFailed  = "failed"
)

// Broadcast sends the same custom message to each client in turn. A failure for one
// client is reported and the loop continues.
func (d *Dispatcher) Broadcast(ctx context.Context, clientIDs []uint, e Custom) []BroadcastResult {
	results := make([]BroadcastResult, 0, len(clientIDs))
	for _, id := range clientIDs {
		if ctx.Err() != nil {
			results = append(results, BroadcastResult{ClientID: id, Status: BroadcastFailed, Error: ctx.Err().Error()})
			continue
		}
		delivery, err := d.Custom(ctx, id, e)
		switch {
		case err != nil:
			d.log.Warn("broadcast delivery failed", zap.Uint("client_id", id), zap.Error(err))
			results = append(results, BroadcastResult{ClientID: id, Status: BroadcastFailed, Error: err.Error()})
		case delivery.Skipped:
			results = append(results, BroadcastResult{ClientID: id, Status: BroadcastSkipped, Error: delivery.Reason})
		default:
			results = append(results, BroadcastResult{ClientID: id, Status: BroadcastSent})
		}
	}
	return results
}
