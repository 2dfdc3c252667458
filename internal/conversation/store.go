// Package conversation persists conversations and their messages.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"escalafin-messaging/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrClientNotFound is returned when no client phone matches an inbound number.
	ErrClientNotFound = errors.New("no client matches phone number")
	// ErrNotFound is returned for unknown conversation or message ids.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalidPhone is returned when a phone number has fewer than ten digits.
	ErrInvalidPhone = errors.New("phone number must contain at least 10 digits")
)

const (
	matchDigits     = 10
	defaultPageSize = 50
	maxPageSize     = 200
)

// Event is published after every write that changes what a dashboard shows.
type Event struct {
	Type           string                      `json:"type"`
	ConversationID uint                        `json:"conversation_id"`
	Conversation   *models.Conversation        `json:"conversation,omitempty"`
	Message        *models.ConversationMessage `json:"message,omitempty"`
}

const (
	EventMessage  = "message"
	EventStatus   = "message_status"
	EventClosed   = "conversation_closed"
	EventAssigned = "conversation_assigned"
)

// Notifier receives store events. The websocket hub implements it.
type Notifier interface {
	Publish(Event)
}

// Store is the GORM-backed conversation repository.
type Store struct {
	db       *gorm.DB
	log      *zap.Logger
	notifier Notifier
	now      func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithNotifier publishes store events to n.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore builds a Store.
func NewStore(db *gorm.DB, log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{db: db, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeDigits strips everything but ASCII digits.
func NormalizeDigits(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lastDigits(digits string) string {
	if len(digits) <= matchDigits {
		return digits
	}
	return digits[len(digits)-matchDigits:]
}

// digitPattern builds a LIKE pattern matching digits in order with anything between them.
func digitPattern(digits string) string {
	var b strings.Builder
	b.WriteByte('%')
	for _, r := range digits {
		b.WriteRune(r)
		b.WriteByte('%')
	}
	return b.String()
}

// FindClientByPhone resolves a client whose stored phone has the same last ten digits.
func (s *Store) FindClientByPhone(ctx context.Context, phone string) (*models.Client, error) {
	digits := NormalizeDigits(phone)
	if len(digits) < matchDigits {
		return nil, ErrInvalidPhone
	}
	suffix := lastDigits(digits)

	// Stored phones may carry separators anywhere, so the database narrows on the
	// digits in order and the exact comparison happens on normalized values.
	var candidates []models.Client
	if err := s.db.WithContext(ctx).
		Where("phone LIKE ?", digitPattern(suffix)).
		Order("id ASC").
		Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("lookup client by phone: %w", err)
	}

	for i := range candidates {
		stored := NormalizeDigits(candidates[i].Phone)
		if len(stored) >= matchDigits && lastDigits(stored) == suffix {
			return &candidates[i], nil
		}
	}
	return nil, ErrClientNotFound
}

// GetOrCreate resolves the client for phone and returns its ACTIVE conversation,
// creating one when none exists.
func (s *Store) GetOrCreate(ctx context.Context, phone string) (*models.Conversation, *models.Client, error) {
	client, err := s.FindClientByPhone(ctx, phone)
	if err != nil {
		return nil, nil, err
	}
	conv, err := s.EnsureActive(ctx, client.ID, NormalizeDigits(phone))
	if err != nil {
		return nil, nil, err
	}
	return conv, client, nil
}

// EnsureActive returns the ACTIVE conversation for clientID, creating it with phone
// when none exists. A concurrent creator that loses on the partial unique index
// re-reads the winner's row.
func (s *Store) EnsureActive(ctx context.Context, clientID uint, phone string) (*models.Conversation, error) {
	conv, err := s.findActive(ctx, clientID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup active conversation: %w", err)
	}

	created := &models.Conversation{
		ClientID:      clientID,
		Phone:         NormalizeDigits(phone),
		Status:        models.ConversationActive,
		LastMessageAt: s.now(),
	}
	if createErr := s.db.WithContext(ctx).Create(created).Error; createErr != nil {
		existing, findErr := s.findActive(ctx, clientID)
		if findErr != nil {
			return nil, fmt.Errorf("create conversation: %w", createErr)
		}
		s.log.Debug("lost conversation creation race", zap.Uint("client_id", clientID), zap.Uint("conversation_id", existing.ID))
		return existing, nil
	}

	s.log.Info("conversation created", zap.Uint("client_id", clientID), zap.Uint("conversation_id", created.ID))
	return created, nil
}

func (s *Store) findActive(ctx context.Context, clientID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND status = ?", clientID, models.ConversationActive).
		Order("id ASC").
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Get loads one conversation.
func (s *Store) Get(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// SeenInbound reports whether an inbound message with the provider id was already stored.
func (s *Store) SeenInbound(ctx context.Context, externalID string) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ConversationMessage{}).
		Where("external_message_id = ? AND direction = ?", externalID, models.DirectionInbound).
		Count(&count).Error
	return count > 0, err
}

// AppendInput describes a message to add to a conversation.
type AppendInput struct {
	ConversationID    uint
	Direction         models.Direction
	Content           string
	MessageType       models.MessageType
	MediaURL          string
	Category          models.MessageCategory
	ExternalMessageID string
	SentBy            *uint
	LoanID            *uint
	PaymentID         *uint
}

// AppendMessage inserts a message and touches the parent's last_message_at with the
// message's creation time. Inbound messages are always stored DELIVERED and outbound
// ones start PENDING.
func (s *Store) AppendMessage(ctx context.Context, in AppendInput) (*models.ConversationMessage, error) {
	if !in.Direction.Valid() {
		return nil, fmt.Errorf("invalid direction %q", in.Direction)
	}
	if in.MessageType == "" {
		in.MessageType = models.MessageText
	}

	now := s.now()
	msg := &models.ConversationMessage{
		ConversationID: in.ConversationID,
		Direction:      in.Direction,
		Content:        in.Content,
		MessageType:    in.MessageType,
		MediaURL:       in.MediaURL,
		Category:       in.Category,
		SentBy:         in.SentBy,
		LoanID:         in.LoanID,
		PaymentID:      in.PaymentID,
		CreatedAt:      now,
	}
	if in.ExternalMessageID != "" {
		id := in.ExternalMessageID
		msg.ExternalMessageID = &id
	}
	if in.Direction == models.DirectionInbound {
		msg.Status = models.MessageDelivered
		msg.DeliveredAt = &now
	} else {
		msg.Status = models.MessagePending
	}

	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", in.ConversationID).
		Update("last_message_at", now)
	if res.Error != nil {
		return nil, fmt.Errorf("touch conversation: %w", res.Error)
	}

	s.publish(Event{Type: EventMessage, ConversationID: in.ConversationID, Message: msg})
	return msg, nil
}

// MarkSent moves a PENDING outbound message to SENT.
func (s *Store) MarkSent(ctx context.Context, id uint, externalID, providerResponse string) (*models.ConversationMessage, error) {
	now := s.now()
	updates := map[string]any{
		"status":            models.MessageSent,
		"sent_at":           now,
		"provider_response": providerResponse,
	}
	if externalID != "" {
		updates["external_message_id"] = externalID
	}
	return s.transition(ctx, id, updates)
}

// MarkFailed moves a PENDING outbound message to FAILED.
func (s *Store) MarkFailed(ctx context.Context, id uint, reason, providerResponse string) (*models.ConversationMessage, error) {
	return s.transition(ctx, id, map[string]any{
		"status":            models.MessageFailed,
		"error_message":     reason,
		"provider_response": providerResponse,
	})
}

func (s *Store) transition(ctx context.Context, id uint, updates map[string]any) (*models.ConversationMessage, error) {
	res := s.db.WithContext(ctx).Model(&models.ConversationMessage{}).
		Where("id = ? AND direction = ? AND status = ?", id, models.DirectionOutbound, models.MessagePending).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update message status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("message %d is not a pending outbound message", id)
	}

	var msg models.ConversationMessage
	if err := s.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, err
	}
	s.publish(Event{Type: EventStatus, ConversationID: msg.ConversationID, Message: &msg})
	return &msg, nil
}

// Close resolves a conversation.
func (s *Store) Close(ctx context.Context, id uint) (*models.Conversation, error) {
	conv, err := s.update(ctx, id, map[string]any{"status": models.ConversationResolved})
	if err != nil {
		return nil, err
	}
	s.publish(Event{Type: EventClosed, ConversationID: id, Conversation: conv})
	return conv, nil
}

// Assign sets the staff owner of a conversation.
func (s *Store) Assign(ctx context.Context, id, userID uint) (*models.Conversation, error) {
	conv, err := s.update(ctx, id, map[string]any{"assigned_to_id": userID})
	if err != nil {
		return nil, err
	}
	s.publish(Event{Type: EventAssigned, ConversationID: id, Conversation: conv})
	return conv, nil
}

func (s *Store) update(ctx context.Context, id uint, updates map[string]any) (*models.Conversation, error) {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Filter narrows List.
type Filter struct {
	Status       models.ConversationStatus
	AssignedToID *uint
	ClientID     *uint
	Limit        int
	Offset       int
}

// List returns conversations, most recently active first.
func (s *Store) List(ctx context.Context, f Filter) ([]models.Conversation, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Conversation{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.AssignedToID != nil {
		query = query.Where("assigned_to_id = ?", *f.AssignedToID)
	}
	if f.ClientID != nil {
		query = query.Where("client_id = ?", *f.ClientID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []models.Conversation
	err := query.Order("last_message_at DESC").Order("id DESC").
		Limit(pageSize(f.Limit)).Offset(max(f.Offset, 0)).
		Find(&out).Error
	return out, total, err
}

// ListMessages returns the messages of a conversation oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID uint, limit, offset int) ([]models.ConversationMessage, error) {
	var out []models.ConversationMessage
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").Order("id ASC").
		Limit(pageSize(limit)).Offset(max(offset, 0)).
		Find(&out).Error
	return out, err
}

// AllMessages returns every message of a conversation oldest first, for exports.
func (s *Store) AllMessages(ctx context.Context, conversationID uint) ([]models.ConversationMessage, error) {
	var out []models.ConversationMessage
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error
	return out, err
}

// PurgeMessagesBefore deletes messages created before cutoff and reports how many went.
func (s *Store) PurgeMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ConversationMessage{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge messages: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) publish(e Event) {
	if s.notifier != nil {
		s.notifier.Publish(e)
	}
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	default:
		return limit
	}
}
