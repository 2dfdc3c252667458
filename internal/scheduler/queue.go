package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"escalafin-messaging/internal/models"

	"gorm.io/gorm"
)

var (
	ErrNotFound   = errors.New("scheduled message not found")
	ErrNotPending = errors.New("scheduled message is no longer pending")
	ErrInvalid    = errors.New("invalid scheduled message")
)

// Queue stores messages to be sent by the sweep.
type Queue struct {
	db  *gorm.DB
	now func() time.Time
}

func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db, now: time.Now}
}

// NewMessage is a request to schedule a message.
type NewMessage struct {
	ClientID     uint              `json:"client_id" binding:"required"`
	Message      string            `json:"message"`
	MediaURL     string            `json:"media_url"`
	ScheduledFor time.Time         `json:"scheduled_for" binding:"required"`
	Recurrence   models.Recurrence `json:"recurrence"`
	CreatedBy    *uint             `json:"created_by"`
}

// Schedule validates and stores a PENDING scheduled message.
func (q *Queue) Schedule(ctx context.Context, in NewMessage) (*models.ScheduledMessage, error) {
	if strings.TrimSpace(in.Message) == "" && strings.TrimSpace(in.MediaURL) == "" {
		return nil, fmt.Errorf("%w: message or media_url is required", ErrInvalid)
	}
	if in.Recurrence == "" {
		in.Recurrence = models.RecurrenceOnce
	}
	if !in.Recurrence.Valid() {
		return nil, fmt.Errorf("%w: recurrence %q", ErrInvalid, in.Recurrence)
	}
	if in.ScheduledFor.IsZero() {
		return nil, fmt.Errorf("%w: scheduled_for is required", ErrInvalid)
	}

	var clients int64
	if err := q.db.WithContext(ctx).Model(&models.Client{}).Where("id = ?", in.ClientID).Count(&clients).Error; err != nil {
		return nil, err
	}
	if clients == 0 {
		return nil, fmt.Errorf("%w: client %d not found", ErrInvalid, in.ClientID)
	}

	msg := &models.ScheduledMessage{
		ClientID:     in.ClientID,
		Message:      in.Message,
		MediaURL:     in.MediaURL,
		ScheduledFor: in.ScheduledFor.UTC(),
		Recurrence:   in.Recurrence,
		Status:       models.SchedulePending,
		CreatedBy:    in.CreatedBy,
	}
	if err := q.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("store scheduled message: %w", err)
	}
	return msg, nil
}

// List returns scheduled messages ordered by send time, optionally filtered by status.
func (q *Queue) List(ctx context.Context, status models.ScheduleStatus, limit, offset int) ([]models.ScheduledMessage, error) {
	query := q.db.WithContext(ctx).Model(&models.ScheduledMessage{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.ScheduledMessage
	err := query.Order("scheduled_for ASC").Order("id ASC").Limit(limit).Offset(max(offset, 0)).Find(&out).Error
	return out, err
}

// Cancel stops a PENDING message from being sent.
func (q *Queue) Cancel(ctx context.Context, id uint) (*models.ScheduledMessage, error) {
	res := q.db.WithContext(ctx).Model(&models.ScheduledMessage{}).
		Where("id = ? AND status = ?", id, models.SchedulePending).
		Update("status", models.ScheduleCancelled)
	if res.Error != nil {
		return nil, res.Error
	}

	var msg models.ScheduledMessage
	if err := q.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if res.RowsAffected == 0 {
		return &msg, ErrNotPending
	}
	return &msg, nil
}
