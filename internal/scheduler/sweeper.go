// Package scheduler runs the periodic sweep for scheduled messages, payment
// reminders and message retention.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"escalafin-messaging/internal/models"
	"escalafin-messaging/internal/notification"
	"escalafin-messaging/pkg/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrSweepRunning is returned when a sweep is already in progress.
var ErrSweepRunning = errors.New("sweep already running")

// Dispatcher is the notification surface the sweep uses.
type Dispatcher interface {
	CustomAs(ctx context.Context, clientID uint, e notification.Custom, category models.MessageCategory) (*notification.Delivery, error)
	PaymentReminder(ctx context.Context, clientID uint, e notification.PaymentReminder) (*notification.Delivery, error)
}

// Purger deletes old conversation messages.
type Purger interface {
	PurgeMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Options tune the sweep.
type Options struct {
	ReminderLeadDays int
	RetentionDays    int
	Location         *time.Location
}

// Report counts what one sweep did.
type Report struct {
	ScheduledSent    int `json:"scheduled_sent"`
	ScheduledSkipped int `json:"scheduled_skipped"`
	ScheduledFailed  int `json:"scheduled_failed"`
	RemindersSent    int `json:"reminders_sent"`
	RemindersSkipped int `json:"reminders_skipped"`
	RemindersFailed  int `json:"reminders_failed"`
}

// Sweeper processes due work one item at a time. A failing item is logged and
// counted and the sweep moves on.
type Sweeper struct {
	db         *gorm.DB
	dispatcher Dispatcher
	purger     Purger
	opts       Options
	log        *zap.Logger
	now        func() time.Time

	running sync.Mutex
}

func NewSweeper(db *gorm.DB, dispatcher Dispatcher, purger Purger, opts Options, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Sweeper{db: db, dispatcher: dispatcher, purger: purger, opts: opts, log: log.Named("sweep"), now: time.Now}
}

// Run sends due scheduled messages, then due payment reminders.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	if !s.running.TryLock() {
		return Report{}, ErrSweepRunning
	}
	defer s.running.Unlock()

	var report Report
	now := s.now()

	if err := s.sendScheduled(ctx, now, &report); err != nil {
		return report, err
	}
	if err := s.sendReminders(ctx, now, &report); err != nil {
		return report, err
	}

	s.log.Info("sweep finished",
		zap.Int("scheduled_sent", report.ScheduledSent),
		zap.Int("scheduled_failed", report.ScheduledFailed),
		zap.Int("reminders_sent", report.RemindersSent),
		zap.Int("reminders_failed", report.RemindersFailed),
	)
	return report, nil
}

func (s *Sweeper) sendScheduled(ctx context.Context, now time.Time, report *Report) error {
	var due []models.ScheduledMessage
	if err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", models.SchedulePending, now.UTC()).
		Order("scheduled_for ASC").Order("id ASC").
		Find(&due).Error; err != nil {
		return fmt.Errorf("load due scheduled messages: %w", err)
	}

	for i := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.sendOne(ctx, now, &due[i], report)
	}
	return nil
}

func (s *Sweeper) sendOne(ctx context.Context, now time.Time, msg *models.ScheduledMessage, report *Report) {
	log := s.log.With(zap.Uint("scheduled_message_id", msg.ID), zap.Uint("client_id", msg.ClientID))

	delivery, err := s.dispatcher.CustomAs(ctx, msg.ClientID, notification.Custom{Message: msg.Message, MediaURL: msg.MediaURL}, models.CategoryScheduled)

	updates := map[string]any{}
	switch {
	case err != nil:
		updates["status"] = models.ScheduleFailed
		updates["error_message"] = err.Error()
		report.ScheduledFailed++
		metrics.SweepItemsTotal.WithLabelValues("scheduled", "failed").Inc()
		log.Warn("scheduled message failed", zap.Error(err))
	case delivery.Skipped:
		updates["status"] = models.ScheduleCancelled
		updates["error_message"] = delivery.Reason
		report.ScheduledSkipped++
		metrics.SweepItemsTotal.WithLabelValues("scheduled", "skipped").Inc()
	default:
		updates["status"] = models.ScheduleSent
		updates["sent_at"] = now
		if delivery.Message != nil {
			updates["conversation_message_id"] = delivery.Message.ID
		}
		report.ScheduledSent++
		metrics.SweepItemsTotal.WithLabelValues("scheduled", "sent").Inc()
	}

	res := s.db.WithContext(ctx).Model(&models.ScheduledMessage{}).
		Where("id = ? AND status = ?", msg.ID, models.SchedulePending).
		Updates(updates)
	if res.Error != nil {
		log.Error("update scheduled message", zap.Error(res.Error))
		return
	}

	next, ok := msg.Recurrence.Next(msg.ScheduledFor)
	if !ok {
		return
	}
	for !next.After(now) {
		next, _ = msg.Recurrence.Next(next)
	}
	following := models.ScheduledMessage{
		ClientID:     msg.ClientID,
		Message:      msg.Message,
		MediaURL:     msg.MediaURL,
		ScheduledFor: next,
		Recurrence:   msg.Recurrence,
		Status:       models.SchedulePending,
		CreatedBy:    msg.CreatedBy,
	}
	if err := s.db.WithContext(ctx).Create(&following).Error; err != nil {
		log.Error("enqueue next occurrence", zap.Error(err))
		return
	}
	log.Debug("next occurrence scheduled", zap.Time("scheduled_for", next))
}

func (s *Sweeper) sendReminders(ctx context.Context, now time.Time, report *Report) error {
	local := now.In(s.opts.Location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.opts.Location)
	until := today.AddDate(0, 0, s.opts.ReminderLeadDays+1)
	// SQLite compares timestamps as text, so both bounds go out in UTC
	today, until = today.UTC(), until.UTC()

	activeLoans := s.db.Model(&models.Loan{}).Select("id").Where("status = ?", models.LoanActive)

	var entries []models.AmortizationEntry
	if err := s.db.WithContext(ctx).
		Where("status IN ?", []models.PaymentStatus{models.PaymentPending, models.PaymentPartial, models.PaymentOverdue}).
		Where("reminder_sent_at IS NULL").
		Where("due_date >= ? AND due_date < ?", today, until).
		Where("loan_id IN (?)", activeLoans).
		Order("due_date ASC").Order("id ASC").
		Find(&entries).Error; err != nil {
		return fmt.Errorf("load due installments: %w", err)
	}

	for i := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.remind(ctx, now, &entries[i], report)
	}
	return nil
}

func (s *Sweeper) remind(ctx context.Context, now time.Time, entry *models.AmortizationEntry, report *Report) {
	log := s.log.With(zap.Uint("amortization_entry_id", entry.ID), zap.Uint("loan_id", entry.LoanID))

	var loan models.Loan
	if err := s.db.WithContext(ctx).First(&loan, entry.LoanID).Error; err != nil {
		report.RemindersFailed++
		metrics.SweepItemsTotal.WithLabelValues("reminder", "failed").Inc()
		log.Error("load loan for reminder", zap.Error(err))
		return
	}

	loanID, entryID := loan.ID, entry.ID
	delivery, err := s.dispatcher.PaymentReminder(ctx, loan.ClientID, notification.PaymentReminder{
		Amount:     entry.TotalPayment,
		DueDate:    entry.DueDate,
		LoanNumber: loan.LoanNumber,
		LoanID:     &loanID,
		PaymentID:  &entryID,
	})
	switch {
	case err != nil:
		report.RemindersFailed++
		metrics.SweepItemsTotal.WithLabelValues("reminder", "failed").Inc()
		log.Warn("payment reminder failed", zap.Error(err))
		return
	case delivery.Skipped:
		report.RemindersSkipped++
		metrics.SweepItemsTotal.WithLabelValues("reminder", "skipped").Inc()
		return
	}

	if err := s.db.WithContext(ctx).Model(&models.AmortizationEntry{}).
		Where("id = ?", entry.ID).
		Update("reminder_sent_at", now).Error; err != nil {
		log.Error("stamp reminder", zap.Error(err))
	}
	report.RemindersSent++
	metrics.SweepItemsTotal.WithLabelValues("reminder", "sent").Inc()
}

// PurgeExpired deletes conversation messages older than the retention window. A
// window of zero days disables it.
func (s *Sweeper) PurgeExpired(ctx context.Context) (int64, error) {
	if s.opts.RetentionDays <= 0 || s.purger == nil {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -s.opts.RetentionDays)
	deleted, err := s.purger.PurgeMessagesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.SweepItemsTotal.WithLabelValues("retention", "deleted").Add(float64(deleted))
	s.log.Info("expired messages purged", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	return deleted, nil
}
