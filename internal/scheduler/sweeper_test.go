package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"escalafin-messaging/internal/database/dbtest"
	"escalafin-messaging/internal/models"
	"escalafin-messaging/internal/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeDispatcher struct {
	customs   []uint
	reminders []notification.PaymentReminder
	failFor   map[uint]bool
	skipFor   map[uint]bool
}

func (f *fakeDispatcher) outcome(clientID uint) (*notification.Delivery, error) {
	if f.failFor[clientID] {
		return nil, errors.New("provider down")
	}
	if f.skipFor[clientID] {
		return &notification.Delivery{Skipped: true, Reason: "opted out"}, nil
	}
	return &notification.Delivery{Message: &models.ConversationMessage{ID: 500 + clientID}}, nil
}

func (f *fakeDispatcher) CustomAs(_ context.Context, clientID uint, _ notification.Custom, _ models.MessageCategory) (*notification.Delivery, error) {
	f.customs = append(f.customs, clientID)
	return f.outcome(clientID)
}

func (f *fakeDispatcher) PaymentReminder(_ context.Context, clientID uint, e notification.PaymentReminder) (*notification.Delivery, error) {
	f.reminders = append(f.reminders, e)
	return f.outcome(clientID)
}

type fakePurger struct {
	cutoff time.Time
}

func (f *fakePurger) PurgeMessagesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 4, nil
}

var sweepNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newSweeper(t *testing.T, opts Options) (*Sweeper, *gorm.DB, *fakeDispatcher) {
	t.Helper()
	db := dbtest.New(t)
	d := &fakeDispatcher{failFor: map[uint]bool{}, skipFor: map[uint]bool{}}
	s := NewSweeper(db, d, nil, opts, nil)
	s.now = func() time.Time { return sweepNow }
	return s, db, d
}

func client(t *testing.T, db *gorm.DB) models.Client {
	t.Helper()
	c := models.Client{FirstName: "Eva", Phone: "4421234567"}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func TestSweepScheduledMessages(t *testing.T) {
	s, db, d := newSweeper(t, Options{})
	ok, failing, skipped := client(t, db), client(t, db), client(t, db)
	d.failFor[failing.ID] = true
	d.skipFor[skipped.ID] = true

	msgs := []models.ScheduledMessage{
		{ClientID: ok.ID, Message: "a", ScheduledFor: sweepNow.Add(-time.Hour), Recurrence: models.RecurrenceOnce, Status: models.SchedulePending},
		{ClientID: failing.ID, Message: "b", ScheduledFor: sweepNow.Add(-time.Minute), Recurrence: models.RecurrenceOnce, Status: models.SchedulePending},
		{ClientID: skipped.ID, Message: "c", ScheduledFor: sweepNow.Add(-time.Minute), Recurrence: models.RecurrenceOnce, Status: models.SchedulePending},
		{ClientID: ok.ID, Message: "future", ScheduledFor: sweepNow.Add(time.Hour), Recurrence: models.RecurrenceOnce, Status: models.SchedulePending},
		{ClientID: ok.ID, Message: "cancelled", ScheduledFor: sweepNow.Add(-time.Hour), Recurrence: models.RecurrenceOnce, Status: models.ScheduleCancelled},
	}
	require.NoError(t, db.Create(&msgs).Error)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.ScheduledSent)
	assert.Equal(t, 1, report.ScheduledFailed)
	assert.Equal(t, 1, report.ScheduledSkipped)
	assert.Equal(t, []uint{ok.ID, failing.ID, skipped.ID}, d.customs)

	var got []models.ScheduledMessage
	require.NoError(t, db.Order("id ASC").Find(&got).Error)
	assert.Equal(t, models.ScheduleSent, got[0].Status)
	require.NotNil(t, got[0].ConversationMessageID)
	assert.EqualValues(t, 500+ok.ID, *got[0].ConversationMessageID)
	assert.Equal(t, models.ScheduleFailed, got[1].Status)
	assert.Equal(t, "provider down", got[1].ErrorMessage)
	assert.Equal(t, models.ScheduleCancelled, got[2].Status)
	assert.Equal(t, models.SchedulePending, got[3].Status)
	assert.Equal(t, models.ScheduleCancelled, got[4].Status)
}

func TestSweepRecurringMessageEnqueuesNextOccurrence(t *testing.T) {
	s, db, _ := newSweeper(t, Options{})
	c := client(t, db)

	// two weeks behind: the next occurrence must land in the future
	first := models.ScheduledMessage{ClientID: c.ID, Message: "semanal", ScheduledFor: sweepNow.AddDate(0, 0, -14).Add(-time.Hour),
		Recurrence: models.RecurrenceWeekly, Status: models.SchedulePending}
	require.NoError(t, db.Create(&first).Error)

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	var pending []models.ScheduledMessage
	require.NoError(t, db.Where("status = ?", models.SchedulePending).Find(&pending).Error)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].ScheduledFor.Equal(sweepNow.AddDate(0, 0, 7).Add(-time.Hour)), pending[0].ScheduledFor)
	assert.Equal(t, models.RecurrenceWeekly, pending[0].Recurrence)
}

func TestSweepPaymentReminders(t *testing.T) {
	s, db, d := newSweeper(t, Options{ReminderLeadDays: 3, Location: time.UTC})
	c := client(t, db)
	active := models.Loan{ClientID: c.ID, LoanNumber: "PR-1", Status: models.LoanActive}
	closed := models.Loan{ClientID: c.ID, LoanNumber: "PR-0", Status: models.LoanPaidOff}
	require.NoError(t, db.Create(&active).Error)
	require.NoError(t, db.Create(&closed).Error)

	stamped := sweepNow.Add(-24 * time.Hour)
	day := func(n int) time.Time { return time.Date(2024, 5, 10+n, 0, 0, 0, 0, time.UTC) }
	entries := []models.AmortizationEntry{
		{LoanID: active.ID, PaymentNumber: 1, DueDate: day(2), TotalPayment: 900, Status: models.PaymentPending},
		{LoanID: active.ID, PaymentNumber: 2, DueDate: day(3), TotalPayment: 900, Status: models.PaymentPartial},
		{LoanID: active.ID, PaymentNumber: 3, DueDate: day(4), TotalPayment: 900, Status: models.PaymentPending},
		{LoanID: active.ID, PaymentNumber: 4, DueDate: day(1), TotalPayment: 900, Status: models.PaymentPaid},
		{LoanID: active.ID, PaymentNumber: 5, DueDate: day(1), TotalPayment: 900, Status: models.PaymentPending, ReminderSentAt: &stamped},
		{LoanID: closed.ID, PaymentNumber: 1, DueDate: day(1), TotalPayment: 900, Status: models.PaymentPending},
	}
	require.NoError(t, db.Create(&entries).Error)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.RemindersSent)
	require.Len(t, d.reminders, 2)
	assert.Equal(t, "PR-1", d.reminders[0].LoanNumber)
	assert.EqualValues(t, entries[0].ID, *d.reminders[0].PaymentID)
	assert.EqualValues(t, entries[1].ID, *d.reminders[1].PaymentID)

	var reloaded models.AmortizationEntry
	require.NoError(t, db.First(&reloaded, entries[0].ID).Error)
	assert.NotNil(t, reloaded.ReminderSentAt)

	// a second sweep does not remind again
	report, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.RemindersSent)
	assert.Len(t, d.reminders, 2)
}

func TestSweepReminderWindowUsesLocalDays(t *testing.T) {
	// 12:00 UTC is 06:00 local, so the window runs from May 10 06:00 UTC to May 14 06:00 UTC
	cst := time.FixedZone("CST", -6*60*60)
	s, db, d := newSweeper(t, Options{ReminderLeadDays: 3, Location: cst})
	c := client(t, db)
	loan := models.Loan{ClientID: c.ID, LoanNumber: "TZ-1", Status: models.LoanActive}
	require.NoError(t, db.Create(&loan).Error)

	at := func(day, hour int) time.Time { return time.Date(2024, 5, day, hour, 0, 0, 0, time.UTC) }
	entries := []models.AmortizationEntry{
		{LoanID: loan.ID, PaymentNumber: 1, DueDate: at(10, 5), TotalPayment: 100, Status: models.PaymentPending},
		{LoanID: loan.ID, PaymentNumber: 2, DueDate: at(10, 7), TotalPayment: 100, Status: models.PaymentPending},
		{LoanID: loan.ID, PaymentNumber: 3, DueDate: at(14, 3), TotalPayment: 100, Status: models.PaymentPending},
		{LoanID: loan.ID, PaymentNumber: 4, DueDate: at(14, 7), TotalPayment: 100, Status: models.PaymentPending},
	}
	require.NoError(t, db.Create(&entries).Error)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.RemindersSent)
	require.Len(t, d.reminders, 2)
	assert.EqualValues(t, entries[1].ID, *d.reminders[0].PaymentID)
	assert.EqualValues(t, entries[2].ID, *d.reminders[1].PaymentID)
}

func TestSweepSkippedReminderIsNotStamped(t *testing.T) {
	s, db, d := newSweeper(t, Options{ReminderLeadDays: 3, Location: time.UTC})
	c := client(t, db)
	d.skipFor[c.ID] = true
	loan := models.Loan{ClientID: c.ID, LoanNumber: "PR-1", Status: models.LoanActive}
	require.NoError(t, db.Create(&loan).Error)
	entry := models.AmortizationEntry{LoanID: loan.ID, PaymentNumber: 1, DueDate: sweepNow.AddDate(0, 0, 1), TotalPayment: 100, Status: models.PaymentPending}
	require.NoError(t, db.Create(&entry).Error)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.RemindersSkipped)

	var reloaded models.AmortizationEntry
	require.NoError(t, db.First(&reloaded, entry.ID).Error)
	assert.Nil(t, reloaded.ReminderSentAt)
}

func TestSweepRejectsOverlap(t *testing.T) {
	s, _, _ := newSweeper(t, Options{})
	s.running.Lock()
	defer s.running.Unlock()

	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrSweepRunning)
}

func TestPurgeExpired(t *testing.T) {
	s, _, _ := newSweeper(t, Options{})
	deleted, err := s.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted, "no purger configured")

	purger := &fakePurger{}
	s.purger = purger
	s.opts.RetentionDays = 90
	deleted, err = s.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, deleted)
	assert.Equal(t, sweepNow.AddDate(0, 0, -90), purger.cutoff)

	purger.cutoff = time.Time{}
	s.opts.RetentionDays = 0
	_, err = s.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.True(t, purger.cutoff.IsZero())
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s, _, _ := newSweeper(t, Options{})
	sched := NewScheduler(s, "not a cron spec", "", time.UTC, nil)
	assert.Error(t, sched.Start())
}

func TestSchedulerStartStop(t *testing.T) {
	s, _, _ := newSweeper(t, Options{})
	sched := NewScheduler(s, "*/5 * * * *", "30 3 * * *", time.UTC, nil)
	require.NoError(t, sched.Start())
	sched.Stop()
}
