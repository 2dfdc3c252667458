package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "ACTIVE"
	ConversationResolved ConversationStatus = "RESOLVED"
)

func (s ConversationStatus) Valid() bool {
	return s == ConversationActive || s == ConversationResolved
}

func (s *ConversationStatus) Scan(src any) error { return scanEnum(s, src, "conversation status") }
func (s ConversationStatus) Value() (driver.Value, error) {
	return enumValue(s, "conversation status")
}

// Direction tells whether a message came from the client or was sent to them.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

func (d Direction) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

func (d *Direction) Scan(src any) error { return scanEnum(d, src, "direction") }
func (d Direction) Value() (driver.Value, error) { return enumValue(d, "direction") }

// MessageType is the content kind of a conversation message.
type MessageType string

const (
	MessageText     MessageType = "TEXT"
	MessageImage    MessageType = "IMAGE"
	MessageDocument MessageType = "DOCUMENT"
	MessageAudio    MessageType = "AUDIO"
	MessageVideo    MessageType = "VIDEO"
	MessageLocation MessageType = "LOCATION"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageDocument, MessageAudio, MessageVideo, MessageLocation:
		return true
	}
	return false
}

func (t *MessageType) Scan(src any) error { return scanEnum(t, src, "message type") }
func (t MessageType) Value() (driver.Value, error) { return enumValue(t, "message type") }

// ParseMessageType maps the lower-case webhook names ("text", "image", ...) to a
// MessageType. Empty input is TEXT.
func ParseMessageType(raw string) (MessageType, error) {
	if raw == "" {
		return MessageText, nil
	}
	t := MessageType(strings.ToUpper(raw))
	if !t.Valid() {
		return "", fmt.Errorf("unknown message type %q", raw)
	}
	return t, nil
}

// MessageStatus is the delivery state of a conversation message.
type MessageStatus string

const (
	MessagePending   MessageStatus = "PENDING"
	MessageSent      MessageStatus = "SENT"
	MessageDelivered MessageStatus = "DELIVERED"
	MessageFailed    MessageStatus = "FAILED"
)

func (s MessageStatus) Valid() bool {
	switch s {
	case MessagePending, MessageSent, MessageDelivered, MessageFailed:
		return true
	}
	return false
}

func (s *MessageStatus) Scan(src any) error { return scanEnum(s, src, "message status") }
func (s MessageStatus) Value() (driver.Value, error) { return enumValue(s, "message status") }

// MessageCategory records why an outbound message was produced.
type MessageCategory string

const (
	CategoryNone            MessageCategory = ""
	CategoryChatbot         MessageCategory = "CHATBOT"
	CategoryManual          MessageCategory = "MANUAL"
	CategoryPaymentReceived MessageCategory = "PAYMENT_RECEIVED"
	CategoryPaymentReminder MessageCategory = "PAYMENT_REMINDER"
	CategoryLoanApproved    MessageCategory = "LOAN_APPROVED"
	CategoryCustom          MessageCategory = "CUSTOM"
	CategoryScheduled       MessageCategory = "SCHEDULED"
)

func (c MessageCategory) Valid() bool {
	switch c {
	case CategoryNone, CategoryChatbot, CategoryManual, CategoryPaymentReceived,
		CategoryPaymentReminder, CategoryLoanApproved, CategoryCustom, CategoryScheduled:
		return true
	}
	return false
}

func (c *MessageCategory) Scan(src any) error { return scanEnum(c, src, "message category") }
func (c MessageCategory) Value() (driver.Value, error) { return enumValue(c, "message category") }

// TriggerType selects how a chatbot rule trigger is interpreted.
type TriggerType string

const (
	TriggerKeyword TriggerType = "KEYWORD"
	TriggerRegex   TriggerType = "REGEX"
)

func (t TriggerType) Valid() bool {
	return t == TriggerKeyword || t == TriggerRegex
}

func (t *TriggerType) Scan(src any) error { return scanEnum(t, src, "trigger type") }
func (t TriggerType) Value() (driver.Value, error) { return enumValue(t, "trigger type") }

// LoanStatus is the servicing state of a loan.
type LoanStatus string

const (
	LoanActive    LoanStatus = "ACTIVE"
	LoanPaidOff   LoanStatus = "PAID_OFF"
	LoanDefaulted LoanStatus = "DEFAULTED"
	LoanCancelled LoanStatus = "CANCELLED"
)

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanActive, LoanPaidOff, LoanDefaulted, LoanCancelled:
		return true
	}
	return false
}

func (s *LoanStatus) Scan(src any) error { return scanEnum(s, src, "loan status") }
func (s LoanStatus) Value() (driver.Value, error) { return enumValue(s, "loan status") }

// PaymentStatus is the state of one amortization installment.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentOverdue PaymentStatus = "OVERDUE"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPartial, PaymentPaid, PaymentOverdue:
		return true
	}
	return false
}

// Unpaid reports whether the installment still has an amount due.
func (s PaymentStatus) Unpaid() bool {
	return s.Valid() && s != PaymentPaid
}

func (s *PaymentStatus) Scan(src any) error { return scanEnum(s, src, "payment status") }
func (s PaymentStatus) Value() (driver.Value, error) { return enumValue(s, "payment status") }

// ScheduleStatus is the state of a scheduled message.
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "PENDING"
	ScheduleSent      ScheduleStatus = "SENT"
	ScheduleFailed    ScheduleStatus = "FAILED"
	ScheduleCancelled ScheduleStatus = "CANCELLED"
)

func (s ScheduleStatus) Valid() bool {
	switch s {
	case SchedulePending, ScheduleSent, ScheduleFailed, ScheduleCancelled:
		return true
	}
	return false
}

func (s *ScheduleStatus) Scan(src any) error { return scanEnum(s, src, "schedule status") }
func (s ScheduleStatus) Value() (driver.Value, error) { return enumValue(s, "schedule status") }

// Recurrence controls whether a scheduled message repeats after it is sent.
type Recurrence string

const (
	RecurrenceOnce    Recurrence = "ONCE"
	RecurrenceDaily   Recurrence = "DAILY"
	RecurrenceWeekly  Recurrence = "WEEKLY"
	RecurrenceMonthly Recurrence = "MONTHLY"
)

func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceOnce, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Next returns the following occurrence after t, or false for ONCE.
func (r Recurrence) Next(t time.Time) (time.Time, bool) {
	switch r {
	case RecurrenceDaily:
		return t.AddDate(0, 0, 1), true
	case RecurrenceWeekly:
		return t.AddDate(0, 0, 7), true
	case RecurrenceMonthly:
		return t.AddDate(0, 1, 0), true
	}
	return time.Time{}, false
}

func (r *Recurrence) Scan(src any) error { return scanEnum(r, src, "recurrence") }
func (r Recurrence) Value() (driver.Value, error) { return enumValue(r, "recurrence") }

type enum interface {
	~string
	Valid() bool
}

func scanEnum[T enum](dst *T, src any, name string) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		raw = ""
	default:
		return fmt.Errorf("cannot scan %T into %s", src, name)
	}
	value := T(raw)
	if !value.Valid() {
		return fmt.Errorf("invalid %s %q", name, raw)
	}
	*dst = value
	return nil
}

func enumValue[T enum](v T, name string) (driver.Value, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("invalid %s %q", name, string(v))
	}
	return string(v), nil
}
