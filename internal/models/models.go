package models

import (
	"time"

	"gorm.io/datatypes"
)

// Client is the borrower record owned by the loan-servicing side of the platform.
// The messaging pipeline only reads it.
type Client struct {
	ID          uint                    `gorm:"primaryKey" json:"id"`
	FirstName   string                  `gorm:"type:varchar(120);not null" json:"first_name"`
	LastName    string                  `gorm:"type:varchar(120)" json:"last_name"`
	Phone       string                  `gorm:"type:varchar(30);index" json:"phone"`
	Email       string                  `gorm:"type:varchar(255)" json:"email"`
	AdvisorID   *uint                   `json:"advisor_id"`
	Preferences NotificationPreferences `gorm:"embedded" json:"preferences"`
	CreatedAt   time.Time               `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time               `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Client) TableName() string {
	return "clients"
}

// FullName joins first and last name.
func (c Client) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// NotificationPreferences holds one opt-in flag per channel and category.
type NotificationPreferences struct {
	WhatsappPaymentReceived bool `json:"whatsapp_payment_received"`
	WhatsappPaymentReminder bool `json:"whatsapp_payment_reminder"`
	WhatsappLoanApproved    bool `json:"whatsapp_loan_approved"`
	WhatsappMarketing       bool `json:"whatsapp_marketing"`
	SMSPaymentReceived      bool `gorm:"column:sms_payment_received" json:"sms_payment_received"`
	SMSPaymentReminder      bool `gorm:"column:sms_payment_reminder" json:"sms_payment_reminder"`
	SMSLoanApproved         bool `gorm:"column:sms_loan_approved" json:"sms_loan_approved"`
	SMSMarketing            bool `gorm:"column:sms_marketing" json:"sms_marketing"`
	EmailPaymentReceived    bool `json:"email_payment_received"`
	EmailPaymentReminder    bool `json:"email_payment_reminder"`
	EmailLoanApproved       bool `json:"email_loan_approved"`
	EmailMarketing          bool `json:"email_marketing"`
}

// Channel is a delivery medium for notifications.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
)

// Allows reports whether the client opted in to category on channel. Categories
// without a preference flag (chatbot replies, manual staff messages) are always allowed.
func (p NotificationPreferences) Allows(channel Channel, category MessageCategory) bool {
	var received, reminder, approved, marketing bool
	switch channel {
	case ChannelWhatsApp:
		received, reminder, approved, marketing = p.WhatsappPaymentReceived, p.WhatsappPaymentReminder, p.WhatsappLoanApproved, p.WhatsappMarketing
	case ChannelSMS:
		received, reminder, approved, marketing = p.SMSPaymentReceived, p.SMSPaymentReminder, p.SMSLoanApproved, p.SMSMarketing
	case ChannelEmail:
		received, reminder, approved, marketing = p.EmailPaymentReceived, p.EmailPaymentReminder, p.EmailLoanApproved, p.EmailMarketing
	default:
		return false
	}

	switch category {
	case CategoryPaymentReceived:
		return received
	case CategoryPaymentReminder:
		return reminder
	case CategoryLoanApproved:
		return approved
	case CategoryCustom, CategoryScheduled:
		return marketing
	default:
		return true
	}
}

// Loan is a credit line owned by a client.
type Loan struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ClientID   uint       `gorm:"index;not null" json:"client_id"`
	LoanNumber string     `gorm:"type:varchar(50);uniqueIndex" json:"loan_number"`
	Status     LoanStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	Principal  float64    `json:"principal"`
	Balance    float64    `json:"balance"`
	AnnualRate float64    `json:"annual_rate"`
	TermMonths int        `json:"term_months"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Loan) TableName() string {
	return "loans"
}

// AmortizationEntry is one scheduled installment of a loan.
type AmortizationEntry struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	LoanID         uint          `gorm:"index;not null" json:"loan_id"`
	PaymentNumber  int           `json:"payment_number"`
	DueDate        time.Time     `gorm:"index;not null" json:"due_date"`
	TotalPayment   float64       `json:"total_payment"`
	Status         PaymentStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	ReminderSentAt *time.Time    `json:"reminder_sent_at"`
}

func (AmortizationEntry) TableName() string {
	return "amortization_entries"
}

// Conversation is the thread of messages exchanged with one client.
type Conversation struct {
	ID            uint               `gorm:"primaryKey" json:"id"`
	ClientID      uint               `gorm:"index;not null" json:"client_id"`
	Phone         string             `gorm:"type:varchar(30);not null" json:"phone"`
	Status        ConversationStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	AssignedToID  *uint              `gorm:"index" json:"assigned_to_id"`
	LastMessageAt time.Time          `gorm:"index" json:"last_message_at"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationMessage is one inbound or outbound message. Direction, owner and content
// are written on create only.
type ConversationMessage struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	ConversationID    uint            `gorm:"<-:create;index;not null" json:"conversation_id"`
	Direction         Direction       `gorm:"<-:create;type:varchar(10);not null" json:"direction"`
	Content           string          `gorm:"<-:create;type:text" json:"content"`
	MessageType       MessageType     `gorm:"type:varchar(20);not null" json:"message_type"`
	MediaURL          string          `gorm:"type:text" json:"media_url,omitempty"`
	Status            MessageStatus   `gorm:"type:varchar(20);index;not null" json:"status"`
	Category          MessageCategory `gorm:"type:varchar(30);index" json:"category,omitempty"`
	ExternalMessageID *string         `gorm:"type:varchar(255);index" json:"external_message_id"`
	ProviderResponse  string          `gorm:"type:text" json:"-"`
	ErrorMessage      string          `gorm:"type:text" json:"error_message,omitempty"`
	SentBy            *uint           `json:"sent_by,omitempty"`
	LoanID            *uint           `json:"loan_id,omitempty"`
	PaymentID         *uint           `json:"payment_id,omitempty"`
	CreatedAt         time.Time       `gorm:"index" json:"created_at"`
	SentAt            *time.Time      `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty"`
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

// ChatbotRule is an administrator configured auto-response.
type ChatbotRule struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	IsActive    bool           `gorm:"index" json:"is_active"`
	Priority    int            `gorm:"index" json:"priority"`
	TriggerType TriggerType    `gorm:"type:varchar(20);not null" json:"trigger_type"`
	Trigger     string         `gorm:"type:text;not null" json:"trigger"`
	Conditions  datatypes.JSON `json:"conditions,omitempty"`
	Actions     datatypes.JSON `json:"actions,omitempty"`
	Response    string         `gorm:"type:text;not null" json:"response"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ChatbotRule) TableName() string {
	return "chatbot_rules"
}

// RuleExecutionLog records every rule whose trigger matched an inbound message.
type RuleExecutionLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	RuleID         uint      `gorm:"index" json:"rule_id"`
	ClientID       uint      `gorm:"index" json:"client_id"`
	ConversationID uint      `json:"conversation_id"`
	InboundText    string    `gorm:"type:text" json:"inbound_text"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (RuleExecutionLog) TableName() string {
	return "rule_execution_logs"
}

// WahaConfig holds the WAHA provider credentials. Only one row is active at a time.
type WahaConfig struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"type:varchar(100);not null" json:"session_id"`
	APIKey    string    `gorm:"type:varchar(255)" json:"-"`
	BaseURL   string    `gorm:"type:varchar(255);not null" json:"base_url"`
	IsActive  bool      `gorm:"index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WahaConfig) TableName() string {
	return "waha_configs"
}

// ScheduledMessage is a message to be sent at a future time
type ScheduledMessage struct {
	ID                    uint           `gorm:"primaryKey" json:"id"`
	ClientID              uint           `gorm:"index;not null" json:"client_id"`
	Message               string         `gorm:"type:text" json:"message"`
	MediaURL              string         `gorm:"type:text" json:"media_url,omitempty"`
	ScheduledFor          time.Time      `gorm:"index;not null" json:"scheduled_for"`
	Recurrence            Recurrence     `gorm:"type:varchar(20);not null" json:"recurrence"`
	Status                ScheduleStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	SentAt                *time.Time     `json:"sent_at"`
	ErrorMessage          string         `gorm:"type:text" json:"error_message,omitempty"`
	ConversationMessageID *uint          `json:"conversation_message_id,omitempty"`
	CreatedBy             *uint          `json:"created_by,omitempty"`
	CreatedAt             time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (ScheduledMessage) TableName() string {
	return "scheduled_messages"
}

// Notification is an in-app alert for a staff member.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	ClientID  uint      `json:"client_id"`
	Title     string    `gorm:"type:varchar(255)" json:"title"`
	Body      string    `gorm:"type:text" json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

// All lists every model for auto-migration, in dependency order.
func All() []any {
	return []any{
		&Client{},
		&Loan{},
		&AmortizationEntry{},
		&Conversation{},
		&ConversationMessage{},
		&ChatbotRule{},
		&RuleExecutionLog{},
		&WahaConfig{},
		&ScheduledMessage{},
		&Notification{},
	}
}
