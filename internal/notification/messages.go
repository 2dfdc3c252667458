package notification

import (
	"fmt"
	"strings"
	"time"

	"escalafin-messaging/internal/templating"
)

// PaymentReceived describes a registered payment.
type PaymentReceived struct {
	Amount           float64   `json:"amount" binding:"required,gt=0"`
	PaidAt           time.Time `json:"paid_at"`
	LoanNumber       string    `json:"loan_number" binding:"required"`
	RemainingBalance float64   `json:"remaining_balance"`
	LoanID           *uint     `json:"loan_id"`
	PaymentID        *uint     `json:"payment_id"`
}

// PaymentReminder describes an upcoming installment.
type PaymentReminder struct {
	Amount     float64   `json:"amount" binding:"required,gt=0"`
	DueDate    time.Time `json:"due_date" binding:"required"`
	LoanNumber string    `json:"loan_number" binding:"required"`
	LoanID     *uint     `json:"loan_id"`
	PaymentID  *uint     `json:"payment_id"`
}

// LoanApproved describes a newly approved loan.
type LoanApproved struct {
	LoanNumber     string  `json:"loan_number" binding:"required"`
	Amount         float64 `json:"amount" binding:"required,gt=0"`
	MonthlyPayment float64 `json:"monthly_payment"`
	TermMonths     int     `json:"term_months"`
	LoanID         *uint   `json:"loan_id"`
}

// Custom is a free-form message, optionally with media.
type Custom struct {
	Message  string `json:"message"`
	MediaURL string `json:"media_url"`
}

func paymentReceivedText(name string, e PaymentReceived) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s, recibimos tu pago de %s", name, templating.FormatCurrency(e.Amount))
	if !e.PaidAt.IsZero() {
		fmt.Fprintf(&b, " el %s", templating.FormatLongDate(e.PaidAt))
	}
	fmt.Fprintf(&b, " para tu préstamo %s.", e.LoanNumber)
	if e.RemainingBalance > 0 {
		fmt.Fprintf(&b, " Tu saldo pendiente es de %s.", templating.FormatCurrency(e.RemainingBalance))
	} else {
		b.WriteString(" ¡Tu préstamo está liquidado!")
	}
	b.WriteString(" Gracias por tu puntualidad.")
	return b.String()
}

func paymentReminderText(name string, e PaymentReminder) string {
	return fmt.Sprintf(
		"Hola %s, te recordamos que tu pago de %s del préstamo %s vence el %s. Evita recargos pagando a tiempo.",
		name, templating.FormatCurrency(e.Amount), e.LoanNumber, templating.FormatLongDate(e.DueDate),
	)
}

func loanApprovedText(name string, e LoanApproved) string {
	var b strings.Builder
	fmt.Fprintf(&b, "¡Felicidades %s! Tu préstamo %s por %s fue aprobado.",
		name, e.LoanNumber, templating.FormatCurrency(e.Amount))
	if e.MonthlyPayment > 0 && e.TermMonths > 0 {
		fmt.Fprintf(&b, " Pagarás %d mensualidades de %s.", e.TermMonths, templating.FormatCurrency(e.MonthlyPayment))
	}
	b.WriteString(" Un asesor se pondrá en contacto contigo para los siguientes pasos.")
	return b.String()
}
