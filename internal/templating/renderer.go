// Package templating fills chatbot response placeholders with client data.
package templating

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"escalafin-messaging/internal/models"

	"gorm.io/gorm"
)

// Snapshot is the client state a template is rendered against.
type Snapshot struct {
	Client      models.Client
	ActiveLoan  *models.Loan
	NextPayment *models.AmortizationEntry
}

// RenderSnapshot substitutes every known placeholder in a single pass. Placeholders
// whose data is missing, and unknown ones, are left as written.
func RenderSnapshot(template string, snap Snapshot) string {
	pairs := []string{
		"{nombre}", snap.Client.FirstName,
		"{apellido}", snap.Client.LastName,
		"{nombre_completo}", snap.Client.FullName(),
	}
	if snap.ActiveLoan != nil {
		pairs = append(pairs,
			"{saldo}", FormatCurrency(snap.ActiveLoan.Balance),
			"{prestamo_numero}", snap.ActiveLoan.LoanNumber,
		)
	}
	if snap.NextPayment != nil {
		pairs = append(pairs,
			"{proximo_pago}", FormatCurrency(snap.NextPayment.TotalPayment),
			"{fecha_pago}", FormatDate(snap.NextPayment.DueDate),
		)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// ErrClientNotFound is returned when the client to render for does not exist.
var ErrClientNotFound = errors.New("client not found")

// Renderer loads a fresh Snapshot for every render.
type Renderer struct {
	db *gorm.DB
}

func NewRenderer(db *gorm.DB) *Renderer {
	return &Renderer{db: db}
}

// Render fills template for clientID.
func (r *Renderer) Render(ctx context.Context, template string, clientID uint) (string, error) {
	snap, err := r.Snapshot(ctx, clientID)
	if err != nil {
		return "", err
	}
	return RenderSnapshot(template, *snap), nil
}

// Snapshot loads the client, its first ACTIVE loan and that loan's earliest unpaid
// installment.
func (r *Renderer) Snapshot(ctx context.Context, clientID uint) (*Snapshot, error) {
	db := r.db.WithContext(ctx)

	var snap Snapshot
	if err := db.First(&snap.Client, clientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("load client: %w", err)
	}

	var loan models.Loan
	err := db.Where("client_id = ? AND status = ?", clientID, models.LoanActive).Order("id ASC").First(&loan).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &snap, nil
	case err != nil:
		return nil, fmt.Errorf("load active loan: %w", err)
	}
	snap.ActiveLoan = &loan

	var entry models.AmortizationEntry
	err = db.Where("loan_id = ? AND status <> ?", loan.ID, models.PaymentPaid).
		Order("due_date ASC").Order("payment_number ASC").
		First(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("load next payment: %w", err)
	default:
		snap.NextPayment = &entry
	}
	return &snap, nil
}
