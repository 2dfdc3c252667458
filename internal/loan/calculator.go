// Package loan computes fixed-installment amortization.
package loan

import (
	"errors"
	"math"
	"time"
)

var ErrInvalidTerms = errors.New("principal and term must be positive and rate not negative")

// MonthlyPayment is the fixed installment for principal at annualRatePct over months.
func MonthlyPayment(principal, annualRatePct float64, months int) (float64, error) {
	if principal <= 0 || months <= 0 || annualRatePct < 0 {
		return 0, ErrInvalidTerms
	}
	r := annualRatePct / 100 / 12
	if r == 0 {
		return round2(principal / float64(months)), nil
	}
	factor := math.Pow(1+r, float64(months))
	return round2(principal * r * factor / (factor - 1)), nil
}

// Installment is one row of an amortization table.
type Installment struct {
	Number    int       `json:"number"`
	DueDate   time.Time `json:"due_date"`
	Payment   float64   `json:"payment"`
	Principal float64   `json:"principal"`
	Interest  float64   `json:"interest"`
	Balance   float64   `json:"balance"`
}

// Schedule builds the table with the first installment one month after start. The
// last installment absorbs rounding so the balance ends at zero.
func Schedule(principal, annualRatePct float64, months int, start time.Time) ([]Installment, error) {
	payment, err := MonthlyPayment(principal, annualRatePct, months)
	if err != nil {
		return nil, err
	}
	r := annualRatePct / 100 / 12

	out := make([]Installment, 0, months)
	balance := principal
	for n := 1; n <= months; n++ {
		interest := round2(balance * r)
		amortized := round2(payment - interest)
		current := payment
		if n == months {
			amortized = round2(balance)
			current = round2(amortized + interest)
		}
		balance = round2(balance - amortized)
		out = append(out, Installment{
			Number:    n,
			DueDate:   start.AddDate(0, n, 0),
			Payment:   current,
			Principal: amortized,
			Interest:  interest,
			Balance:   balance,
		})
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
