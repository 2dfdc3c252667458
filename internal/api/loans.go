package api

import (
	"errors"
	"math"
	"net/http"
	"time"

	"escalafin-messaging/internal/loan"

	"github.com/gin-gonic/gin"
)

type CalculateRequest struct {
	Principal  float64   `json:"principal" binding:"required"`
	AnnualRate float64   `json:"annual_rate"`
	TermMonths int       `json:"term_months" binding:"required"`
	StartDate  time.Time `json:"start_date"`
}

// CalculateLoan returns the monthly payment and full amortization table.
func CalculateLoan(c *gin.Context) {
	var req CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start := req.StartDate
	if start.IsZero() {
		start = time.Now()
	}

	payment, err := loan.MonthlyPayment(req.Principal, req.AnnualRate, req.TermMonths)
	if errors.Is(err, loan.ErrInvalidTerms) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	schedule, err := loan.Schedule(req.Principal, req.AnnualRate, req.TermMonths, start)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var totalPaid, totalInterest float64
	for _, in := range schedule {
		totalPaid += in.Payment
		totalInterest += in.Interest
	}
	c.JSON(http.StatusOK, gin.H{
		"monthly_payment": payment,
		"total_paid":      round2(totalPaid),
		"total_interest":  round2(totalInterest),
		"schedule":        schedule,
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
