package loan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthlyPayment(t *testing.T) {
	p, err := MonthlyPayment(10000, 12, 12)
	require.NoError(t, err)
	assert.InDelta(t, 888.49, p, 0.001)

	p, err = MonthlyPayment(1200, 0, 12)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, p, 0.001)

	for _, tc := range []struct {
		principal, rate float64
		months          int
	}{{0, 10, 12}, {1000, -1, 12}, {1000, 10, 0}} {
		_, err := MonthlyPayment(tc.principal, tc.rate, tc.months)
		assert.ErrorIs(t, err, ErrInvalidTerms)
	}
}

func TestScheduleEndsAtZero(t *testing.T) {
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	rows, err := Schedule(10000, 12, 12, start)
	require.NoError(t, err)
	require.Len(t, rows, 12)

	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), rows[0].DueDate)
	assert.InDelta(t, 100.0, rows[0].Interest, 0.001)
	assert.InDelta(t, 788.49, rows[0].Principal, 0.001)
	assert.InDelta(t, 0.0, rows[11].Balance, 0.001)

	var principal float64
	for _, r := range rows {
		principal += r.Principal
	}
	assert.InDelta(t, 10000, principal, 0.01)
}
