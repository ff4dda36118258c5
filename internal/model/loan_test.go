package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFineCents(t *testing.T) {
	due := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("on time costs nothing", func(t *testing.T) {
		assert.EqualValues(t, 0, FineCents(due, due, 50))
		assert.EqualValues(t, 0, FineCents(due, due.Add(-time.Hour), 50))
	})

	t.Run("five days late", func(t *testing.T) {
		assert.EqualValues(t, 250, FineCents(due, due.Add(5*24*time.Hour), 50))
	})

	t.Run("partial day rounds up", func(t *testing.T) {
		assert.EqualValues(t, 50, FineCents(due, due.Add(time.Minute), 50))
		assert.EqualValues(t, 100, FineCents(due, due.Add(25*time.Hour), 50))
	})
}

func TestLoanStatus(t *testing.T) {
	due := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := Loan{BorrowedAt: due.AddDate(0, 0, -14), DueAt: due}

	assert.Equal(t, LoanStatusBorrowed, l.Status(due.Add(-time.Hour)))
	assert.Equal(t, LoanStatusBorrowed, l.Status(due)) // due instant is still on time
	assert.Equal(t, LoanStatusOverdue, l.Status(due.Add(time.Second)))

	back := due.Add(48 * time.Hour)
	l.ReturnedAt = &back
	assert.Equal(t, LoanStatusReturned, l.Status(back.Add(time.Hour)))
}

func TestAccruedFineCents(t *testing.T) {
	due := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := Loan{DueAt: due}

	// outstanding loans project the fine from current lateness
	assert.EqualValues(t, 0, l.AccruedFineCents(due, 50))
	assert.EqualValues(t, 150, l.AccruedFineCents(due.Add(3*24*time.Hour), 50))

	// returned loans report the stored fine, whatever the clock says
	back := due.Add(24 * time.Hour)
	l.ReturnedAt = &back
	l.FineCents = 50
	assert.EqualValues(t, 50, l.AccruedFineCents(due.Add(90*24*time.Hour), 50))
}
