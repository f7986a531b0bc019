package domain

import (
	"time"

	"github.com/google/uuid"

	customError "github.com/segyhp/loan-engine/pkg/errors"
	"github.com/segyhp/loan-engine/pkg/utils"
)

// Installment is one scheduled repayment of a loan.
type Installment struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	LoanID    uuid.UUID  `json:"loan_id" db:"loan_id"`
	Sequence  int        `json:"sequence" db:"sequence"`
	Amount    Money      `json:"amount" db:"amount_cents"`
	DueDate   time.Time  `json:"due_date" db:"due_date"`
	Status    Status     `json:"status" db:"status"` // PENDING, APPROVED, PAID
	PaidAt    *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Pay transitions the installment to PAID. A second payment is a conflict.
func (i *Installment) Pay(now time.Time) error {
	if i.Status == StatusPaid {
		return customError.WrapInstallmentAlreadyPaid(i.ID.String())
	}
	paidAt := now.UTC()
	i.Status = StatusPaid
	i.PaidAt = &paidAt
	return nil
}

// GenerateSchedule splits principal into term weekly installments. Every
// installment gets floor(principal/term) cents and the last one also absorbs
// the remainder, so the amounts always sum to principal exactly. The first
// installment is due 7 days after the calendar date of start.
//
// IDs are left zero; NewLoan assigns them.
func GenerateSchedule(principal Money, term int, start time.Time) ([]*Installment, error) {
	if principal <= 0 {
		return nil, customError.WrapValidation("amount", "amount must be greater than 0")
	}
	if term <= 0 {
		return nil, customError.WrapValidation("term", "term must be a positive integer")
	}
	if int64(principal) < int64(term) {
		return nil, customError.WrapValidation("term", "term exceeds the number of cents in amount")
	}

	base := int64(principal) / int64(term)
	remainder := int64(principal) - base*int64(term)

	startDate := utils.StartOfDay(start)
	installments := make([]*Installment, 0, term)
	for week := 1; week <= term; week++ {
		installments = append(installments, &Installment{
			Sequence: week,
			Amount:   Money(base),
			DueDate:  utils.CalculateDueDate(startDate, week),
			Status:   StatusPending,
		})
	}
	installments[term-1].Amount += Money(remainder)

	return installments, nil
}
