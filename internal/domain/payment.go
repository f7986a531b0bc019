package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment is the receipt returned after an installment is paid.
type Payment struct {
	InstallmentID uuid.UUID `json:"installment_id"`
	LoanID        uuid.UUID `json:"loan_id"`
	Sequence      int       `json:"sequence"`
	Amount        Money     `json:"amount"`
	PaidAt        time.Time `json:"paid_at"`
}

func NewPayment(inst *Installment) *Payment {
	p := &Payment{
		InstallmentID: inst.ID,
		LoanID:        inst.LoanID,
		Sequence:      inst.Sequence,
		Amount:        inst.Amount,
	}
	if inst.PaidAt != nil {
		p.PaidAt = *inst.PaidAt
	}
	return p
}
