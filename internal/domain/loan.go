package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	customError "github.com/segyhp/loan-engine/pkg/errors"
)

// Status is shared by loans and installments. Values are ordered
// PENDING < APPROVED < PAID.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusPaid     Status = "PAID"
)

var statusRank = map[Status]int{
	StatusPending:  0,
	StatusApproved: 1,
	StatusPaid:     2,
}

// ParseStatus accepts the enumerated values, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := statusRank[st]; !ok {
		return "", customError.WrapValidation("status",
			fmt.Sprintf("status must be one of PENDING, APPROVED, PAID; got %q", s))
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Before reports whether s comes strictly earlier than other in the lifecycle.
func (s Status) Before(other Status) bool {
	return statusRank[s] < statusRank[other]
}

// OverridePolicy controls what the administrative status override may do.
type OverridePolicy string

const (
	// OverridePermissive allows any enumerated status, including moving backwards.
	OverridePermissive OverridePolicy = "permissive"
	// OverrideMonotonic rejects transitions that move a loan backwards.
	OverrideMonotonic OverridePolicy = "monotonic"
)

func ParseOverridePolicy(s string) (OverridePolicy, error) {
	switch p := OverridePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case OverridePermissive, OverrideMonotonic:
		return p, nil
	default:
		return "", fmt.Errorf("unknown status override policy %q", s)
	}
}

// Loan is the aggregate root. It owns its installments.
type Loan struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	UserID       string         `json:"user_id" db:"user_id"`
	Principal    Money          `json:"principal" db:"principal_cents"`
	Term         int            `json:"term" db:"term"`
	Status       Status         `json:"status" db:"status"`
	Installments []*Installment `json:"installments,omitempty" db:"-"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// NewLoan builds a PENDING loan together with its full repayment schedule.
func NewLoan(userID string, principal Money, term int, now time.Time) (*Loan, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, customError.WrapValidation("user_id", "user_id is required")
	}

	installments, err := GenerateSchedule(principal, term, now)
	if err != nil {
		return nil, err
	}

	loan := &Loan{
		ID:           uuid.New(),
		UserID:       userID,
		Principal:    principal,
		Term:         term,
		Status:       StatusPending,
		Installments: installments,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	for _, inst := range installments {
		inst.ID = uuid.New()
		inst.LoanID = loan.ID
		inst.CreatedAt = loan.CreatedAt
	}

	return loan, nil
}

// UnpaidCount returns the number of installments not yet PAID.
func (l *Loan) UnpaidCount() int {
	n := 0
	for _, inst := range l.Installments {
		if inst.Status != StatusPaid {
			n++
		}
	}
	return n
}

// AllInstallmentsPaid is the all-paid predicate.
func (l *Loan) AllInstallmentsPaid() bool {
	return len(l.Installments) > 0 && l.UnpaidCount() == 0
}

// ScheduledTotal sums the installment amounts.
func (l *Loan) ScheduledTotal() Money {
	var total Money
	for _, inst := range l.Installments {
		total += inst.Amount
	}
	return total
}

// MarkPaid moves the loan to PAID if every installment is PAID. On failure
// the loan is left untouched.
func (l *Loan) MarkPaid(now time.Time) error {
	if l.Status == StatusPaid {
		return customError.WrapLoanAlreadyPaid(l.ID.String())
	}
	if unpaid := l.UnpaidCount(); unpaid > 0 || len(l.Installments) == 0 {
		return customError.WrapInstallmentsOutstanding(l.ID.String(), unpaid)
	}
	l.Status = StatusPaid
	l.UpdatedAt = now.UTC()
	return nil
}

// OverrideStatus applies an administrative status change. It reports whether
// the loan was modified; setting the current status again is a no-op.
func (l *Loan) OverrideStatus(target Status, policy OverridePolicy, now time.Time) (bool, error) {
	if !target.Valid() {
		return false, customError.WrapValidation("status",
			fmt.Sprintf("status must be one of PENDING, APPROVED, PAID; got %q", target))
	}
	if target == l.Status {
		return false, nil
	}
	if policy == OverrideMonotonic && target.Before(l.Status) {
		return false, customError.WrapStatusRegression(l.ID.String(), string(l.Status), string(target))
	}
	l.Status = target
	l.UpdatedAt = now.UTC()
	return true, nil
}

// DTOs for requests and responses

// CreateLoanRequest accepts amount and term as JSON numbers or numeric strings.
type CreateLoanRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Term   decimal.Decimal `json:"term" validate:"gt=0"`
}

type UpdateLoanStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// LoanFilter selects loans for listing. An empty Status means any status.
type LoanFilter struct {
	Status   Status
	UserID   string
	Page     int
	PageSize int
}

// Offset is the number of rows skipped before the requested page.
func (f LoanFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

type LoanPage struct {
	Loans       []*Loan `json:"loans"`
	TotalCount  int     `json:"total_count"`
	TotalPages  int     `json:"total_pages"`
	CurrentPage int     `json:"current_page"`
	PageSize    int     `json:"page_size"`
}
