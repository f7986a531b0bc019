package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/segyhp/loan-engine/internal/domain"
)

// ErrNotFound is returned when the requested loan or installment does not exist.
var ErrNotFound = errors.New("record not found")

// LoanRepository defines the interface for loan aggregate storage. A loan and
// its installments are one consistency boundary.
type LoanRepository interface {
	// Create persists a loan and all of its installments atomically
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan with its installments ordered by sequence
	GetByID(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error)

	// GetByUserID retrieves every loan owned by userID, with installments
	GetByUserID(ctx context.Context, userID string) ([]*domain.Loan, error)

	// List returns one page of loans (without installments) and the total
	// number of loans matching the filter
	List(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, int, error)

	// UpdateLoan loads the aggregate under an exclusive per-loan lock and
	// calls fn with it. The loan status is persisted only if fn returns nil;
	// an error from fn is returned unchanged and nothing is written.
	UpdateLoan(ctx context.Context, loanID uuid.UUID, fn func(loan *domain.Loan) error) (*domain.Loan, error)

	// UpdateInstallment loads one installment under an exclusive row lock
	// (holding the parent loan in share mode) and calls fn with it. Changes
	// are persisted only if fn returns nil.
	UpdateInstallment(ctx context.Context, installmentID uuid.UUID, fn func(inst *domain.Installment) error) (*domain.Installment, error)

	// Ping checks the storage is reachable
	Ping(ctx context.Context) error
}
