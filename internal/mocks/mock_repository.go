package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/segyhp/loan-engine/internal/domain"
)

type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) GetByID(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.Loan, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) List(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.Loan), args.Int(1), args.Error(2)
}

// UpdateLoan runs fn against the loan configured as the first return value,
// mirroring a real repository, unless an error is configured.
func (m *MockLoanRepository) UpdateLoan(ctx context.Context, loanID uuid.UUID, fn func(loan *domain.Loan) error) (*domain.Loan, error) {
	args := m.Called(ctx, loanID)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	loan := args.Get(0).(*domain.Loan)
	if err := fn(loan); err != nil {
		return nil, err
	}
	return loan, nil
}

func (m *MockLoanRepository) UpdateInstallment(ctx context.Context, installmentID uuid.UUID, fn func(inst *domain.Installment) error) (*domain.Installment, error) {
	args := m.Called(ctx, installmentID)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	inst := args.Get(0).(*domain.Installment)
	if err := fn(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (m *MockLoanRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockLoanCache struct {
	mock.Mock
}

func (m *MockLoanCache) Get(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanCache) Set(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanCache) Invalidate(ctx context.Context, loanID uuid.UUID) error {
	args := m.Called(ctx, loanID)
	return args.Error(0)
}
