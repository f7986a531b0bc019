package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/segyhp/loan-engine/internal/domain"
)

// memoryLoanRepository keeps aggregates in process. A single mutex gives every
// operation serializable isolation; callers only ever see copies.
type memoryLoanRepository struct {
	mu           sync.RWMutex
	loans        map[uuid.UUID]*domain.Loan
	installments map[uuid.UUID]uuid.UUID // installment id -> loan id
}

// NewMemoryLoanRepository returns an in-memory LoanRepository.
func NewMemoryLoanRepository() LoanRepository {
	return &memoryLoanRepository{
		loans:        make(map[uuid.UUID]*domain.Loan),
		installments: make(map[uuid.UUID]uuid.UUID),
	}
}

func (r *memoryLoanRepository) Create(_ context.Context, loan *domain.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.loans[loan.ID]; exists {
		return fmt.Errorf("loan %s already exists", loan.ID)
	}
	for _, inst := range loan.Installments {
		if _, exists := r.installments[inst.ID]; exists {
			return fmt.Errorf("installment %s already exists", inst.ID)
		}
	}

	stored := cloneLoan(loan, true)
	r.loans[stored.ID] = stored
	for _, inst := range stored.Installments {
		r.installments[inst.ID] = stored.ID
	}

	return nil
}

func (r *memoryLoanRepository) GetByID(_ context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loan, ok := r.loans[loanID]
	if !ok {
		return nil, ErrNotFound
	}

	return cloneLoan(loan, true), nil
}

func (r *memoryLoanRepository) GetByUserID(_ context.Context, userID string) ([]*domain.Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loans := make([]*domain.Loan, 0)
	for _, loan := range r.loans {
		if loan.UserID == userID {
			loans = append(loans, cloneLoan(loan, true))
		}
	}
	sort.Slice(loans, func(i, j int) bool {
		if loans[i].CreatedAt.Equal(loans[j].CreatedAt) {
			return loans[i].ID.String() < loans[j].ID.String()
		}
		return loans[i].CreatedAt.Before(loans[j].CreatedAt)
	})

	return loans, nil
}

func (r *memoryLoanRepository) List(_ context.Context, filter domain.LoanFilter) ([]*domain.Loan, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*domain.Loan, 0)
	for _, loan := range r.loans {
		if filter.Status != "" && loan.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && loan.UserID != filter.UserID {
			continue
		}
		matched = append(matched, loan)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := filter.Offset()
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	if end < start {
		end = start
	}

	page := make([]*domain.Loan, 0, end-start)
	for _, loan := range matched[start:end] {
		page = append(page, cloneLoan(loan, false))
	}

	return page, total, nil
}

func (r *memoryLoanRepository) UpdateLoan(_ context.Context, loanID uuid.UUID, fn func(loan *domain.Loan) error) (*domain.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.loans[loanID]
	if !ok {
		return nil, ErrNotFound
	}

	working := cloneLoan(stored, true)
	if err := fn(working); err != nil {
		return nil, err
	}

	// Only the loan row is writable through this path.
	stored.Status = working.Status
	stored.UpdatedAt = working.UpdatedAt

	return cloneLoan(stored, true), nil
}

func (r *memoryLoanRepository) UpdateInstallment(_ context.Context, installmentID uuid.UUID, fn func(inst *domain.Installment) error) (*domain.Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	loanID, ok := r.installments[installmentID]
	if !ok {
		return nil, ErrNotFound
	}

	var stored *domain.Installment
	for _, inst := range r.loans[loanID].Installments {
		if inst.ID == installmentID {
			stored = inst
			break
		}
	}
	if stored == nil {
		return nil, ErrNotFound
	}

	working := cloneInstallment(stored)
	if err := fn(working); err != nil {
		return nil, err
	}

	stored.Status = working.Status
	stored.PaidAt = working.PaidAt

	return cloneInstallment(stored), nil
}

func (r *memoryLoanRepository) Ping(context.Context) error {
	return nil
}

func cloneLoan(loan *domain.Loan, withInstallments bool) *domain.Loan {
	c := *loan
	c.Installments = nil
	if withInstallments {
		c.Installments = make([]*domain.Installment, 0, len(loan.Installments))
		for _, inst := range loan.Installments {
			c.Installments = append(c.Installments, cloneInstallment(inst))
		}
	}
	return &c
}

func cloneInstallment(inst *domain.Installment) *domain.Installment {
	c := *inst
	if inst.PaidAt != nil {
		paidAt := *inst.PaidAt
		c.PaidAt = &paidAt
	}
	return &c
}
