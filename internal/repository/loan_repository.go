package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/loan-engine/internal/domain"
)

const (
	loanColumns        = `id, user_id, principal_cents, term, status, created_at, updated_at`
	installmentColumns = `id, loan_id, sequence, amount_cents, due_date, status, paid_at, created_at`
)

type loanRepository struct {
	db *sqlx.DB
}

// NewLoanRepository returns a PostgreSQL backed LoanRepository.
func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	loanQuery := `
		INSERT INTO loans (id, user_id, principal_cents, term, status, created_at, updated_at)
		VALUES (:id, :user_id, :principal_cents, :term, :status, :created_at, :updated_at)
	`
	installmentQuery := `
		INSERT INTO installments (id, loan_id, sequence, amount_cents, due_date, status, paid_at, created_at)
		VALUES (:id, :loan_id, :sequence, :amount_cents, :due_date, :status, :paid_at, :created_at)
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.NamedExecContext(ctx, loanQuery, loan); err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}

	if len(loan.Installments) > 0 {
		if _, err = tx.NamedExecContext(ctx, installmentQuery, loan.Installments); err != nil {
			return fmt.Errorf("insert installments: %w", err)
		}
	}

	return tx.Commit()
}

func (r *loanRepository) GetByID(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	var loan domain.Loan
	if err := r.db.GetContext(ctx, &loan, query, loanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	installments, err := selectInstallments(ctx, r.db, loanID)
	if err != nil {
		return nil, err
	}
	loan.Installments = installments

	return &loan, nil
}

func (r *loanRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE user_id = $1
		ORDER BY created_at, id
	`

	var loans []*domain.Loan
	if err := r.db.SelectContext(ctx, &loans, query, userID); err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return loans, nil
	}

	ids := make([]uuid.UUID, 0, len(loans))
	byID := make(map[uuid.UUID]*domain.Loan, len(loans))
	for _, loan := range loans {
		ids = append(ids, loan.ID)
		byID[loan.ID] = loan
	}

	inQuery, args, err := sqlx.In(`
		SELECT `+installmentColumns+`
		FROM installments
		WHERE loan_id IN (?)
		ORDER BY loan_id, sequence
	`, ids)
	if err != nil {
		return nil, err
	}

	var installments []*domain.Installment
	if err := r.db.SelectContext(ctx, &installments, r.db.Rebind(inQuery), args...); err != nil {
		return nil, err
	}
	for _, inst := range installments {
		if loan, ok := byID[inst.LoanID]; ok {
			loan.Installments = append(loan.Installments, inst)
		}
	}

	return loans, nil
}

func (r *loanRepository) List(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, int, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM loans`+where, args...); err != nil {
		return nil, 0, err
	}

	pageArgs := append(args, filter.PageSize, filter.Offset())
	query := fmt.Sprintf(`SELECT %s FROM loans%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		loanColumns, where, len(args)+1, len(args)+2)

	loans := []*domain.Loan{}
	if err := r.db.SelectContext(ctx, &loans, query, pageArgs...); err != nil {
		return nil, 0, err
	}

	return loans, total, nil
}

func (r *loanRepository) UpdateLoan(ctx context.Context, loanID uuid.UUID, fn func(loan *domain.Loan) error) (*domain.Loan, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var loan domain.Loan
	lockQuery := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &loan, lockQuery, loanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if loan.Installments, err = selectInstallments(ctx, tx, loanID); err != nil {
		return nil, err
	}

	before := loan.Status
	if err = fn(&loan); err != nil {
		return nil, err
	}

	if loan.Status != before {
		updateQuery := `UPDATE loans SET status = $2, updated_at = $3 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, updateQuery, loan.ID, loan.Status, loan.UpdatedAt); err != nil {
			return nil, fmt.Errorf("update loan status: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return &loan, nil
}

func (r *loanRepository) UpdateInstallment(ctx context.Context, installmentID uuid.UUID, fn func(inst *domain.Installment) error) (*domain.Installment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// The share lock on the parent loan lets payments on sibling installments
	// run concurrently while serializing them against UpdateLoan.
	lockQuery := `
		SELECT i.id, i.loan_id, i.sequence, i.amount_cents, i.due_date, i.status, i.paid_at, i.created_at
		FROM installments i
		JOIN loans l ON l.id = i.loan_id
		WHERE i.id = $1
		FOR UPDATE OF i
		FOR SHARE OF l
	`

	var inst domain.Installment
	if err = tx.GetContext(ctx, &inst, lockQuery, installmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	before := inst.Status
	if err = fn(&inst); err != nil {
		return nil, err
	}

	if inst.Status != before {
		updateQuery := `UPDATE installments SET status = $2, paid_at = $3 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, updateQuery, inst.ID, inst.Status, inst.PaidAt); err != nil {
			return nil, fmt.Errorf("update installment status: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return &inst, nil
}

func (r *loanRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func selectInstallments(ctx context.Context, q sqlx.QueryerContext, loanID uuid.UUID) ([]*domain.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM installments
		WHERE loan_id = $1
		ORDER BY sequence
	`

	var installments []*domain.Installment
	if err := sqlx.SelectContext(ctx, q, &installments, query, loanID); err != nil {
		return nil, err
	}

	return installments, nil
}
