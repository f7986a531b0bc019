package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-engine/internal/domain"
	customError "github.com/segyhp/loan-engine/pkg/errors"
)

var contractNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// runLoanRepositoryContract exercises behavior every LoanRepository must provide.
func runLoanRepositoryContract(t *testing.T, newRepo func(t *testing.T) LoanRepository) {
	t.Run("create and get by id", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		loan := mustLoan(t, "user-1", "100.00", 3, contractNow)

		require.NoError(t, repo.Create(ctx, loan))

		got, err := repo.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, loan.ID, got.ID)
		assert.Equal(t, "user-1", got.UserID)
		assert.Equal(t, domain.MustMoney("100.00"), got.Principal)
		assert.Equal(t, 3, got.Term)
		assert.Equal(t, domain.StatusPending, got.Status)
		require.Len(t, got.Installments, 3)
		assert.Equal(t, got.Principal, got.ScheduledTotal())
		for i, inst := range got.Installments {
			assert.Equal(t, i+1, inst.Sequence)
			assert.Equal(t, loan.Installments[i].ID, inst.ID)
			assert.Equal(t, loan.Installments[i].Amount, inst.Amount)
			assert.Equal(t, loan.Installments[i].DueDate.Format("2006-01-02"), inst.DueDate.Format("2006-01-02"))
			assert.Equal(t, domain.StatusPending, inst.Status)
		}
	})

	t.Run("get by id missing", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.GetByID(context.Background(), uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("returned loans are detached copies", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		loan := mustLoan(t, "user-1", "10.00", 2, contractNow)
		require.NoError(t, repo.Create(ctx, loan))

		got, err := repo.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		got.Status = domain.StatusPaid
		got.Installments[0].Status = domain.StatusPaid

		again, err := repo.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, again.Status)
		assert.Equal(t, domain.StatusPending, again.Installments[0].Status)
	})

	t.Run("update installment persists only on success", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		loan := mustLoan(t, "user-1", "100.00", 3, contractNow)
		require.NoError(t, repo.Create(ctx, loan))
		target := loan.Installments[1].ID

		boom := errors.New("boom")
		_, err := repo.UpdateInstallment(ctx, target, func(inst *domain.Installment) error {
			inst.Status = domain.StatusPaid
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := repo.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Installments[1].Status)

		paid, err := repo.UpdateInstallment(ctx, target, func(inst *domain.Installment) error {
			return inst.Pay(contractNow)
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, paid.Status)
		assert.Equal(t, loan.ID, paid.LoanID)

		got, err = repo.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, got.Installments[1].Status)
		require.NotNil(t, got.Installments[1].PaidAt)
		assert.True(t, contractNow.Equal(*got.Installments[1].PaidAt))
		assert.Equal(t, domain.StatusPending, got.Installments[0].Status)
		assert.Equal(t, domain.StatusPending, got.Status)
	})

	t.Run("update installment missing", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.UpdateInstallment(context.Background(), uuid.New(), func(*domain.Installment) error {
			t.Fatal("callback must not run for a missing installment")
			return nil
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update loan applies the all-paid rule", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		loan := mustLoan(t, "user-1", "100.00", 3, contractNow)
		require.NoError(t, repo.Create(ctx, loan))

		for _, inst := range loan.Installments[:2] {
			_, err := repo.UpdateInstallment(ctx, inst.ID, func(i *domain.Installment) error { return i.Pay(contractNow) })
			require.NoError(t, err)
		}

		_, err := repo.UpdateLoan(ctx, loan.ID, func(l *domain.Loan) error { return l.MarkPaid(contractNow) })
		assert.True(t, customError.IsKind(err, customError.KindConflict))

		got, err := repo.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)

		_, err = repo.UpdateInstallment(ctx, loan.Installments[2].ID, func(i *domain.Installment) error { return i.Pay(contractNow) })
		require.NoError(t, err)

		updated, err := repo.UpdateLoan(ctx, loan.ID, func(l *domain.Loan) error { return l.MarkPaid(contractNow) })
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, updated.Status)

		got, err = repo.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, got.Status)
	})

	t.Run("update loan missing", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.UpdateLoan(context.Background(), uuid.New(), func(*domain.Loan) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list filters and paginates", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		var ids []uuid.UUID
		for i := 0; i < 5; i++ {
			loan := mustLoan(t, "user-list", "50.00", 2, contractNow.Add(time.Duration(i)*time.Minute))
			require.NoError(t, repo.Create(ctx, loan))
			ids = append(ids, loan.ID)
		}
		_, err := repo.UpdateLoan(ctx, ids[0], func(l *domain.Loan) error {
			_, err := l.OverrideStatus(domain.StatusApproved, domain.OverridePermissive, contractNow)
			return err
		})
		require.NoError(t, err)

		page, total, err := repo.List(ctx, domain.LoanFilter{Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page, 2)
		assert.Equal(t, ids[4], page[0].ID, "newest first")
		assert.Empty(t, page[0].Installments)

		page, total, err = repo.List(ctx, domain.LoanFilter{Page: 3, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page, 1)
		assert.Equal(t, ids[0], page[0].ID)

		page, total, err = repo.List(ctx, domain.LoanFilter{Status: domain.StatusApproved, Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, page, 1)
		assert.Equal(t, ids[0], page[0].ID)

		page, total, err = repo.List(ctx, domain.LoanFilter{Page: 9, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Empty(t, page)
	})

	t.Run("get by user id", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		first := mustLoan(t, "user-a", "10.00", 1, contractNow)
		second := mustLoan(t, "user-a", "20.00", 2, contractNow.Add(time.Hour))
		other := mustLoan(t, "user-b", "30.00", 3, contractNow)
		for _, l := range []*domain.Loan{first, second, other} {
			require.NoError(t, repo.Create(ctx, l))
		}

		loans, err := repo.GetByUserID(ctx, "user-a")
		require.NoError(t, err)
		require.Len(t, loans, 2)
		assert.Equal(t, first.ID, loans[0].ID)
		assert.Equal(t, second.ID, loans[1].ID)
		assert.Len(t, loans[0].Installments, 1)
		assert.Len(t, loans[1].Installments, 2)

		loans, err = repo.GetByUserID(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, loans)
	})

	t.Run("concurrent payments on one installment have a single winner", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		loan := mustLoan(t, "user-1", "100.00", 2, contractNow)
		require.NoError(t, repo.Create(ctx, loan))
		target := loan.Installments[0].ID

		const callers = 10
		var (
			wg        sync.WaitGroup
			wins      atomic.Int32
			conflicts atomic.Int32
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.UpdateInstallment(ctx, target, func(inst *domain.Installment) error {
					return inst.Pay(contractNow)
				})
				switch {
				case err == nil:
					wins.Add(1)
				case customError.IsKind(err, customError.KindConflict):
					conflicts.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(callers-1), conflicts.Load())
	})

	t.Run("concurrent payments on sibling installments are all visible", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		loan := mustLoan(t, "user-1", "100.00", 6, contractNow)
		require.NoError(t, repo.Create(ctx, loan))

		var wg sync.WaitGroup
		errs := make(chan error, len(loan.Installments))
		for _, inst := range loan.Installments {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				_, err := repo.UpdateInstallment(ctx, id, func(i *domain.Installment) error { return i.Pay(contractNow) })
				errs <- err
			}(inst.ID)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		updated, err := repo.UpdateLoan(ctx, loan.ID, func(l *domain.Loan) error { return l.MarkPaid(contractNow) })
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, updated.Status)
	})
}

func mustLoan(t *testing.T, userID, principal string, term int, now time.Time) *domain.Loan {
	t.Helper()
	loan, err := domain.NewLoan(userID, domain.MustMoney(principal), term, now)
	require.NoError(t, err)
	return loan
}
