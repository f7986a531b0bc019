package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/loan-engine/internal/cache"
	"github.com/segyhp/loan-engine/internal/config"
	"github.com/segyhp/loan-engine/internal/domain"
	"github.com/segyhp/loan-engine/internal/repository"
	customError "github.com/segyhp/loan-engine/pkg/errors"
	"github.com/segyhp/loan-engine/pkg/utils"
)

type LoanService struct {
	LoanRepo repository.LoanRepository
	cache    cache.LoanCache
	config   *config.Config
	logger   *zap.Logger
	clock    func() time.Time
}

func NewLoanService(
	loanRepo repository.LoanRepository,
	loanCache cache.LoanCache,
	config *config.Config,
	logger *zap.Logger,
) *LoanService {
	if loanCache == nil {
		loanCache = cache.NewNoopLoanCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanService{
		LoanRepo: loanRepo,
		cache:    loanCache,
		config:   config,
		logger:   logger,
		clock:    time.Now,
	}
}

// WithClock replaces the time source used for schedules and status changes.
func (s *LoanService) WithClock(clock func() time.Time) *LoanService {
	s.clock = clock
	return s
}

// CreateLoan creates a new loan with its repayment schedule
func (s *LoanService) CreateLoan(ctx context.Context, auth domain.AuthContext, request *domain.CreateLoanRequest) (*domain.Loan, error) {
	userID := strings.TrimSpace(request.UserID)
	if userID == "" {
		userID = auth.UserID
	}

	if !request.Amount.IsPositive() {
		return nil, customError.WrapValidation("amount", "amount must be greater than 0")
	}
	principal, err := domain.MoneyFromDecimal(request.Amount)
	if err != nil {
		return nil, customError.WrapValidation("amount", err.Error())
	}

	if !request.Term.IsPositive() || !request.Term.IsInteger() {
		return nil, customError.WrapValidation("term", "term must be a positive integer")
	}
	maxTerm := s.config.Business.MaxLoanTerm
	if request.Term.GreaterThan(decimal.NewFromInt(int64(maxTerm))) {
		return nil, customError.WrapValidation("term", fmt.Sprintf("term must not exceed %d", maxTerm))
	}

	loan, err := domain.NewLoan(userID, principal, int(request.Term.IntPart()), s.clock())
	if err != nil {
		return nil, err
	}

	if err = s.LoanRepo.Create(ctx, loan); err != nil {
		s.logger.Error("create loan failed",
			zap.String("user_id", userID), zap.String("actor", auth.UserID), zap.Error(err))
		return nil, customError.WrapDatabaseError(err)
	}

	s.logger.Info("loan created",
		zap.String("loan_id", loan.ID.String()),
		zap.String("user_id", loan.UserID),
		zap.String("principal", loan.Principal.String()),
		zap.Int("term", loan.Term),
		zap.String("actor", auth.UserID),
	)

	return loan, nil
}

// UpdateLoanStatus is the administrative status override. Whether it may move
// a loan backwards depends on the configured override policy.
func (s *LoanService) UpdateLoanStatus(ctx context.Context, auth domain.AuthContext, loanID string, status string) (*domain.Loan, error) {
	id, err := parseID("loan_id", loanID)
	if err != nil {
		return nil, err
	}
	target, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	policy := s.config.GetStatusOverridePolicy()
	var (
		changed bool
		from    domain.Status
	)
	loan, err := s.LoanRepo.UpdateLoan(ctx, id, func(l *domain.Loan) error {
		from = l.Status
		var applyErr error
		changed, applyErr = l.OverrideStatus(target, policy, s.clock())
		return applyErr
	})
	if err != nil {
		return nil, s.mapRepoError(err, customError.WrapLoanNotFound(loanID))
	}

	if changed {
		s.invalidate(ctx, loan.ID)
		s.logger.Info("loan status overridden",
			zap.String("loan_id", loanID),
			zap.String("from", string(from)),
			zap.String("to", string(target)),
			zap.String("policy", string(policy)),
			zap.String("actor", auth.UserID),
		)
	}

	return loan, nil
}

// PayInstallment marks a single installment as paid. It never touches the
// parent loan's status.
func (s *LoanService) PayInstallment(ctx context.Context, auth domain.AuthContext, installmentID string) (*domain.Payment, error) {
	id, err := parseID("installment_id", installmentID)
	if err != nil {
		return nil, err
	}

	inst, err := s.LoanRepo.UpdateInstallment(ctx, id, func(i *domain.Installment) error {
		return i.Pay(s.clock())
	})
	if err != nil {
		return nil, s.mapRepoError(err, customError.WrapInstallmentNotFound(installmentID))
	}

	s.invalidate(ctx, inst.LoanID)
	s.logger.Info("installment paid",
		zap.String("installment_id", installmentID),
		zap.String("loan_id", inst.LoanID.String()),
		zap.String("amount", inst.Amount.String()),
		zap.String("actor", auth.UserID),
	)

	return domain.NewPayment(inst), nil
}

// TryMarkLoanPaid sets the loan to PAID if and only if every installment is PAID.
func (s *LoanService) TryMarkLoanPaid(ctx context.Context, auth domain.AuthContext, loanID string) (*domain.Loan, error) {
	id, err := parseID("loan_id", loanID)
	if err != nil {
		return nil, err
	}

	loan, err := s.markPaid(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("loan marked paid", zap.String("loan_id", loanID), zap.String("actor", auth.UserID))
	return loan, nil
}

func (s *LoanService) markPaid(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	loan, err := s.LoanRepo.UpdateLoan(ctx, id, func(l *domain.Loan) error {
		return l.MarkPaid(s.clock())
	})
	if err != nil {
		return nil, s.mapRepoError(err, customError.WrapLoanNotFound(id.String()))
	}

	s.invalidate(ctx, loan.ID)
	return loan, nil
}

// ListLoans returns one page of loans. Non-admin callers only see their own.
func (s *LoanService) ListLoans(ctx context.Context, auth domain.AuthContext, status string, page, pageSize int) (*domain.LoanPage, error) {
	filter := domain.LoanFilter{Page: page, PageSize: pageSize}

	if status != "" {
		st, err := domain.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = st
	}
	if !auth.IsAdmin() {
		filter.UserID = auth.UserID
	}

	switch {
	case filter.Page == 0:
		filter.Page = 1
	case filter.Page < 0:
		return nil, customError.WrapValidation("page", "page must be a positive integer")
	}
	switch {
	case filter.PageSize == 0:
		filter.PageSize = s.config.Business.DefaultPageSize
	case filter.PageSize < 0 || filter.PageSize > s.config.Business.MaxPageSize:
		return nil, customError.WrapValidation("page_size",
			fmt.Sprintf("page_size must be between 1 and %d", s.config.Business.MaxPageSize))
	}
	// (page-1)*page_size must fit in an int offset.
	if maxPage := math.MaxInt/filter.PageSize + 1; filter.Page > maxPage {
		return nil, customError.WrapValidation("page", fmt.Sprintf("page must not exceed %d", maxPage))
	}

	loans, total, err := s.LoanRepo.List(ctx, filter)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return &domain.LoanPage{
		Loans:       loans,
		TotalCount:  total,
		TotalPages:  utils.TotalPages(total, filter.PageSize),
		CurrentPage: filter.Page,
		PageSize:    filter.PageSize,
	}, nil
}

// GetUserLoans returns every loan of userID (the caller when empty).
func (s *LoanService) GetUserLoans(ctx context.Context, auth domain.AuthContext, userID string) ([]*domain.Loan, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = auth.UserID
	}
	if userID == "" {
		return nil, customError.WrapValidation("user_id", "user_id is required")
	}
	if !auth.CanAccess(userID) {
		return nil, customError.WrapNoLoansForUser(userID)
	}

	loans, err := s.LoanRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if len(loans) == 0 {
		return nil, customError.WrapNoLoansForUser(userID)
	}

	return loans, nil
}

// GetLoanDetails returns a loan with its installments. Loans owned by someone
// else read as not found for non-admin callers.
func (s *LoanService) GetLoanDetails(ctx context.Context, auth domain.AuthContext, loanID string) (*domain.Loan, error) {
	id, err := parseID("loan_id", loanID)
	if err != nil {
		return nil, err
	}

	loan, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logger.Warn("loan cache read failed", zap.String("loan_id", loanID), zap.Error(err))
		loan = nil
	}

	if loan == nil {
		loan, err = s.LoanRepo.GetByID(ctx, id)
		if err != nil {
			return nil, s.mapRepoError(err, customError.WrapLoanNotFound(loanID))
		}
		if err := s.cache.Set(ctx, loan); err != nil {
			s.logger.Warn("loan cache write failed", zap.String("loan_id", loanID), zap.Error(err))
		}
	}

	if !auth.CanAccess(loan.UserID) {
		return nil, customError.WrapLoanNotFound(loanID)
	}

	return loan, nil
}

// SettleLoans tries to mark every APPROVED loan as PAID. Loans that still
// have unpaid installments are skipped. It returns the number of loans settled.
func (s *LoanService) SettleLoans(ctx context.Context) (int, error) {
	pageSize := s.config.Business.MaxPageSize
	var candidates []uuid.UUID
	for page := 1; ; page++ {
		loans, total, err := s.LoanRepo.List(ctx, domain.LoanFilter{
			Status:   domain.StatusApproved,
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			return 0, customError.WrapDatabaseError(err)
		}
		for _, loan := range loans {
			candidates = append(candidates, loan.ID)
		}
		if len(loans) == 0 || page >= utils.TotalPages(total, pageSize) {
			break
		}
	}

	var (
		settled int
		errs    []error
	)
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.markPaid(ctx, id); err != nil {
			if customError.IsKind(err, customError.KindConflict) || customError.IsKind(err, customError.KindNotFound) {
				s.logger.Debug("loan not settled", zap.String("loan_id", id.String()), zap.Error(err))
				continue
			}
			s.logger.Error("settle loan failed", zap.String("loan_id", id.String()), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		settled++
		s.logger.Info("loan settled", zap.String("loan_id", id.String()))
	}

	return settled, errors.Join(errs...)
}

func (s *LoanService) invalidate(ctx context.Context, loanID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, loanID); err != nil {
		s.logger.Warn("loan cache invalidation failed",
			zap.String("loan_id", loanID.String()), zap.Error(customError.WrapCacheError(err)))
	}
}

// mapRepoError turns repository failures into business errors. Business
// errors raised inside an update callback pass through unchanged.
func (s *LoanService) mapRepoError(err error, notFound *customError.BusinessError) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	var be *customError.BusinessError
	if errors.As(err, &be) {
		return err
	}
	s.logger.Error("repository operation failed", zap.Error(err))
	return customError.WrapDatabaseError(err)
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, customError.WrapValidation(field, fmt.Sprintf("%s must be a valid UUID", field))
	}
	return id, nil
}
