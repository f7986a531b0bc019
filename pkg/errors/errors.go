package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrLoanNotFound            = errors.New("loan not found")
	ErrInstallmentNotFound     = errors.New("installment not found")
	ErrInstallmentAlreadyPaid  = errors.New("installment already paid")
	ErrLoanAlreadyPaid         = errors.New("loan already paid")
	ErrInstallmentsOutstanding = errors.New("not all installments paid")
	ErrStatusRegression        = errors.New("status transition moves backwards")
	ErrNoLoansForUser          = errors.New("no loans found for user")
)

// Kind groups business errors into the categories callers can act on.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindPersistence Kind = "persistence"
)

// BusinessError represents a business logic error
type BusinessError struct {
	Kind    Kind
	Code    string
	Field   string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(kind Kind, code, message string, err error) *BusinessError {
	return &BusinessError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation              = "VALIDATION_ERROR"
	ErrCodeLoanNotFound            = "LOAN_NOT_FOUND"
	ErrCodeInstallmentNotFound     = "INSTALLMENT_NOT_FOUND"
	ErrCodeNoLoansForUser          = "NO_LOANS_FOR_USER"
	ErrCodeInstallmentPaid         = "INSTALLMENT_ALREADY_PAID"
	ErrCodeLoanAlreadyPaid         = "LOAN_ALREADY_PAID"
	ErrCodeInstallmentsOutstanding = "INSTALLMENTS_OUTSTANDING"
	ErrCodeStatusRegression        = "STATUS_REGRESSION"
	ErrCodeDatabaseError           = "DATABASE_ERROR"
	ErrCodeCacheError              = "CACHE_ERROR"
)

// KindOf reports the kind of err, or "" if err is not a BusinessError.
func KindOf(err error) Kind {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsKind reports whether err is a BusinessError of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func WrapValidation(field, message string) *BusinessError {
	e := NewBusinessError(KindValidation, ErrCodeValidation, message, ErrInvalidInput)
	e.Field = field
	return e
}

func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		KindNotFound,
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapInstallmentNotFound(installmentID string) *BusinessError {
	return NewBusinessError(
		KindNotFound,
		ErrCodeInstallmentNotFound,
		fmt.Sprintf("Installment with ID %s not found", installmentID),
		ErrInstallmentNotFound,
	)
}

func WrapNoLoansForUser(userID string) *BusinessError {
	return NewBusinessError(
		KindNotFound,
		ErrCodeNoLoansForUser,
		fmt.Sprintf("No loans found for user %s", userID),
		ErrNoLoansForUser,
	)
}

func WrapInstallmentAlreadyPaid(installmentID string) *BusinessError {
	return NewBusinessError(
		KindConflict,
		ErrCodeInstallmentPaid,
		fmt.Sprintf("Installment with ID %s is already paid", installmentID),
		ErrInstallmentAlreadyPaid,
	)
}

func WrapLoanAlreadyPaid(loanID string) *BusinessError {
	return NewBusinessError(
		KindConflict,
		ErrCodeLoanAlreadyPaid,
		fmt.Sprintf("Loan with ID %s is already paid", loanID),
		ErrLoanAlreadyPaid,
	)
}

func WrapInstallmentsOutstanding(loanID string, unpaid int) *BusinessError {
	return NewBusinessError(
		KindConflict,
		ErrCodeInstallmentsOutstanding,
		fmt.Sprintf("Loan with ID %s has %d unpaid installment(s)", loanID, unpaid),
		ErrInstallmentsOutstanding,
	)
}

func WrapStatusRegression(loanID, from, to string) *BusinessError {
	return NewBusinessError(
		KindConflict,
		ErrCodeStatusRegression,
		fmt.Sprintf("Loan with ID %s cannot move from %s back to %s", loanID, from, to),
		ErrStatusRegression,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		KindPersistence,
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		KindPersistence,
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
