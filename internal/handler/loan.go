package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-engine/internal/domain"
	"github.com/segyhp/loan-engine/internal/service"
	customError "github.com/segyhp/loan-engine/pkg/errors"
	"github.com/segyhp/loan-engine/pkg/response"
)

type LoanHandler struct {
	service   *service.LoanService
	validator *validator.Validate
}

func NewLoanHandler(service *service.LoanService) *LoanHandler {
	return &LoanHandler{
		service:   service,
		validator: newValidator(),
	}
}

// newValidator reports json field names and compares decimals numerically.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// RegisterRoutes mounts the loan API on r. Every route requires a valid token.
func (h *LoanHandler) RegisterRoutes(r *mux.Router, jwtSecret []byte) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(response.JSONMiddleware, AuthMiddleware(jwtSecret))

	users := RequireRole(domain.RoleUser, domain.RoleAdmin)
	admins := RequireRole(domain.RoleAdmin)
	borrowers := RequireRole(domain.RoleUser)

	api.Handle("/loans", users(http.HandlerFunc(h.CreateLoan))).Methods(http.MethodPost)
	api.Handle("/loans", admins(http.HandlerFunc(h.ListLoans))).Methods(http.MethodGet)
	api.Handle("/loans/{loanId}", users(http.HandlerFunc(h.GetLoanDetails))).Methods(http.MethodGet)
	api.Handle("/loans/{loanId}/status", admins(http.HandlerFunc(h.UpdateLoanStatus))).Methods(http.MethodPut)
	api.Handle("/loans/{loanId}/mark-paid", users(http.HandlerFunc(h.MarkLoanPaid))).Methods(http.MethodPut)
	api.Handle("/user/loans", users(http.HandlerFunc(h.GetUserLoans))).Methods(http.MethodGet)
	api.Handle("/installments/{installmentId}/pay", borrowers(http.HandlerFunc(h.PayInstallment))).Methods(http.MethodPost)
}

// CreateLoan handles POST /api/v1/loans
func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFrom(r.Context())

	var req domain.CreateLoanRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID != "" && req.UserID != auth.UserID && !auth.IsAdmin() {
		response.Forbidden(w, "cannot create a loan for another user")
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), auth, &req)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Created(w, loan)
}

// ListLoans handles GET /api/v1/loans
func (h *LoanHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFrom(r.Context())
	query := r.URL.Query()

	page, err := intParam(query.Get("page"), "page")
	if err != nil {
		response.FromError(w, err)
		return
	}
	pageSize, err := intParam(firstOf(query.Get("pageSize"), query.Get("page_size")), "page_size")
	if err != nil {
		response.FromError(w, err)
		return
	}

	result, err := h.service.ListLoans(r.Context(), auth, query.Get("status"), page, pageSize)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, result)
}

// GetLoanDetails handles GET /api/v1/loans/{loanId}
func (h *LoanHandler) GetLoanDetails(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFrom(r.Context())

	loan, err := h.service.GetLoanDetails(r.Context(), auth, mux.Vars(r)["loanId"])
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, loan)
}

// UpdateLoanStatus handles PUT /api/v1/loans/{loanId}/status
func (h *LoanHandler) UpdateLoanStatus(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFrom(r.Context())

	var req domain.UpdateLoanStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	loan, err := h.service.UpdateLoanStatus(r.Context(), auth, mux.Vars(r)["loanId"], req.Status)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, loan)
}

// MarkLoanPaid handles PUT /api/v1/loans/{loanId}/mark-paid
func (h *LoanHandler) MarkLoanPaid(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFrom(r.Context())

	loan, err := h.service.TryMarkLoanPaid(r.Context(), auth, mux.Vars(r)["loanId"])
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, loan)
}

// GetUserLoans handles GET /api/v1/user/loans
func (h *LoanHandler) GetUserLoans(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFrom(r.Context())
	query := r.URL.Query()

	loans, err := h.service.GetUserLoans(r.Context(), auth, firstOf(query.Get("userId"), query.Get("user_id")))
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, loans)
}

// PayInstallment handles POST /api/v1/installments/{installmentId}/pay
func (h *LoanHandler) PayInstallment(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFrom(r.Context())

	payment, err := h.service.PayInstallment(r.Context(), auth, mux.Vars(r)["installmentId"])
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, payment)
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (h *LoanHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "invalid JSON body", err)
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		var valErrs validator.ValidationErrors
		if errors.As(err, &valErrs) && len(valErrs) > 0 {
			fe := valErrs[0]
			response.FromError(w, customError.WrapValidation(fe.Field(), validationMessage(fe)))
			return false
		}
		response.FromError(w, customError.WrapValidation("body", err.Error()))
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

func intParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, customError.WrapValidation(field, field+" must be an integer")
	}
	return n, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
