package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/meridianledger/core/internal/domain"
	"github.com/meridianledger/core/internal/middleware"
	"github.com/meridianledger/core/internal/service"
)

// AccountHandler exposes the Account Ledger over HTTP.
type AccountHandler struct {
	accounts *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// CreateAccountRequest is the wire shape for POST /accounts.
type CreateAccountRequest struct {
	ProductCode      string           `json:"product_code"`
	Variant          string           `json:"variant"`
	SigningCondition string           `json:"signing_condition"`
	Currency         string           `json:"currency"`
	DomicileBranchID string           `json:"domicile_branch_id"`
	OpenDate         time.Time        `json:"open_date"`
	OverdraftLimit   *decimal.Decimal `json:"overdraft_limit"`
	Loan             *domain.LoanTerms `json:"loan"`
}

// CreateAccount handles POST /accounts.
func (h *AccountHandler) CreateAccount(c echo.Context) error {
	var req CreateAccountRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}

	branchID, err := domain.ParseEntityID(req.DomicileBranchID)
	if err != nil {
		return NewValidationError(c, "invalid domicile_branch_id", []ValidationError{{Field: "domicile_branch_id", Message: "must be a valid identifier"}})
	}

	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	account, err := h.accounts.CreateAccount(c.Request().Context(), service.CreateAccountInput{
		ProductCode:      req.ProductCode,
		Variant:          domain.AccountVariant(req.Variant),
		SigningCondition: domain.SigningCondition(req.SigningCondition),
		Currency:         domain.CurrencyCode(req.Currency),
		DomicileBranchID: branchID,
		OpenDate:         req.OpenDate,
		OverdraftLimit:   req.OverdraftLimit,
		Loan:             req.Loan,
		OpenedBy:         personID,
	})
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, account)
}

// GetAccount handles GET /accounts/:id.
func (h *AccountHandler) GetAccount(c echo.Context) error {
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid account id", nil)
	}
	account, err := h.accounts.FindByID(c.Request().Context(), id)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, account)
}

// FindByCustomer handles GET /accounts?customer_id=....
func (h *AccountHandler) FindByCustomer(c echo.Context) error {
	customerID, err := domain.ParseEntityID(c.QueryParam("customer_id"))
	if err != nil {
		return NewValidationError(c, "invalid customer_id", nil)
	}
	accounts, err := h.accounts.FindByCustomer(c.Request().Context(), customerID)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, accounts)
}

// FindByProduct handles GET /accounts/by-product/:product_code.
func (h *AccountHandler) FindByProduct(c echo.Context) error {
	accounts, err := h.accounts.FindByProduct(c.Request().Context(), c.Param("product_code"))
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, accounts)
}

// FindByStatus handles GET /accounts/by-status/:status.
func (h *AccountHandler) FindByStatus(c echo.Context) error {
	accounts, err := h.accounts.FindByStatus(c.Request().Context(), domain.AccountStatus(c.Param("status")))
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, accounts)
}

// UpdateStatusRequest is the wire shape for PATCH /accounts/:id/status.
type UpdateStatusRequest struct {
	NewStatus         string `json:"new_status"`
	ReasonID          string `json:"reason_id"`
	AdditionalContext string `json:"additional_context"`
	SystemTriggered   bool   `json:"system_triggered"`
	ExpectedVersion   int64  `json:"expected_version"`
}

// UpdateStatus handles PATCH /accounts/:id/status.
func (h *AccountHandler) UpdateStatus(c echo.Context) error {
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid account id", nil)
	}
	var req UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}

	var reasonID domain.EntityID
	if req.ReasonID != "" {
		reasonID, err = domain.ParseEntityID(req.ReasonID)
		if err != nil {
			return NewValidationError(c, "invalid reason_id", []ValidationError{{Field: "reason_id", Message: "must be a valid identifier"}})
		}
	}

	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	account, err := h.accounts.UpdateStatus(c.Request().Context(), service.UpdateStatusInput{
		AccountID:         id,
		NewStatus:         domain.AccountStatus(req.NewStatus),
		ReasonID:          reasonID,
		AdditionalContext: req.AdditionalContext,
		ChangedBy:         personID,
		SystemTriggered:   req.SystemTriggered,
		ExpectedVersion:   req.ExpectedVersion,
	})
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, account)
}

// GetStatusHistory handles GET /accounts/:id/status-history.
func (h *AccountHandler) GetStatusHistory(c echo.Context) error {
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid account id", nil)
	}
	history, err := h.accounts.GetStatusHistory(c.Request().Context(), id)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, history)
}
