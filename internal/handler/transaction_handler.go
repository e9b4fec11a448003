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

// TransactionHandler exposes the Transaction Poster over HTTP.
type TransactionHandler struct {
	postings *service.PostingService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(postings *service.PostingService) *TransactionHandler {
	return &TransactionHandler{postings: postings}
}

// PostTransactionRequest is the wire shape for POST /transactions.
type PostTransactionRequest struct {
	AccountID         string           `json:"account_id"`
	TransactionCode   string           `json:"transaction_code"`
	Direction         string           `json:"direction"`
	Amount            decimal.Decimal  `json:"amount"`
	Currency          string           `json:"currency"`
	Description       string           `json:"description"`
	ChannelID         string           `json:"channel_id"`
	TerminalID        *string          `json:"terminal_id"`
	AgentPersonID     *string          `json:"agent_person_id"`
	TransactionDate   time.Time        `json:"transaction_date"`
	ValueDate         time.Time        `json:"value_date"`
	ReferenceNumber   string           `json:"reference_number"`
	ExternalReference *string          `json:"external_reference"`
	GLCode            string           `json:"gl_code"`
}

// Post handles POST /transactions.
func (h *TransactionHandler) Post(c echo.Context) error {
	var req PostTransactionRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}
	accountID, err := domain.ParseEntityID(req.AccountID)
	if err != nil {
		return NewValidationError(c, "invalid account_id", nil)
	}

	var terminalID *domain.EntityID
	if req.TerminalID != nil {
		parsed, err := domain.ParseEntityID(*req.TerminalID)
		if err != nil {
			return NewValidationError(c, "invalid terminal_id", nil)
		}
		terminalID = &parsed
	}

	var agentID *domain.PersonID
	if req.AgentPersonID != nil {
		parsed, err := domain.ParseEntityID(*req.AgentPersonID)
		if err != nil {
			return NewValidationError(c, "invalid agent_person_id", nil)
		}
		agentID = &parsed
	}

	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	tx, err := h.postings.Post(c.Request().Context(), domain.PostTransactionRequest{
		AccountID:         accountID,
		TransactionCode:   req.TransactionCode,
		Direction:         domain.TransactionDirection(req.Direction),
		Amount:            req.Amount,
		Currency:          domain.CurrencyCode(req.Currency),
		Description:       req.Description,
		ChannelID:         domain.ChannelID(req.ChannelID),
		TerminalID:        terminalID,
		AgentPersonID:     agentID,
		TransactionDate:   req.TransactionDate,
		ValueDate:         req.ValueDate,
		ReferenceNumber:   req.ReferenceNumber,
		ExternalReference: req.ExternalReference,
		GLCode:            req.GLCode,
		InitiatedBy:       personID,
	})
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, tx)
}

// PostApprovedRequest is the wire shape for POST /transactions/:id/post-approved.
type PostApprovedRequest struct {
	ChannelID string `json:"channel_id"`
}

// PostApproved handles POST /transactions/:id/post-approved.
func (h *TransactionHandler) PostApproved(c echo.Context) error {
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid transaction id", nil)
	}
	var req PostApprovedRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}
	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	tx, err := h.postings.PostApproved(c.Request().Context(), id, personID, domain.ChannelID(req.ChannelID))
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, tx)
}

// ReverseRequest is the wire shape for POST /transactions/reverse.
type ReverseRequest struct {
	ReferenceNumber string `json:"reference_number"`
	Description     string `json:"description"`
	ReasonID        string `json:"reason_id"`
}

// Reverse handles POST /transactions/reverse.
func (h *TransactionHandler) Reverse(c echo.Context) error {
	var req ReverseRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}
	reasonID, err := domain.ParseEntityID(req.ReasonID)
	if err != nil {
		return NewValidationError(c, "invalid reason_id", nil)
	}
	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	tx, err := h.postings.Reverse(c.Request().Context(), domain.ReversalRequest{
		ReferenceNumber: req.ReferenceNumber,
		Description:     req.Description,
		InitiatedBy:     personID,
		ReasonID:        reasonID,
	})
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, tx)
}

// GetTransaction handles GET /transactions/:id.
func (h *TransactionHandler) GetTransaction(c echo.Context) error {
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid transaction id", nil)
	}
	tx, err := h.postings.GetByID(c.Request().Context(), id)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, tx)
}

// Find handles GET /transactions.
func (h *TransactionHandler) Find(c echo.Context) error {
	var filters domain.TransactionFilters
	if raw := c.QueryParam("account_id"); raw != "" {
		id, err := domain.ParseEntityID(raw)
		if err != nil {
			return NewValidationError(c, "invalid account_id", nil)
		}
		filters.AccountID = &id
	}
	if raw := c.QueryParam("status"); raw != "" {
		status := domain.TransactionStatus(raw)
		filters.Status = &status
	}
	if raw := c.QueryParam("channel_id"); raw != "" {
		channel := domain.ChannelID(raw)
		filters.ChannelID = &channel
	}

	txs, err := h.postings.Find(c.Request().Context(), filters)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, txs)
}
