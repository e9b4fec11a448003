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

// HoldHandler exposes the Hold Manager over HTTP.
type HoldHandler struct {
	holds *service.HoldService
}

// NewHoldHandler creates a new HoldHandler.
func NewHoldHandler(holds *service.HoldService) *HoldHandler {
	return &HoldHandler{holds: holds}
}

// callerAuthorizationLevel resolves the authorization tier a caller holds
// for hold placement/release. Resolving a caller's tier from their role is
// the identity registry's job, out of this core's scope, same as the
// ownership check the WebSocket handler defers; the registry presents its
// decision to the core as a header already validated upstream.
func callerAuthorizationLevel(c echo.Context) domain.HoldAuthorizationLevel {
	level := c.Request().Header.Get("X-Authorization-Tier")
	switch domain.HoldAuthorizationLevel(level) {
	case domain.HoldAuthorizationStandard, domain.HoldAuthorizationSupervisor,
		domain.HoldAuthorizationManager, domain.HoldAuthorizationExecutive, domain.HoldAuthorizationExternal:
		return domain.HoldAuthorizationLevel(level)
	default:
		return domain.HoldAuthorizationStandard
	}
}

// PlaceHoldRequest is the wire shape for POST /holds.
type PlaceHoldRequest struct {
	AccountID         string           `json:"account_id"`
	Amount            decimal.Decimal  `json:"amount"`
	HoldType          string           `json:"hold_type"`
	Priority          string           `json:"priority"`
	ReasonID          string           `json:"reason_id"`
	ExpiresAt         *time.Time       `json:"expires_at"`
	SourceReference   string           `json:"source_reference"`
	AdditionalDetails string           `json:"additional_details"`
}

// PlaceHold handles POST /holds.
func (h *HoldHandler) PlaceHold(c echo.Context) error {
	var req PlaceHoldRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}
	accountID, err := domain.ParseEntityID(req.AccountID)
	if err != nil {
		return NewValidationError(c, "invalid account_id", nil)
	}
	reasonID, err := domain.ParseEntityID(req.ReasonID)
	if err != nil {
		return NewValidationError(c, "invalid reason_id", nil)
	}
	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	hold, err := h.holds.PlaceHold(c.Request().Context(), domain.PlaceHoldRequest{
		AccountID:         accountID,
		Amount:            req.Amount,
		HoldType:          domain.HoldType(req.HoldType),
		Priority:          domain.HoldPriority(req.Priority),
		ReasonID:          reasonID,
		ExpiresAt:         req.ExpiresAt,
		SourceReference:   req.SourceReference,
		PlacedByPerson:    personID,
		AdditionalDetails: req.AdditionalDetails,
	}, callerAuthorizationLevel(c))
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, hold)
}

// ReleaseHoldRequest is the wire shape for POST /holds/:id/release.
type ReleaseHoldRequest struct {
	ReleaseAmount *decimal.Decimal `json:"release_amount"`
	ReasonID      string           `json:"reason_id"`
}

// ReleaseHold handles POST /holds/:id/release.
func (h *HoldHandler) ReleaseHold(c echo.Context) error {
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid hold id", nil)
	}
	var req ReleaseHoldRequest
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

	hold, err := h.holds.ReleaseHold(c.Request().Context(), domain.ReleaseHoldRequest{
		HoldID:        id,
		ReleasedBy:    personID,
		ReleaseAmount: req.ReleaseAmount,
		ReasonID:      reasonID,
	})
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, hold)
}

// ModifyHoldRequest is the wire shape for PATCH /holds/:id.
type ModifyHoldRequest struct {
	NewAmount  *decimal.Decimal `json:"new_amount"`
	NewExpiry  *time.Time       `json:"new_expiry"`
	NewReasonID *string         `json:"new_reason_id"`
}

// ModifyHold handles PATCH /holds/:id.
func (h *HoldHandler) ModifyHold(c echo.Context) error {
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid hold id", nil)
	}
	var req ModifyHoldRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}

	var reasonID *domain.EntityID
	if req.NewReasonID != nil {
		parsed, err := domain.ParseEntityID(*req.NewReasonID)
		if err != nil {
			return NewValidationError(c, "invalid new_reason_id", nil)
		}
		reasonID = &parsed
	}

	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	hold, err := h.holds.ModifyHold(c.Request().Context(), id, req.NewAmount, req.NewExpiry, reasonID, personID)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, hold)
}

// CancelHoldRequest is the wire shape for POST /holds/:id/cancel.
type CancelHoldRequest struct {
	ReasonID string `json:"reason_id"`
}

// CancelHold handles POST /holds/:id/cancel.
func (h *HoldHandler) CancelHold(c echo.Context) error {
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid hold id", nil)
	}
	var req CancelHoldRequest
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

	hold, err := h.holds.CancelHold(c.Request().Context(), id, personID, reasonID)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, hold)
}

// GetHold handles GET /holds/:id.
func (h *HoldHandler) GetHold(c echo.Context) error {
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid hold id", nil)
	}
	hold, err := h.holds.GetHoldByID(c.Request().Context(), id)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, hold)
}

// GetActiveHolds handles GET /accounts/:id/holds/active.
func (h *HoldHandler) GetActiveHolds(c echo.Context) error {
	accountID, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid account id", nil)
	}
	holds, err := h.holds.GetActiveHolds(c.Request().Context(), accountID, nil)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, holds)
}

// GetHoldHistory handles GET /accounts/:id/holds/history.
func (h *HoldHandler) GetHoldHistory(c echo.Context) error {
	accountID, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid account id", nil)
	}
	holds, err := h.holds.GetHoldHistory(c.Request().Context(), accountID, nil, nil)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, holds)
}

// Analytics handles GET /accounts/:id/holds/analytics.
func (h *HoldHandler) Analytics(c echo.Context) error {
	accountID, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid account id", nil)
	}
	analytics, err := h.holds.Analytics(c.Request().Context(), accountID)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, analytics)
}

// FindByCourtReference handles GET /holds/by-court-reference/:reference.
func (h *HoldHandler) FindByCourtReference(c echo.Context) error {
	holds, err := h.holds.FindByCourtReference(c.Request().Context(), c.Param("reference"))
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, holds)
}

// PriorityAssignment is the wire shape of one entry of ReorderPrioritiesRequest.
type PriorityAssignment struct {
	HoldID      string `json:"hold_id"`
	NewPriority string `json:"new_priority"`
}

// ReorderPrioritiesRequest is the wire shape for POST /accounts/:id/holds/reorder-priorities.
type ReorderPrioritiesRequest struct {
	Assignments []PriorityAssignment `json:"assignments"`
}

// ReorderPriorities handles POST /accounts/:id/holds/reorder-priorities.
func (h *HoldHandler) ReorderPriorities(c echo.Context) error {
	accountID, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid account id", nil)
	}
	var req ReorderPrioritiesRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}

	assignments := make([]service.HoldPriorityAssignment, 0, len(req.Assignments))
	for _, a := range req.Assignments {
		holdID, err := domain.ParseEntityID(a.HoldID)
		if err != nil {
			return NewValidationError(c, "invalid hold_id", nil)
		}
		assignments = append(assignments, service.HoldPriorityAssignment{
			HoldID:      holdID,
			NewPriority: domain.HoldPriority(a.NewPriority),
		})
	}

	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	holds, err := h.holds.ReorderPriorities(c.Request().Context(), accountID, assignments, personID)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, holds)
}

// BulkReleaseItem is the wire shape of one entry of BulkReleaseRequest.
type BulkReleaseItem struct {
	HoldID        string           `json:"hold_id"`
	ReleaseAmount *decimal.Decimal `json:"release_amount"`
	ReasonID      string           `json:"reason_id"`
}

// BulkReleaseRequest is the wire shape for POST /holds/bulk-release.
type BulkReleaseRequest struct {
	Releases []BulkReleaseItem `json:"releases"`
}

// BulkRelease handles POST /holds/bulk-release.
func (h *HoldHandler) BulkRelease(c echo.Context) error {
	var req BulkReleaseRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}

	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	requests := make([]domain.ReleaseHoldRequest, 0, len(req.Releases))
	for _, item := range req.Releases {
		holdID, err := domain.ParseEntityID(item.HoldID)
		if err != nil {
			return NewValidationError(c, "invalid hold_id", nil)
		}
		reasonID, err := domain.ParseEntityID(item.ReasonID)
		if err != nil {
			return NewValidationError(c, "invalid reason_id", nil)
		}
		requests = append(requests, domain.ReleaseHoldRequest{
			HoldID:        holdID,
			ReleasedBy:    personID,
			ReleaseAmount: item.ReleaseAmount,
			ReasonID:      reasonID,
		})
	}

	result, released, err := h.holds.BulkRelease(c.Request().Context(), requests)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"result": result, "holds": released})
}

// BulkPlaceRequest is the wire shape for POST /holds/bulk-place.
type BulkPlaceRequest struct {
	Holds []PlaceHoldRequest `json:"holds"`
}

// BulkPlace handles POST /holds/bulk-place.
func (h *HoldHandler) BulkPlace(c echo.Context) error {
	var req BulkPlaceRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}
	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	requests := make([]domain.PlaceHoldRequest, 0, len(req.Holds))
	for _, item := range req.Holds {
		accountID, err := domain.ParseEntityID(item.AccountID)
		if err != nil {
			return NewValidationError(c, "invalid account_id", nil)
		}
		reasonID, err := domain.ParseEntityID(item.ReasonID)
		if err != nil {
			return NewValidationError(c, "invalid reason_id", nil)
		}
		requests = append(requests, domain.PlaceHoldRequest{
			AccountID:         accountID,
			Amount:            item.Amount,
			HoldType:          domain.HoldType(item.HoldType),
			Priority:          domain.HoldPriority(item.Priority),
			ReasonID:          reasonID,
			ExpiresAt:         item.ExpiresAt,
			SourceReference:   item.SourceReference,
			PlacedByPerson:    personID,
			AdditionalDetails: item.AdditionalDetails,
		})
	}

	result, created, err := h.holds.BulkPlace(c.Request().Context(), requests, callerAuthorizationLevel(c))
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"result": result, "holds": created})
}

// OverrideForTransactionRequest is the wire shape for
// POST /accounts/:id/holds/override.
type OverrideForTransactionRequest struct {
	TransactionID    string          `json:"transaction_id"`
	RequiredAmount   decimal.Decimal `json:"required_amount"`
	OverridePriority string          `json:"override_priority"`
	ReasonID         string          `json:"reason_id"`
}

// OverrideForTransaction handles POST /accounts/:id/holds/override: an
// authorized decision to bypass one or more Active holds for a single
// posting. The selected holds stay Active.
func (h *HoldHandler) OverrideForTransaction(c echo.Context) error {
	accountID, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid account id", nil)
	}
	var req OverrideForTransactionRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}
	transactionID, err := domain.ParseEntityID(req.TransactionID)
	if err != nil {
		return NewValidationError(c, "invalid transaction_id", nil)
	}
	reasonID, err := domain.ParseEntityID(req.ReasonID)
	if err != nil {
		return NewValidationError(c, "invalid reason_id", nil)
	}
	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	record, err := h.holds.OverrideForTransaction(c.Request().Context(), accountID, transactionID, req.RequiredAmount, domain.HoldPriority(req.OverridePriority), personID, reasonID)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, record)
}
