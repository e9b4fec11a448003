package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/meridianledger/core/internal/domain"
)

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error types
const (
	ErrorTypeValidation   = "https://meridianledger.dev/errors/validation"
	ErrorTypeNotFound     = "https://meridianledger.dev/errors/not-found"
	ErrorTypeUnauthorized = "https://meridianledger.dev/errors/unauthorized"
	ErrorTypeForbidden    = "https://meridianledger.dev/errors/forbidden"
	ErrorTypeConflict     = "https://meridianledger.dev/errors/conflict"
	ErrorTypeUnprocessable = "https://meridianledger.dev/errors/unprocessable-entity"
	ErrorTypeUnavailable  = "https://meridianledger.dev/errors/dependency-unavailable"
	ErrorTypeInternal     = "https://meridianledger.dev/errors/internal"
)

// NewValidationError creates a validation error response
func NewValidationError(c echo.Context, detail string, errors []ValidationError) error {
	return c.JSON(http.StatusBadRequest, ProblemDetails{
		Type:     ErrorTypeValidation,
		Title:    "Validation Error",
		Status:   http.StatusBadRequest,
		Detail:   detail,
		Instance: c.Request().URL.Path,
		Errors:   errors,
	})
}

// NewNotFoundError creates a not found error response
func NewNotFoundError(c echo.Context, detail string) error {
	return c.JSON(http.StatusNotFound, ProblemDetails{
		Type:     ErrorTypeNotFound,
		Title:    "Not Found",
		Status:   http.StatusNotFound,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewUnauthorizedError creates an unauthorized error response
func NewUnauthorizedError(c echo.Context, detail string) error {
	return c.JSON(http.StatusUnauthorized, ProblemDetails{
		Type:     ErrorTypeUnauthorized,
		Title:    "Unauthorized",
		Status:   http.StatusUnauthorized,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewForbiddenError creates a forbidden error response
func NewForbiddenError(c echo.Context, detail string) error {
	return c.JSON(http.StatusForbidden, ProblemDetails{
		Type:     ErrorTypeForbidden,
		Title:    "Forbidden",
		Status:   http.StatusForbidden,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewConflictError creates a conflict error response
func NewConflictError(c echo.Context, detail string) error {
	return c.JSON(http.StatusConflict, ProblemDetails{
		Type:     ErrorTypeConflict,
		Title:    "Conflict",
		Status:   http.StatusConflict,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewInternalError creates an internal error response
func NewInternalError(c echo.Context, detail string) error {
	return c.JSON(http.StatusInternalServerError, ProblemDetails{
		Type:     ErrorTypeInternal,
		Title:    "Internal Server Error",
		Status:   http.StatusInternalServerError,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewUnprocessableEntityError creates an unprocessable entity error response,
// used for domain rule violations that are well-formed requests but cannot
// be carried out (insufficient funds, an account in the wrong state, a
// workflow that hasn't met its approval criterion).
func NewUnprocessableEntityError(c echo.Context, detail string) error {
	return c.JSON(http.StatusUnprocessableEntity, ProblemDetails{
		Type:     ErrorTypeUnprocessable,
		Title:    "Unprocessable Entity",
		Status:   http.StatusUnprocessableEntity,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewServiceUnavailableError creates a 503 response for failures reaching an
// external collaborator (the product catalog, the calendar service).
func NewServiceUnavailableError(c echo.Context, detail string) error {
	return c.JSON(http.StatusServiceUnavailable, ProblemDetails{
		Type:     ErrorTypeUnavailable,
		Title:    "Service Unavailable",
		Status:   http.StatusServiceUnavailable,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// MapDomainError maps a service-layer error to the appropriate ProblemDetails
// response. Centralizing this keeps every handler's error branch identical.
func MapDomainError(c echo.Context, err error) error {
	return mapDomainError(c, err)
}

func mapDomainError(c echo.Context, err error) error {
	var validationErr *domain.ValidationError
	var notFoundErr *domain.NotFoundError
	var productErr *domain.InvalidProductCodeError
	var notTransactionalErr *domain.AccountNotTransactionalError
	var insufficientFundsErr *domain.InsufficientFundsError
	var concurrentModErr *domain.ConcurrentModificationError
	var unauthorizedErr *domain.UnauthorizedOperationError
	var workflowErr *domain.WorkflowViolationError
	var externalErr *domain.ExternalDependencyUnavailableError
	var repoErr *domain.RepositoryError

	switch {
	case errors.As(err, &validationErr):
		return NewValidationError(c, err.Error(), []ValidationError{{Field: validationErr.Field, Message: validationErr.Message}})
	case errors.As(err, &productErr):
		return NewValidationError(c, err.Error(), []ValidationError{{Field: "product_code", Message: "not recognized by the product catalog"}})
	case errors.As(err, &notFoundErr):
		return NewNotFoundError(c, err.Error())
	case errors.Is(err, domain.ErrWorkflowNotFound), errors.Is(err, domain.ErrHoldNotFound), errors.Is(err, domain.ErrAuditNotFound):
		return NewNotFoundError(c, err.Error())
	case errors.As(err, &unauthorizedErr):
		return NewForbiddenError(c, err.Error())
	case errors.As(err, &concurrentModErr):
		return NewConflictError(c, err.Error())
	case errors.As(err, &insufficientFundsErr):
		return NewUnprocessableEntityError(c, err.Error())
	case errors.As(err, &notTransactionalErr):
		return NewUnprocessableEntityError(c, err.Error())
	case errors.As(err, &workflowErr):
		return NewUnprocessableEntityError(c, err.Error())
	case errors.As(err, &externalErr):
		return NewServiceUnavailableError(c, err.Error())
	case errors.As(err, &repoErr):
		return NewInternalError(c, "an internal error occurred")
	default:
		return NewInternalError(c, "an internal error occurred")
	}
}
