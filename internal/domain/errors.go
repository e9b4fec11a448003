package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors for simple, context-free failures. Structured failures
// that must identify an offending entity or field are typed errors below.
var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrHoldNotFound     = errors.New("hold not found")
	ErrAuditNotFound    = errors.New("audit entry not found")
)

// ValidationError reports that an input violated a domain invariant. It
// always names the offending field so a caller can correct it without
// needing to know this core's internals.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NotFoundError reports that a targeted row is absent.
type NotFoundError struct {
	Entity string
	ID     EntityID
}

func NewNotFoundError(entity string, id EntityID) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// InvalidProductCodeError reports that the product catalog did not
// resolve a product code.
type InvalidProductCodeError struct {
	ProductCode string
}

func (e *InvalidProductCodeError) Error() string {
	return fmt.Sprintf("invalid product code: %s", e.ProductCode)
}

// AccountNotTransactionalError reports that an account's status forbids
// the requested mutation.
type AccountNotTransactionalError struct {
	AccountID EntityID
	Status    AccountStatus
}

func (e *AccountNotTransactionalError) Error() string {
	return fmt.Sprintf("account %s is not transactional in status %s", e.AccountID, e.Status)
}

// InsufficientFundsError reports that a debit would drive available
// balance below its floor.
type InsufficientFundsError struct {
	AccountID EntityID
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on account %s: requested %s, available %s",
		e.AccountID, e.Requested.String(), e.Available.String())
}

// DuplicateReferenceError reports that a transaction's reference number
// collides with one already stored. Reference numbers are caller-supplied
// and must be unique across the ledger.
type DuplicateReferenceError struct {
	ReferenceNumber string
}

func (e *DuplicateReferenceError) Error() string {
	return fmt.Sprintf("duplicate reference number: %s", e.ReferenceNumber)
}

// ConcurrentModificationError reports a version/hash mismatch surviving a
// single storage-layer retry.
type ConcurrentModificationError struct {
	Entity string
	ID     EntityID
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("concurrent modification of %s %s", e.Entity, e.ID)
}

// UnauthorizedOperationError reports that the caller-supplied authorizer
// does not meet the required tier.
type UnauthorizedOperationError struct {
	Operation string
	Required  string
}

func (e *UnauthorizedOperationError) Error() string {
	return fmt.Sprintf("unauthorized: %s requires authorization tier %s", e.Operation, e.Required)
}

// WorkflowViolationError reports that an operation is illegal for the
// workflow's current state.
type WorkflowViolationError struct {
	WorkflowID EntityID
	Reason     string
}

func (e *WorkflowViolationError) Error() string {
	return fmt.Sprintf("workflow violation on %s: %s", e.WorkflowID, e.Reason)
}

// ExternalDependencyUnavailableError reports that an outbound collaborator
// call failed or exceeded its caller-supplied deadline.
type ExternalDependencyUnavailableError struct {
	Dependency string
	Cause      error
}

func (e *ExternalDependencyUnavailableError) Error() string {
	return fmt.Sprintf("external dependency unavailable: %s: %v", e.Dependency, e.Cause)
}

func (e *ExternalDependencyUnavailableError) Unwrap() error {
	return e.Cause
}

// RepositoryError wraps a lower-level storage failure that carries no
// business meaning of its own.
type RepositoryError struct {
	Op    string
	Cause error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository error during %s: %v", e.Op, e.Cause)
}

func (e *RepositoryError) Unwrap() error {
	return e.Cause
}
