// Package memory provides in-process, mutex-guarded implementations of
// every domain repository interface. They exist for tests and for
// running the core without a database, and are promoted from the
// teacher's map-backed mock pattern (internal/testutil/mocks.go) rather
// than hand-rolled from scratch.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/meridianledger/core/internal/domain"
	"github.com/shopspring/decimal"
)

// AccountRepository is an in-memory domain.AccountRepository.
type AccountRepository struct {
	mu             sync.Mutex
	accounts       map[domain.EntityID]*domain.Account
	statusHistory  map[domain.EntityID][]*domain.StatusChangeRecord
}

// NewAccountRepository creates a new in-memory AccountRepository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts:      make(map[domain.EntityID]*domain.Account),
		statusHistory: make(map[domain.EntityID][]*domain.StatusChangeRecord),
	}
}

func clone(a *domain.Account) *domain.Account {
	cp := *a
	return &cp
}

// Create stores a new account with Version 1.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.ID.IsNil() {
		account.ID = domain.NewEntityID()
	}
	account.Version = 1
	r.accounts[account.ID] = clone(account)
	return clone(r.accounts[account.ID]), nil
}

// FindByID returns the account for id.
func (r *AccountRepository) FindByID(ctx context.Context, id domain.EntityID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.NewNotFoundError("Account", id)
	}
	return clone(a), nil
}

// FindByCustomer has no customer-account linkage in this reference
// adapter (ownership lives in the identity registry); it always
// returns an empty slice.
func (r *AccountRepository) FindByCustomer(ctx context.Context, customerID domain.PersonID) ([]*domain.Account, error) {
	return nil, nil
}

// FindByProduct returns every account of the given product code.
func (r *AccountRepository) FindByProduct(ctx context.Context, productCode string) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Account
	for _, a := range r.accounts {
		if a.ProductCode == productCode {
			out = append(out, clone(a))
		}
	}
	return out, nil
}

// FindByStatus returns every account currently in the given status.
func (r *AccountRepository) FindByStatus(ctx context.Context, status domain.AccountStatus) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Account
	for _, a := range r.accounts {
		if a.Status == status {
			out = append(out, clone(a))
		}
	}
	return out, nil
}

// FindDormancyCandidates returns Active accounts whose last activity
// date is at least thresholdDays before referenceDate.
func (r *AccountRepository) FindDormancyCandidates(ctx context.Context, referenceDate time.Time, thresholdDays int32) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := referenceDate.AddDate(0, 0, -int(thresholdDays))
	var out []*domain.Account
	for _, a := range r.accounts {
		if a.Status == domain.AccountStatusActive && !a.LastActivityDate.After(cutoff) {
			out = append(out, clone(a))
		}
	}
	return out, nil
}

// FindPendingClosure returns every account in PendingClosure status.
func (r *AccountRepository) FindPendingClosure(ctx context.Context) ([]*domain.Account, error) {
	return r.FindByStatus(ctx, domain.AccountStatusPendingClosure)
}

// FindInterestBearing returns every non-Closed Savings/Current account
// and every Loan account with outstanding principal.
func (r *AccountRepository) FindInterestBearing(ctx context.Context) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Account
	for _, a := range r.accounts {
		if a.Status == domain.AccountStatusClosed {
			continue
		}
		switch a.Variant {
		case domain.AccountVariantSavings, domain.AccountVariantCurrent:
			out = append(out, clone(a))
		case domain.AccountVariantLoan:
			if a.Loan != nil && a.Loan.OutstandingPrincipal.GreaterThan(decimal.Zero) {
				out = append(out, clone(a))
			}
		}
	}
	return out, nil
}

// UpdateBalance writes new current/available balances, enforcing the
// optimistic-concurrency check against expectedVersion.
func (r *AccountRepository) UpdateBalance(ctx context.Context, accountID domain.EntityID, newCurrent, newAvailable decimal.Decimal, expectedVersion int64) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return nil, domain.NewNotFoundError("Account", accountID)
	}
	if a.Version != expectedVersion {
		return nil, &domain.ConcurrentModificationError{Entity: "Account", ID: accountID}
	}
	a.CurrentBalance = newCurrent
	a.AvailableBalance = newAvailable
	a.Version++
	a.LastUpdatedAt = time.Now().UTC()
	return clone(a), nil
}

// UpdateStatus transitions status and appends a StatusChangeRecord,
// enforcing the optimistic-concurrency check.
func (r *AccountRepository) UpdateStatus(ctx context.Context, accountID domain.EntityID, newStatus domain.AccountStatus, reasonID domain.EntityID, additionalContext string, changedBy domain.PersonID, systemTriggered bool, expectedVersion int64) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return nil, domain.NewNotFoundError("Account", accountID)
	}
	if a.Version != expectedVersion {
		return nil, &domain.ConcurrentModificationError{Entity: "Account", ID: accountID}
	}
	now := time.Now().UTC()
	record := &domain.StatusChangeRecord{
		ID:                domain.NewEntityID(),
		AccountID:         accountID,
		OldStatus:         a.Status,
		NewStatus:         newStatus,
		ReasonID:          reasonID,
		AdditionalContext: additionalContext,
		ChangedBy:         changedBy,
		ChangedAt:         now,
		SystemTriggered:   systemTriggered,
	}
	r.statusHistory[accountID] = append(r.statusHistory[accountID], record)

	a.Status = newStatus
	a.StatusChange = domain.StatusChangeAudit{ByPerson: changedBy, ReasonID: reasonID, Timestamp: now}
	a.Version++
	a.LastUpdatedAt = now
	a.UpdatedByPerson = changedBy
	return clone(a), nil
}

// UpdateLastActivityDate sets the last-activity timestamp.
func (r *AccountRepository) UpdateLastActivityDate(ctx context.Context, accountID domain.EntityID, date time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return domain.NewNotFoundError("Account", accountID)
	}
	a.LastActivityDate = date
	return nil
}

// UpdateAccruedInterest overwrites accrued interest.
func (r *AccountRepository) UpdateAccruedInterest(ctx context.Context, accountID domain.EntityID, newAccruedInterest decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return domain.NewNotFoundError("Account", accountID)
	}
	a.AccruedInterest = newAccruedInterest
	return nil
}

// ResetAccruedInterest zeroes accrued interest.
func (r *AccountRepository) ResetAccruedInterest(ctx context.Context, accountID domain.EntityID) error {
	return r.UpdateAccruedInterest(ctx, accountID, decimal.Zero)
}

// GetStatusHistory returns the append-only status-change trail.
func (r *AccountRepository) GetStatusHistory(ctx context.Context, accountID domain.EntityID) ([]*domain.StatusChangeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.StatusChangeRecord(nil), r.statusHistory[accountID]...), nil
}
