package memory

import (
	"context"
	"sync"
	"time"

	"github.com/meridianledger/core/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionRepository is an in-memory domain.TransactionRepository.
// PostWithBalanceUpdate and ReverseWithBalanceUpdate take the package
// mutex for their whole body, standing in for the single serializable
// database transaction a real adapter would use.
type TransactionRepository struct {
	mu           sync.Mutex
	transactions map[domain.EntityID]*domain.Transaction
	byReference  map[string]domain.EntityID
	accounts     *AccountRepository
}

// NewTransactionRepository creates a new in-memory TransactionRepository
// sharing the same account store so the atomic posting unit can update
// both in one critical section.
func NewTransactionRepository(accounts *AccountRepository) *TransactionRepository {
	return &TransactionRepository{
		transactions: make(map[domain.EntityID]*domain.Transaction),
		byReference:  make(map[string]domain.EntityID),
		accounts:     accounts,
	}
}

func cloneTx(t *domain.Transaction) *domain.Transaction {
	cp := *t
	return &cp
}

// Create stores a new transaction with Version 1.
func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(tx)
}

func (r *TransactionRepository) insertLocked(tx *domain.Transaction) (*domain.Transaction, error) {
	if existing, ok := r.byReference[tx.ReferenceNumber]; ok && existing != tx.ID {
		return nil, &domain.DuplicateReferenceError{ReferenceNumber: tx.ReferenceNumber}
	}
	if tx.ID.IsNil() {
		tx.ID = domain.NewEntityID()
	}
	tx.Version = 1
	stored := cloneTx(tx)
	r.transactions[tx.ID] = stored
	r.byReference[tx.ReferenceNumber] = tx.ID
	return cloneTx(stored), nil
}

// GetByID returns a transaction by id.
func (r *TransactionRepository) GetByID(ctx context.Context, id domain.EntityID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, domain.NewNotFoundError("Transaction", id)
	}
	return cloneTx(t), nil
}

// GetByReferenceNumber returns a transaction by its caller-supplied
// reference number.
func (r *TransactionRepository) GetByReferenceNumber(ctx context.Context, referenceNumber string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byReference[referenceNumber]
	if !ok {
		return nil, domain.NewNotFoundError("Transaction", domain.NilEntityID)
	}
	return cloneTx(r.transactions[id]), nil
}

// GetByExternalReference dedupes an inbound transaction by channel,
// value date, and an external system's own reference. Returns (nil, nil)
// when no match exists — this is a lookup for idempotency, not an
// existence assertion.
func (r *TransactionRepository) GetByExternalReference(ctx context.Context, channel domain.ChannelID, valueDate time.Time, externalReference string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transactions {
		if t.ChannelID == channel && t.ValueDate.Equal(valueDate) && t.ExternalReference != nil && *t.ExternalReference == externalReference {
			return cloneTx(t), nil
		}
	}
	return nil, nil
}

// Find applies the given filters across every stored transaction.
func (r *TransactionRepository) Find(ctx context.Context, filters domain.TransactionFilters) ([]*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Transaction
	for _, t := range r.transactions {
		if filters.AccountID != nil && t.AccountID != *filters.AccountID {
			continue
		}
		if filters.Status != nil && t.Status != *filters.Status {
			continue
		}
		if filters.TerminalID != nil && (t.TerminalID == nil || *t.TerminalID != *filters.TerminalID) {
			continue
		}
		if filters.AgentPersonID != nil && (t.AgentPersonID == nil || *t.AgentPersonID != *filters.AgentPersonID) {
			continue
		}
		if filters.ChannelID != nil && t.ChannelID != *filters.ChannelID {
			continue
		}
		if filters.ValueDateFrom != nil && t.ValueDate.Before(*filters.ValueDateFrom) {
			continue
		}
		if filters.ValueDateTo != nil && t.ValueDate.After(*filters.ValueDateTo) {
			continue
		}
		out = append(out, cloneTx(t))
	}
	return out, nil
}

// FindLastCustomerTransaction returns the most recent non-system
// transaction on an account, used to determine genuine customer
// activity independent of system-generated postings.
func (r *TransactionRepository) FindLastCustomerTransaction(ctx context.Context, accountID domain.EntityID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.Transaction
	for _, t := range r.transactions {
		if t.AccountID != accountID || t.ChannelID.IsSystemChannel() {
			continue
		}
		if latest == nil || t.TransactionDate.After(latest.TransactionDate) {
			latest = t
		}
	}
	if latest == nil {
		return nil, domain.NewNotFoundError("Transaction", accountID)
	}
	return cloneTx(latest), nil
}

// UpdateStatus persists a status (and optional approval status) change,
// enforcing the optimistic-concurrency check.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id domain.EntityID, status domain.TransactionStatus, approval *domain.ApprovalStatus, expectedVersion int64) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, domain.NewNotFoundError("Transaction", id)
	}
	if t.Version != expectedVersion {
		return nil, &domain.ConcurrentModificationError{Entity: "Transaction", ID: id}
	}
	t.Status = status
	if approval != nil {
		t.ApprovalStatus = approval
	}
	t.Version++
	return cloneTx(t), nil
}

// PostWithBalanceUpdate performs the account balance write and the
// transaction insert as one atomic unit.
func (r *TransactionRepository) PostWithBalanceUpdate(ctx context.Context, account *domain.Account, newCurrent, newAvailable decimal.Decimal, accountExpectedVersion int64, tx *domain.Transaction) (*domain.Transaction, *domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byReference[tx.ReferenceNumber]; ok && existing != tx.ID {
		return nil, nil, &domain.DuplicateReferenceError{ReferenceNumber: tx.ReferenceNumber}
	}
	updatedAccount, err := r.accounts.UpdateBalance(ctx, account.ID, newCurrent, newAvailable, accountExpectedVersion)
	if err != nil {
		return nil, nil, err
	}
	postedTx, err := r.insertLocked(tx)
	if err != nil {
		return nil, nil, err
	}
	return postedTx, updatedAccount, nil
}

// ReverseWithBalanceUpdate performs the inverse balance write, the
// original's status flip to Reversed, and the counter-transaction
// insert, all as one atomic unit.
func (r *TransactionRepository) ReverseWithBalanceUpdate(ctx context.Context, account *domain.Account, newCurrent, newAvailable decimal.Decimal, accountExpectedVersion int64, original *domain.Transaction, originalExpectedVersion int64, reversal *domain.Transaction) (*domain.Transaction, *domain.Transaction, *domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	storedOriginal, ok := r.transactions[original.ID]
	if !ok {
		return nil, nil, nil, domain.NewNotFoundError("Transaction", original.ID)
	}
	if storedOriginal.Version != originalExpectedVersion {
		return nil, nil, nil, &domain.ConcurrentModificationError{Entity: "Transaction", ID: original.ID}
	}
	if existing, ok := r.byReference[reversal.ReferenceNumber]; ok && existing != reversal.ID {
		return nil, nil, nil, &domain.DuplicateReferenceError{ReferenceNumber: reversal.ReferenceNumber}
	}

	updatedAccount, err := r.accounts.UpdateBalance(ctx, account.ID, newCurrent, newAvailable, accountExpectedVersion)
	if err != nil {
		return nil, nil, nil, err
	}

	storedOriginal.Status = domain.TransactionStatusReversed
	storedOriginal.ReversedBy = &reversal.ID
	storedOriginal.Version++

	createdReversal, err := r.insertLocked(reversal)
	if err != nil {
		return nil, nil, nil, err
	}

	return createdReversal, cloneTx(storedOriginal), updatedAccount, nil
}

func dailyVolume(transactions map[domain.EntityID]*domain.Transaction, date time.Time, match func(*domain.Transaction) bool, key string) *domain.DailyVolume {
	vol := &domain.DailyVolume{Key: key, Date: date}
	for _, t := range transactions {
		if !match(t) || !sameDay(t.ValueDate, date) {
			continue
		}
		vol.Count++
		if t.Direction == domain.DirectionCredit {
			vol.CreditTotal = vol.CreditTotal.Add(t.Amount)
		} else {
			vol.DebitTotal = vol.DebitTotal.Add(t.Amount)
		}
	}
	return vol
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// CalculateDailyVolumeByTerminal aggregates credit/debit totals for one
// terminal on one value date.
func (r *TransactionRepository) CalculateDailyVolumeByTerminal(ctx context.Context, terminalID domain.EntityID, date time.Time) (*domain.DailyVolume, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return dailyVolume(r.transactions, date, func(t *domain.Transaction) bool {
		return t.TerminalID != nil && *t.TerminalID == terminalID
	}, terminalID.String()), nil
}

// CalculateDailyVolumeByBranch aggregates credit/debit totals for every
// account domiciled at branchID. Branch resolution requires the account
// store, so this reference adapter scans accounts and then transactions
// for theirs.
func (r *TransactionRepository) CalculateDailyVolumeByBranch(ctx context.Context, branchID domain.EntityID, date time.Time) (*domain.DailyVolume, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts.mu.Lock()
	branchAccounts := make(map[domain.EntityID]bool)
	for id, a := range r.accounts.accounts {
		if a.DomicileBranchID == branchID {
			branchAccounts[id] = true
		}
	}
	r.accounts.mu.Unlock()
	return dailyVolume(r.transactions, date, func(t *domain.Transaction) bool {
		return branchAccounts[t.AccountID]
	}, branchID.String()), nil
}

// CalculateDailyVolumeByNetwork aggregates credit/debit totals for every
// transaction tagged with the given card network's channel.
func (r *TransactionRepository) CalculateDailyVolumeByNetwork(ctx context.Context, networkID string, date time.Time) (*domain.DailyVolume, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return dailyVolume(r.transactions, date, func(t *domain.Transaction) bool {
		return string(t.ChannelID) == networkID
	}, networkID), nil
}
