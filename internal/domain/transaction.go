package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionDirection is Credit (increases current/available balance)
// or Debit (decreases it).
type TransactionDirection string

const (
	DirectionCredit TransactionDirection = "Credit"
	DirectionDebit  TransactionDirection = "Debit"
)

// Opposite returns the flipped direction, used when building a reversal.
func (d TransactionDirection) Opposite() TransactionDirection {
	if d == DirectionCredit {
		return DirectionDebit
	}
	return DirectionCredit
}

// TransactionStatus is the posting lifecycle state.
type TransactionStatus string

const (
	TransactionStatusPending          TransactionStatus = "Pending"
	TransactionStatusPosted           TransactionStatus = "Posted"
	TransactionStatusReversed         TransactionStatus = "Reversed"
	TransactionStatusFailed           TransactionStatus = "Failed"
	TransactionStatusAwaitingApproval TransactionStatus = "AwaitingApproval"
	TransactionStatusApprovalRejected TransactionStatus = "ApprovalRejected"
)

// ApprovalStatus is present on a Transaction iff RequiresApproval is
// true.
type ApprovalStatus string

const (
	ApprovalStatusPending           ApprovalStatus = "Pending"
	ApprovalStatusApproved          ApprovalStatus = "Approved"
	ApprovalStatusRejected          ApprovalStatus = "Rejected"
	ApprovalStatusPartiallyApproved ApprovalStatus = "PartiallyApproved"
)

// IsTerminal reports whether the approval status can no longer change.
// PartiallyApproved is explicitly non-terminal: more approvals or a
// rejection can still arrive.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// ChannelID identifies the origination channel of a transaction. System
// channels are exempt from the last-activity-date update
// and from dormant-account debit blocking.
type ChannelID string

const (
	ChannelSystem       ChannelID = "System"
	ChannelAutoInterest ChannelID = "AutoInterest"
	ChannelAutoFee      ChannelID = "AutoFee"
	ChannelTeller       ChannelID = "Teller"
	ChannelATM          ChannelID = "ATM"
	ChannelOnline       ChannelID = "Online"
	ChannelMobile       ChannelID = "Mobile"
	ChannelCard         ChannelID = "Card"
)

// IsSystemChannel reports whether this channel is exempt from customer-
// facing activity bookkeeping.
func (c ChannelID) IsSystemChannel() bool {
	return c == ChannelSystem || c == ChannelAutoInterest || c == ChannelAutoFee
}

// MaxTransactionDescriptionLength and MaxExternalReferenceLength bound
// the inline strings on a Transaction.
const (
	MaxTransactionDescriptionLength = 500
	MaxExternalReferenceLength      = 120
)

// Transaction is a single monetary movement against an account. It
// is never deleted; corrections are expressed as reversal transactions.
type Transaction struct {
	ID                EntityID
	AccountID         EntityID
	TransactionCode   string
	Direction         TransactionDirection
	Amount            decimal.Decimal
	Currency          CurrencyCode
	Description       string
	ChannelID         ChannelID
	TerminalID        *EntityID
	AgentPersonID     *PersonID
	TransactionDate   time.Time
	ValueDate         time.Time
	Status            TransactionStatus
	ReferenceNumber   string
	ExternalReference *string
	GLCode            string
	RequiresApproval  bool
	ApprovalStatus    *ApprovalStatus
	RiskScore         int32
	CreatedAt         time.Time

	// ReversalOf is set on a reversal transaction, pointing back at the
	// original. ReversedBy is set on the original once reversed.
	ReversalOf *EntityID
	ReversedBy *EntityID

	Version     int64
	ContentHash uint64
}

// Validate enforces the structural invariants that don't require
// loading the owning account (currency match is checked by the service
// layer once the account is loaded).
func (t *Transaction) Validate() error {
	if err := RequirePositive("amount", t.Amount); err != nil {
		return err
	}
	if err := ValidateCurrencyCode(t.Currency); err != nil {
		return err
	}
	switch t.Direction {
	case DirectionCredit, DirectionDebit:
	default:
		return NewValidationError("direction", "unrecognized transaction direction")
	}
	if len([]rune(t.Description)) > MaxTransactionDescriptionLength {
		return NewValidationError("description", "exceeds maximum length")
	}
	if t.ExternalReference != nil && len([]rune(*t.ExternalReference)) > MaxExternalReferenceLength {
		return NewValidationError("external_reference", "exceeds maximum length")
	}
	if t.TransactionCode == "" {
		return NewValidationError("transaction_code", "must not be empty")
	}
	if t.ReferenceNumber == "" {
		return NewValidationError("reference_number", "must not be empty")
	}
	return nil
}

// PostTransactionRequest is the input to PostingService.Post.
type PostTransactionRequest struct {
	// TransactionID, if set, is used as the new transaction's id
	// instead of generating one. Callers that authorized a hold
	// override in advance (HoldService.OverrideForTransaction) must
	// pre-assign the id so the override record and the posted
	// transaction agree on which posting it applies to.
	TransactionID     *EntityID
	AccountID         EntityID
	TransactionCode   string
	Direction         TransactionDirection
	Amount            decimal.Decimal
	Currency          CurrencyCode
	Description       string
	ChannelID         ChannelID
	TerminalID        *EntityID
	AgentPersonID     *PersonID
	TransactionDate   time.Time
	ValueDate         time.Time
	ReferenceNumber   string
	ExternalReference *string
	GLCode            string
	InitiatedBy       PersonID
}

// ReversalRequest is the input to PostingService.Reverse.
type ReversalRequest struct {
	ReferenceNumber string
	Description     string
	InitiatedBy     PersonID
	ReasonID        EntityID
}

// TransactionFilters narrows TransactionRepository query calls.
type TransactionFilters struct {
	AccountID     *EntityID
	Status        *TransactionStatus
	TerminalID    *EntityID
	AgentPersonID *PersonID
	ChannelID     *ChannelID
	ValueDateFrom *time.Time
	ValueDateTo   *time.Time
}

// DailyVolume is the result of a calculate_daily_volume_by_* query.
type DailyVolume struct {
	Key         string // terminal id, branch id, or network id, per call
	Date        time.Time
	CreditTotal decimal.Decimal
	DebitTotal  decimal.Decimal
	Count       int
}

// TransactionRepository is the persistence contract PostingService
// depends on. All queries are side-effect free.
type TransactionRepository interface {
	Create(ctx context.Context, tx *Transaction) (*Transaction, error)

	GetByID(ctx context.Context, id EntityID) (*Transaction, error)
	GetByReferenceNumber(ctx context.Context, referenceNumber string) (*Transaction, error)
	GetByExternalReference(ctx context.Context, channel ChannelID, valueDate time.Time, externalReference string) (*Transaction, error)
	Find(ctx context.Context, filters TransactionFilters) ([]*Transaction, error)
	FindLastCustomerTransaction(ctx context.Context, accountID EntityID) (*Transaction, error)

	// UpdateStatus persists a status change (Posted, Reversed, Failed,
	// AwaitingApproval, ApprovalRejected) and, when non-nil, a new
	// ApprovalStatus, guarded by expectedVersion.
	UpdateStatus(ctx context.Context, id EntityID, status TransactionStatus, approval *ApprovalStatus, expectedVersion int64) (*Transaction, error)

	// PostWithBalanceUpdate performs the atomic unit spanning the
	// account balance write and the transaction insert in one commit.
	// It never mutates holds.
	PostWithBalanceUpdate(ctx context.Context, account *Account, newCurrent, newAvailable decimal.Decimal, accountExpectedVersion int64, tx *Transaction) (*Transaction, *Account, error)

	// ReverseWithBalanceUpdate performs the atomic unit for a reversal:
	// the inverse balance write, the original's status flip to Reversed,
	// and the counter-transaction insert, all in one commit.
	ReverseWithBalanceUpdate(ctx context.Context, account *Account, newCurrent, newAvailable decimal.Decimal, accountExpectedVersion int64, original *Transaction, originalExpectedVersion int64, reversal *Transaction) (*Transaction, *Transaction, *Account, error)

	CalculateDailyVolumeByTerminal(ctx context.Context, terminalID EntityID, date time.Time) (*DailyVolume, error)
	CalculateDailyVolumeByBranch(ctx context.Context, branchID EntityID, date time.Time) (*DailyVolume, error)
	CalculateDailyVolumeByNetwork(ctx context.Context, networkID string, date time.Time) (*DailyVolume, error)
}
