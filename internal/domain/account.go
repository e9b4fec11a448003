package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AccountVariant is the product family an account belongs to. Each
// variant has its own available-balance formula and its own set
// of populated fields.
type AccountVariant string

const (
	AccountVariantSavings AccountVariant = "Savings"
	AccountVariantCurrent AccountVariant = "Current"
	AccountVariantLoan    AccountVariant = "Loan"
)

// SigningCondition governs how many owners must authorize a transaction
// on a jointly-held account. The core stores this but does not enforce
// it directly — the caller resolves the owning parties through the
// identity registry and presents an already-authorized request.
type SigningCondition string

const (
	SigningConditionNone      SigningCondition = "None"
	SigningConditionAnyOwner  SigningCondition = "AnyOwner"
	SigningConditionAllOwners SigningCondition = "AllOwners"
)

// AccountStatus is the account lifecycle state. See the state graph in
// (*AccountStatus).ValidTransition.
type AccountStatus string

const (
	AccountStatusPendingApproval     AccountStatus = "PendingApproval"
	AccountStatusActive              AccountStatus = "Active"
	AccountStatusDormant             AccountStatus = "Dormant"
	AccountStatusFrozen              AccountStatus = "Frozen"
	AccountStatusPendingClosure      AccountStatus = "PendingClosure"
	AccountStatusPendingReactivation AccountStatus = "PendingReactivation"
	AccountStatusClosed              AccountStatus = "Closed"
)

// accountStatusGraph enumerates every legal transition. Anything not
// listed here is rejected with a ValidationError.
var accountStatusGraph = map[AccountStatus]map[AccountStatus]bool{
	AccountStatusPendingApproval: {
		AccountStatusActive: true,
		AccountStatusClosed: true,
	},
	AccountStatusActive: {
		AccountStatusDormant:        true,
		AccountStatusFrozen:        true,
		AccountStatusPendingClosure: true,
	},
	AccountStatusDormant: {
		AccountStatusPendingReactivation: true,
		AccountStatusClosed:              true,
	},
	AccountStatusPendingReactivation: {
		AccountStatusActive: true,
		AccountStatusClosed: true,
	},
	AccountStatusFrozen: {
		AccountStatusActive:        true,
		AccountStatusPendingClosure: true,
	},
	AccountStatusPendingClosure: {
		AccountStatusClosed: true,
	},
	AccountStatusClosed: {},
}

// ValidTransition reports whether moving from "from" to "to" is legal
// under accountStatusGraph.
func ValidTransition(from, to AccountStatus) bool {
	next, ok := accountStatusGraph[from]
	if !ok {
		return false
	}
	return next[to]
}

// IsTerminal reports whether status has no outgoing transitions.
func (s AccountStatus) IsTerminal() bool {
	return s == AccountStatusClosed
}

// RequiresReason reports whether entering this status must carry a
// non-empty reason id.
func (s AccountStatus) RequiresReason() bool {
	return s == AccountStatusFrozen || s == AccountStatusClosed || s == AccountStatusPendingClosure
}

// StatusChangeAudit is the append-only triplet recorded at account
// creation and updated on every status transition.
type StatusChangeAudit struct {
	ByPerson  PersonID
	ReasonID  EntityID
	Timestamp time.Time
}

// LoanTerms holds the loan-specific fields populated iff Variant == Loan.
type LoanTerms struct {
	OriginalPrincipal  decimal.Decimal
	OutstandingPrincipal decimal.Decimal
	InterestRate       decimal.Decimal
	TermMonths         int32
	DisbursementDate   time.Time
	MaturityDate       time.Time
	InstallmentAmount  decimal.Decimal
	NextDueDate        time.Time
	PenaltyRate        decimal.Decimal
}

// Account is the authoritative record of a customer account. See
// the full invariant list; Validate below enforces it.
type Account struct {
	ID                 EntityID
	ProductCode        string
	Variant            AccountVariant
	Status             AccountStatus
	SigningCondition    SigningCondition
	Currency           CurrencyCode
	OpenDate           time.Time
	DomicileBranchID   EntityID
	CurrentBalance     decimal.Decimal
	AvailableBalance   decimal.Decimal
	AccruedInterest    decimal.Decimal
	OverdraftLimit     *decimal.Decimal // Current only; absent means 0
	Loan               *LoanTerms       // populated iff Variant == Loan
	DormancyThresholdDays int32
	LastActivityDate   time.Time
	StatusChange       StatusChangeAudit
	CreatedAt          time.Time
	LastUpdatedAt      time.Time
	UpdatedByPerson    PersonID

	// Version and ContentHash back the audit-log short-circuit and
	// the optimistic-concurrency check on update_balance/update_status.
	Version     int64
	ContentHash uint64
}

// Validate enforces the structural invariants that don't require
// consulting the product catalog (currency shape, loan field presence,
// overdraft non-negativity, available-balance ceiling). Product-code
// resolution and dormancy-threshold defaulting are the caller's
// (service layer's) responsibility since they require the external
// product catalog.
func (a *Account) Validate() error {
	if err := ValidateCurrencyCode(a.Currency); err != nil {
		return err
	}
	switch a.Variant {
	case AccountVariantSavings, AccountVariantCurrent, AccountVariantLoan:
	default:
		return NewValidationError("variant", "unrecognized account variant")
	}
	if a.Variant == AccountVariantLoan {
		if a.Loan == nil {
			return NewValidationError("loan", "loan fields required for Loan accounts")
		}
		if a.Loan.OriginalPrincipal.IsZero() && a.Loan.OutstandingPrincipal.IsZero() {
			return NewValidationError("loan.original_principal", "original and outstanding principal are required")
		}
		if a.Loan.OutstandingPrincipal.GreaterThan(a.Loan.OriginalPrincipal) {
			return NewValidationError("loan.outstanding_principal", "outstanding principal must not exceed original principal")
		}
	}
	if a.OverdraftLimit != nil {
		if a.Variant != AccountVariantCurrent {
			return NewValidationError("overdraft_limit", "overdraft limit only applies to Current accounts")
		}
		if err := RequireNonNegative("overdraft_limit", *a.OverdraftLimit); err != nil {
			return err
		}
	}
	overdraft := decimal.Zero
	if a.OverdraftLimit != nil {
		overdraft = *a.OverdraftLimit
	}
	if a.AvailableBalance.GreaterThan(a.CurrentBalance.Add(overdraft)) {
		return NewValidationError("available_balance", "available balance must not exceed current balance plus overdraft")
	}
	return nil
}

// Overdraft returns the effective overdraft limit, 0 when absent.
func (a *Account) Overdraft() decimal.Decimal {
	if a.OverdraftLimit == nil {
		return decimal.Zero
	}
	return *a.OverdraftLimit
}

// IsDebitBlocked reports whether the account's current status forbids a
// debit posting from the given channel.
func (a *Account) IsDebitBlocked(channel ChannelID) bool {
	switch a.Status {
	case AccountStatusFrozen, AccountStatusClosed, AccountStatusPendingApproval:
		return true
	case AccountStatusDormant:
		return channel != ChannelSystem && channel != ChannelAutoInterest && channel != ChannelAutoFee
	default:
		return false
	}
}

// IsTransactional reports whether the account can be posted to at all.
func (a *Account) IsTransactional() bool {
	return a.Status != AccountStatusClosed
}

// CanHoldType reports whether a hold of the given type may be placed
// while the account is in its current status: Frozen blocks all hold
// placements other than JudicialLien and ComplianceHold.
func (a *Account) CanHoldType(t HoldType) bool {
	if a.Status == AccountStatusClosed {
		return false
	}
	if a.Status == AccountStatusFrozen {
		return t == HoldTypeJudicialLien || t == HoldTypeComplianceHold
	}
	return true
}

// StatusChangeRecord is an append-only row capturing one status
// transition. The account's own StatusChange field always mirrors the
// most recent one.
type StatusChangeRecord struct {
	ID               EntityID
	AccountID        EntityID
	OldStatus        AccountStatus
	NewStatus        AccountStatus
	ReasonID         EntityID
	AdditionalContext string
	ChangedBy        PersonID
	ChangedAt        time.Time
	SystemTriggered  bool
}

// AccountRepository is the persistence contract AccountService depends
// on. Implementations must execute each mutating call inside a single
// serializable transaction.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) (*Account, error)
	FindByID(ctx context.Context, id EntityID) (*Account, error)
	FindByCustomer(ctx context.Context, customerID PersonID) ([]*Account, error)
	FindByProduct(ctx context.Context, productCode string) ([]*Account, error)
	FindByStatus(ctx context.Context, status AccountStatus) ([]*Account, error)
	FindDormancyCandidates(ctx context.Context, referenceDate time.Time, thresholdDays int32) ([]*Account, error)
	FindPendingClosure(ctx context.Context) ([]*Account, error)
	FindInterestBearing(ctx context.Context) ([]*Account, error)

	// UpdateBalance atomically writes new current/available balances. It
	// must only be invoked from within a posting or interest/fee flow.
	UpdateBalance(ctx context.Context, accountID EntityID, newCurrent, newAvailable decimal.Decimal, expectedVersion int64) (*Account, error)

	// UpdateStatus transitions status, appends a StatusChangeRecord, and
	// returns the updated account. The state-machine legality check is
	// performed by the service layer before this is called; the
	// repository persists whatever transition it is given.
	UpdateStatus(ctx context.Context, accountID EntityID, newStatus AccountStatus, reasonID EntityID, additionalContext string, changedBy PersonID, systemTriggered bool, expectedVersion int64) (*Account, error)

	UpdateLastActivityDate(ctx context.Context, accountID EntityID, date time.Time) error
	UpdateAccruedInterest(ctx context.Context, accountID EntityID, newAccruedInterest decimal.Decimal) error
	ResetAccruedInterest(ctx context.Context, accountID EntityID) error

	GetStatusHistory(ctx context.Context, accountID EntityID) ([]*StatusChangeRecord, error)
}
