package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// HoldType enumerates the reasons a reservation can be placed against an
// account's available balance.
type HoldType string

const (
	HoldTypeUnclearedFunds       HoldType = "UnclearedFunds"
	HoldTypeJudicialLien         HoldType = "JudicialLien"
	HoldTypeLoanPledge           HoldType = "LoanPledge"
	HoldTypeComplianceHold       HoldType = "ComplianceHold"
	HoldTypeAdministrativeHold   HoldType = "AdministrativeHold"
	HoldTypeFraudHold            HoldType = "FraudHold"
	HoldTypePendingAuthorization HoldType = "PendingAuthorization"
	HoldTypeOverdraftReserve     HoldType = "OverdraftReserve"
	HoldTypeCardAuthorization    HoldType = "CardAuthorization"
	HoldTypeOther                HoldType = "Other"
)

// HoldPriority governs placement-time validation and override
// eligibility. Every Active hold, regardless of priority, reduces
// available balance once placed — priority only affects whether
// placement itself is gated on available balance, and whether an
// override can skip it.
type HoldPriority string

const (
	HoldPriorityCritical HoldPriority = "Critical"
	HoldPriorityHigh     HoldPriority = "High"
	HoldPriorityStandard HoldPriority = "Standard"
	HoldPriorityMedium   HoldPriority = "Medium"
	HoldPriorityLow      HoldPriority = "Low"
)

// priorityRank orders priorities from most to least senior so an
// override's cutoff ("skip any hold whose priority >= override
// priority") can be expressed as a simple integer comparison.
var priorityRank = map[HoldPriority]int{
	HoldPriorityCritical: 4,
	HoldPriorityHigh:     3,
	HoldPriorityStandard: 2,
	HoldPriorityMedium:   1,
	HoldPriorityLow:      0,
}

// AtLeast reports whether p is at least as senior as other.
func (p HoldPriority) AtLeast(other HoldPriority) bool {
	return priorityRank[p] >= priorityRank[other]
}

// HoldStatus is the hold lifecycle state. Active is the only
// non-terminal state; all others are immutable except for audit-trail
// writes.
type HoldStatus string

const (
	HoldStatusActive           HoldStatus = "Active"
	HoldStatusReleased         HoldStatus = "Released"
	HoldStatusExpired          HoldStatus = "Expired"
	HoldStatusCancelled        HoldStatus = "Cancelled"
	HoldStatusPartiallyReleased HoldStatus = "PartiallyReleased"
)

func (s HoldStatus) IsTerminal() bool {
	return s != HoldStatusActive
}

// HoldAuthorizationLevel is the tier a caller must hold to authorize a
// hold operation of a given type/amount.
type HoldAuthorizationLevel string

const (
	HoldAuthorizationStandard   HoldAuthorizationLevel = "Standard"
	HoldAuthorizationSupervisor HoldAuthorizationLevel = "Supervisor"
	HoldAuthorizationManager    HoldAuthorizationLevel = "Manager"
	HoldAuthorizationExecutive  HoldAuthorizationLevel = "Executive"
	HoldAuthorizationExternal   HoldAuthorizationLevel = "External"
)

// RequiredAuthorizationLevel returns the minimum tier a caller must hold
// to place a hold of this type and amount.
func RequiredAuthorizationLevel(holdType HoldType, amount decimal.Decimal) HoldAuthorizationLevel {
	switch holdType {
	case HoldTypeJudicialLien:
		return HoldAuthorizationExternal
	case HoldTypeComplianceHold:
		if amount.GreaterThan(decimal.NewFromInt(1_000_000)) {
			return HoldAuthorizationExecutive
		}
		return HoldAuthorizationManager
	case HoldTypeFraudHold:
		return HoldAuthorizationManager
	case HoldTypeAdministrativeHold:
		if amount.GreaterThan(decimal.NewFromInt(100_000)) {
			return HoldAuthorizationSupervisor
		}
		return HoldAuthorizationStandard
	default:
		return HoldAuthorizationStandard
	}
}

// authorizationRank orders tiers so a caller's tier can be compared
// against the required one with simple integer comparison.
var authorizationRank = map[HoldAuthorizationLevel]int{
	HoldAuthorizationStandard:   1,
	HoldAuthorizationSupervisor: 2,
	HoldAuthorizationManager:    3,
	HoldAuthorizationExecutive:  4,
	HoldAuthorizationExternal:   5,
}

// Meets reports whether "have" satisfies a "required" tier.
func (have HoldAuthorizationLevel) Meets(required HoldAuthorizationLevel) bool {
	return authorizationRank[have] >= authorizationRank[required]
}

// AccountHold is a reservation against an account's available balance.
// It does not move money.
type AccountHold struct {
	ID                EntityID
	AccountID         EntityID
	Amount            decimal.Decimal
	HoldType          HoldType
	Priority          HoldPriority
	ReasonID          EntityID
	AdditionalDetails string
	PlacedByPerson    PersonID
	PlacedAt          time.Time
	ExpiresAt         *time.Time
	Status            HoldStatus
	ReleasedAt        *time.Time
	ReleasedByPerson  *PersonID
	SourceReference   string
	AutomaticRelease  bool

	Version     int64
	ContentHash uint64
}

// Validate enforces the structural invariants that don't require loading
// the owning account.
func (h *AccountHold) Validate() error {
	if err := RequirePositive("amount", h.Amount); err != nil {
		return err
	}
	switch h.HoldType {
	case HoldTypeUnclearedFunds, HoldTypeJudicialLien, HoldTypeLoanPledge, HoldTypeComplianceHold,
		HoldTypeAdministrativeHold, HoldTypeFraudHold, HoldTypePendingAuthorization,
		HoldTypeOverdraftReserve, HoldTypeCardAuthorization, HoldTypeOther:
	default:
		return NewValidationError("hold_type", "unrecognized hold type")
	}
	switch h.Priority {
	case HoldPriorityCritical, HoldPriorityHigh, HoldPriorityStandard, HoldPriorityMedium, HoldPriorityLow:
	default:
		return NewValidationError("priority", "unrecognized hold priority")
	}
	if len([]rune(h.AdditionalDetails)) > MaxHoldDetailsLength {
		return NewValidationError("additional_details", "exceeds maximum length")
	}
	return nil
}

// MaxHoldDetailsLength bounds AccountHold.AdditionalDetails.
const MaxHoldDetailsLength = 500

// PlaceHoldRequest carries the inputs to HoldService.PlaceHold.
type PlaceHoldRequest struct {
	AccountID         EntityID
	Amount            decimal.Decimal
	HoldType          HoldType
	Priority          HoldPriority
	ReasonID          EntityID
	ExpiresAt         *time.Time
	SourceReference   string
	PlacedByPerson    PersonID
	AdditionalDetails string
}

// ReleaseHoldRequest carries the inputs to HoldService.ReleaseHold.
// ReleaseAmount absent means a full release.
type ReleaseHoldRequest struct {
	HoldID         EntityID
	ReleasedBy     PersonID
	ReleaseAmount  *decimal.Decimal
	ReasonID       EntityID
}

// HoldReleaseRecord is appended every time a hold is released, fully or
// partially, and on expiry/cancellation.
type HoldReleaseRecord struct {
	ID           EntityID
	HoldID       EntityID
	Amount       decimal.Decimal
	ReasonID     EntityID
	ReleasedBy   PersonID
	ReleasedAt   time.Time
	ResultStatus HoldStatus
}

// HoldOverrideRecord persists an authorized decision to bypass one or
// more holds for a single transaction.
// The holds themselves remain Active; this record is the only trace
// that they were set aside for this one posting.
type HoldOverrideRecord struct {
	ID               EntityID
	AccountID        EntityID
	TransactionID    EntityID
	HoldIDs          []EntityID
	RequiredAmount   decimal.Decimal
	OverridePriority HoldPriority
	AuthorizedBy     PersonID
	ReasonID         EntityID
	CreatedAt        time.Time
}

// HoldExpiryJobSummary is returned by ProcessExpiredHolds.
type HoldExpiryJobSummary struct {
	JobID           EntityID
	ProcessingDate  time.Time
	ProcessedCount  int
	TotalAmount     decimal.Decimal
	Errors          []string
}

// HoldTypeBreakdown is one row of a BalanceCalculation's hold_breakdown
//: the active holds of one (type, priority) pair.
type HoldTypeBreakdown struct {
	HoldType    HoldType
	Priority    HoldPriority
	Count       int
	TotalAmount decimal.Decimal
}

// HoldAnalytics is a supplemental read-only report
// over one account's hold activity.
type HoldAnalytics struct {
	AccountID        EntityID
	TotalActiveHolds decimal.Decimal
	ActiveHoldCount  int
	HoldToBalanceRatio decimal.Decimal
}

// HoldRepository is the persistence contract HoldService depends on.
type HoldRepository interface {
	Create(ctx context.Context, hold *AccountHold) (*AccountHold, error)
	GetByID(ctx context.Context, id EntityID) (*AccountHold, error)

	// Update persists a hold whose status/amount/expiry/reason changed in
	// place (release, partial release, modify, cancel). expectedVersion
	// implements the optimistic-concurrency check.
	Update(ctx context.Context, hold *AccountHold, expectedVersion int64) (*AccountHold, error)

	GetActiveHolds(ctx context.Context, accountID EntityID, types []HoldType) ([]*AccountHold, error)
	GetByStatus(ctx context.Context, accountID *EntityID, status HoldStatus, from, to *time.Time) ([]*AccountHold, error)
	GetByType(ctx context.Context, holdType HoldType, status *HoldStatus, accountIDs []EntityID) ([]*AccountHold, error)
	GetHistory(ctx context.Context, accountID EntityID, from, to *time.Time) ([]*AccountHold, error)
	GetExpired(ctx context.Context, asOf time.Time, types []HoldType) ([]*AccountHold, error)

	AppendRelease(ctx context.Context, record *HoldReleaseRecord) error
	GetReleaseRecords(ctx context.Context, holdID EntityID) ([]*HoldReleaseRecord, error)

	CreateOverride(ctx context.Context, record *HoldOverrideRecord) (*HoldOverrideRecord, error)
	GetOverridesForTransaction(ctx context.Context, transactionID EntityID) ([]*HoldOverrideRecord, error)

	// BulkCreate and BulkUpdate implement the all-or-nothing batch
	// protocol: single transaction, single audit grouping.
	BulkCreate(ctx context.Context, holds []*AccountHold) ([]*AccountHold, error)
	BulkUpdate(ctx context.Context, holds []*AccountHold) ([]*AccountHold, error)

	GetByCourtReference(ctx context.Context, courtReference string) ([]*AccountHold, error)
}
