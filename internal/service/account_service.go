package service

import (
	"context"
	"time"

	"github.com/meridianledger/core/internal/domain"
	"github.com/meridianledger/core/internal/websocket"
	"github.com/shopspring/decimal"
)

// AccountService is the Account Ledger. It is the only component
// permitted to create accounts or change their status; every other
// service reads accounts through domain.AccountRepository directly or
// through this service's read methods.
type AccountService struct {
	accountRepo    domain.AccountRepository
	holdRepo       domain.HoldRepository
	catalog        domain.ProductCatalog
	audit          *AuditService
	eventPublisher websocket.EventPublisher
}

// NewAccountService creates a new AccountService. holdRepo is consulted
// only by the Closed-transition precondition (spec.md "closure requires
// zero Active holds").
func NewAccountService(accountRepo domain.AccountRepository, holdRepo domain.HoldRepository, catalog domain.ProductCatalog, audit *AuditService) *AccountService {
	return &AccountService{accountRepo: accountRepo, holdRepo: holdRepo, catalog: catalog, audit: audit}
}

// SetEventPublisher wires a WebSocket publisher for account status
// change events. Optional: a nil publisher (the default) means no
// broadcast.
func (s *AccountService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *AccountService) publishEvent(accountID domain.EntityID, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(websocket.AccountTopic(accountID.String()), event)
	}
}

// CreateAccountInput holds the input for opening a new account.
type CreateAccountInput struct {
	ProductCode      string
	Variant          domain.AccountVariant
	SigningCondition domain.SigningCondition
	Currency         domain.CurrencyCode
	DomicileBranchID domain.EntityID
	OpenDate         time.Time
	OverdraftLimit   *decimal.Decimal
	Loan             *domain.LoanTerms
	OpenedBy         domain.PersonID
}

// CreateAccount resolves product defaults from the catalog, validates
// the account, and persists it in PendingApproval status.
func (s *AccountService) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	rules, err := s.catalog.GetProductRules(ctx, input.ProductCode)
	if err != nil {
		return nil, &domain.ExternalDependencyUnavailableError{Dependency: "ProductCatalog", Cause: err}
	}
	if rules == nil {
		return nil, &domain.InvalidProductCodeError{ProductCode: input.ProductCode}
	}

	overdraft := input.OverdraftLimit
	if overdraft == nil && rules.DefaultOverdraftLimit != nil {
		overdraft = rules.DefaultOverdraftLimit
	}

	dormancyDays := int32(90)
	if rules.DefaultDormancyDays != nil {
		dormancyDays = *rules.DefaultDormancyDays
	}

	now := input.OpenDate
	account := &domain.Account{
		ID:               domain.NewEntityID(),
		ProductCode:      input.ProductCode,
		Variant:          input.Variant,
		Status:           domain.AccountStatusPendingApproval,
		SigningCondition: input.SigningCondition,
		Currency:         input.Currency,
		OpenDate:         now,
		DomicileBranchID: input.DomicileBranchID,
		CurrentBalance:   decimal.Zero,
		AvailableBalance: decimal.Zero,
		AccruedInterest:  decimal.Zero,
		OverdraftLimit:   overdraft,
		Loan:             input.Loan,
		DormancyThresholdDays: dormancyDays,
		LastActivityDate: now,
		StatusChange: domain.StatusChangeAudit{
			ByPerson:  input.OpenedBy,
			Timestamp: now,
		},
		CreatedAt:       now,
		LastUpdatedAt:   now,
		UpdatedByPerson: input.OpenedBy,
	}

	if err := account.Validate(); err != nil {
		return nil, err
	}

	created, err := s.accountRepo.Create(ctx, account)
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		if err := s.audit.RecordAccount(ctx, created, input.OpenedBy); err != nil {
			return nil, err
		}
	}

	return created, nil
}

// FindByID returns the account for id.
func (s *AccountService) FindByID(ctx context.Context, id domain.EntityID) (*domain.Account, error) {
	return s.accountRepo.FindByID(ctx, id)
}

// FindByCustomer returns every account owned by customerID.
func (s *AccountService) FindByCustomer(ctx context.Context, customerID domain.PersonID) ([]*domain.Account, error) {
	return s.accountRepo.FindByCustomer(ctx, customerID)
}

// FindByProduct returns every account of the given product code.
func (s *AccountService) FindByProduct(ctx context.Context, productCode string) ([]*domain.Account, error) {
	return s.accountRepo.FindByProduct(ctx, productCode)
}

// FindByStatus returns every account currently in the given status.
func (s *AccountService) FindByStatus(ctx context.Context, status domain.AccountStatus) ([]*domain.Account, error) {
	return s.accountRepo.FindByStatus(ctx, status)
}

// FindDormancyCandidates returns Active accounts whose last activity
// date is at least thresholdDays before referenceDate. The same
// thresholdDays applies to every account; an account's own
// DormancyThresholdDays is not consulted.
func (s *AccountService) FindDormancyCandidates(ctx context.Context, referenceDate time.Time, thresholdDays int32) ([]*domain.Account, error) {
	return s.accountRepo.FindDormancyCandidates(ctx, referenceDate, thresholdDays)
}

// FindPendingClosure returns every account in PendingClosure status.
func (s *AccountService) FindPendingClosure(ctx context.Context) ([]*domain.Account, error) {
	return s.accountRepo.FindPendingClosure(ctx)
}

// FindInterestBearing returns every account the interest-accrual
// collaborator should consider: non-Closed Savings and Current
// accounts plus Loan accounts with outstanding principal.
func (s *AccountService) FindInterestBearing(ctx context.Context) ([]*domain.Account, error) {
	return s.accountRepo.FindInterestBearing(ctx)
}

// UpdateBalance is called exclusively by the posting flow and by the
// interest/fee accrual collaborators, never directly by a caller-facing
// handler.
func (s *AccountService) UpdateBalance(ctx context.Context, accountID domain.EntityID, newCurrent, newAvailable decimal.Decimal, expectedVersion int64) (*domain.Account, error) {
	return s.accountRepo.UpdateBalance(ctx, accountID, domain.NormalizeAmount(newCurrent), domain.NormalizeAmount(newAvailable), expectedVersion)
}

// UpdateStatusInput carries the inputs to UpdateStatus.
type UpdateStatusInput struct {
	AccountID         domain.EntityID
	NewStatus         domain.AccountStatus
	ReasonID          domain.EntityID
	AdditionalContext string
	ChangedBy         domain.PersonID
	SystemTriggered   bool
	ExpectedVersion   int64
}

// UpdateStatus performs a status transition in three ordered steps:
//
//  1. reason-presence check — a status that RequiresReason() must carry
//     a non-nil ReasonID before the graph is even consulted;
//  2. graph-legality check — ValidTransition(old, new);
//  3. side effects — only after both checks pass does the repository
//     write happen and the audit trail append.
func (s *AccountService) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*domain.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}

	if input.NewStatus.RequiresReason() && input.ReasonID.IsNil() {
		return nil, domain.NewValidationError("reason_id", "a reason is required for this status transition")
	}

	if !domain.ValidTransition(account.Status, input.NewStatus) {
		return nil, domain.NewValidationError("status", "illegal transition from "+string(account.Status)+" to "+string(input.NewStatus))
	}

	if input.NewStatus == domain.AccountStatusClosed {
		if err := s.checkClosurePreconditions(ctx, account); err != nil {
			return nil, err
		}
	}

	updated, err := s.accountRepo.UpdateStatus(ctx, input.AccountID, input.NewStatus, input.ReasonID, input.AdditionalContext, input.ChangedBy, input.SystemTriggered, input.ExpectedVersion)
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		if err := s.audit.RecordAccount(ctx, updated, input.ChangedBy); err != nil {
			return nil, err
		}
	}

	s.publishEvent(updated.ID, websocket.AccountStatusChanged(updated))

	return updated, nil
}

// checkClosurePreconditions enforces spec.md's Closed-entry side
// effects: zero Active holds and a non-negative balance. Neither is
// part of the status-graph legality check — both are evaluated only
// when the target status is Closed, after the graph transition itself
// is confirmed legal.
func (s *AccountService) checkClosurePreconditions(ctx context.Context, account *domain.Account) error {
	active, err := s.holdRepo.GetActiveHolds(ctx, account.ID, nil)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return domain.NewValidationError("status", "an account with Active holds cannot be closed")
	}
	if account.CurrentBalance.IsNegative() {
		return domain.NewValidationError("current_balance", "an account with a negative balance cannot be closed")
	}
	return nil
}

// UpdateLastActivityDate is called from the posting flow for every
// non-system-channel transaction.
func (s *AccountService) UpdateLastActivityDate(ctx context.Context, accountID domain.EntityID, date time.Time) error {
	return s.accountRepo.UpdateLastActivityDate(ctx, accountID, date)
}

// UpdateAccruedInterest is called by the interest-accrual collaborator;
// the core never computes an interest rate itself.
func (s *AccountService) UpdateAccruedInterest(ctx context.Context, accountID domain.EntityID, newAccruedInterest decimal.Decimal) error {
	return s.accountRepo.UpdateAccruedInterest(ctx, accountID, domain.NormalizeAmount(newAccruedInterest))
}

// ResetAccruedInterest is called once accrued interest has been
// capitalized into principal or paid out.
func (s *AccountService) ResetAccruedInterest(ctx context.Context, accountID domain.EntityID) error {
	return s.accountRepo.ResetAccruedInterest(ctx, accountID)
}

// GetStatusHistory returns the full append-only status-change trail.
func (s *AccountService) GetStatusHistory(ctx context.Context, accountID domain.EntityID) ([]*domain.StatusChangeRecord, error) {
	return s.accountRepo.GetStatusHistory(ctx, accountID)
}
