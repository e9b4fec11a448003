package service

import (
	"context"
	"time"

	"github.com/meridianledger/core/internal/domain"
	"github.com/meridianledger/core/internal/websocket"
	"github.com/shopspring/decimal"
)

// PostingService is the only component that ever calls
// TransactionRepository.PostWithBalanceUpdate or
// ReverseWithBalanceUpdate — both atomic units spanning the account
// balance write and the transaction insert in a single commit.
type PostingService struct {
	txRepo         domain.TransactionRepository
	accountRepo    domain.AccountRepository
	balances       *BalanceService
	catalog        domain.ProductCatalog
	workflows      *WorkflowService
	audit          *AuditService
	eventPublisher websocket.EventPublisher
}

// NewPostingService creates a new PostingService.
func NewPostingService(txRepo domain.TransactionRepository, accountRepo domain.AccountRepository, balances *BalanceService, catalog domain.ProductCatalog, workflows *WorkflowService, audit *AuditService) *PostingService {
	return &PostingService{txRepo: txRepo, accountRepo: accountRepo, balances: balances, catalog: catalog, workflows: workflows, audit: audit}
}

// SetEventPublisher wires a WebSocket publisher for transaction lifecycle
// events. Optional: a nil publisher (the default) means no broadcast.
func (s *PostingService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *PostingService) publishEvent(accountID domain.EntityID, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(websocket.AccountTopic(accountID.String()), event)
	}
}

// Post persists a new transaction. If the amount is at or above the
// owning product's approval threshold, the transaction is persisted in
// AwaitingApproval status with a TransactionApproval workflow opened
// against it instead of being posted immediately; the caller must drive
// that workflow to completion before the transaction is posted.
func (s *PostingService) Post(ctx context.Context, req domain.PostTransactionRequest) (*domain.Transaction, error) {
	account, err := s.accountRepo.FindByID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.IsTransactional() {
		return nil, &domain.AccountNotTransactionalError{AccountID: account.ID, Status: account.Status}
	}
	if account.Currency != req.Currency {
		return nil, domain.NewValidationError("currency", "transaction currency must match account currency")
	}

	if req.Direction == domain.DirectionDebit && account.IsDebitBlocked(req.ChannelID) {
		return nil, &domain.AccountNotTransactionalError{AccountID: account.ID, Status: account.Status}
	}

	if req.ExternalReference != nil {
		existing, err := s.txRepo.GetByExternalReference(ctx, req.ChannelID, req.ValueDate, *req.ExternalReference)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	txID := domain.NewEntityID()
	if req.TransactionID != nil {
		txID = *req.TransactionID
	}
	tx := &domain.Transaction{
		ID:                txID,
		AccountID:         req.AccountID,
		TransactionCode:   req.TransactionCode,
		Direction:         req.Direction,
		Amount:            domain.NormalizeAmount(req.Amount),
		Currency:          req.Currency,
		Description:       req.Description,
		ChannelID:         req.ChannelID,
		TerminalID:        req.TerminalID,
		AgentPersonID:     req.AgentPersonID,
		TransactionDate:   req.TransactionDate,
		ValueDate:         req.ValueDate,
		Status:            domain.TransactionStatusPending,
		ReferenceNumber:   req.ReferenceNumber,
		ExternalReference: req.ExternalReference,
		GLCode:            req.GLCode,
		CreatedAt:         time.Now().UTC(),
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	requiresApproval, err := s.requiresApproval(ctx, account.ProductCode, tx.Amount)
	if err != nil {
		return nil, err
	}
	if requiresApproval {
		// Approval gating precedes the available-balance check: a
		// transaction above the approval threshold opens its workflow
		// without touching balances, and the funds check only applies
		// once PostApproved drives it through postImmediately.
		return s.openForApproval(ctx, account, tx, req.InitiatedBy)
	}

	if req.Direction == domain.DirectionDebit {
		_, calc, err := s.balances.Covers(ctx, account.ID, tx.Amount)
		if err != nil {
			return nil, err
		}
		if calc.AvailableBalance.LessThan(tx.Amount) {
			overridden, err := s.hasOverride(ctx, tx.ID)
			if err != nil {
				return nil, err
			}
			if !overridden {
				return nil, &domain.InsufficientFundsError{AccountID: account.ID, Requested: tx.Amount, Available: calc.AvailableBalance}
			}
		}
	}

	return s.postImmediately(ctx, account, tx, req.InitiatedBy, req.ChannelID)
}

// hasOverride reports whether an authorized hold override
// (HoldService.OverrideForTransaction) was recorded against txID before
// this debit was attempted — the one case the available-balance check
// is allowed to pass despite insufficient funds. The holds named in the
// override stay Active; this only clears the gate for this posting.
func (s *PostingService) hasOverride(ctx context.Context, txID domain.EntityID) (bool, error) {
	records, err := s.balances.holdRepo.GetOverridesForTransaction(ctx, txID)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

func (s *PostingService) requiresApproval(ctx context.Context, productCode string, amount decimal.Decimal) (bool, error) {
	rules, err := s.catalog.GetProductRules(ctx, productCode)
	if err != nil {
		return false, &domain.ExternalDependencyUnavailableError{Dependency: "ProductCatalog", Cause: err}
	}
	if rules == nil || rules.ApprovalThresholdAmount.IsZero() {
		return false, nil
	}
	return amount.GreaterThanOrEqual(rules.ApprovalThresholdAmount), nil
}

func (s *PostingService) openForApproval(ctx context.Context, account *domain.Account, tx *domain.Transaction, initiatedBy domain.PersonID) (*domain.Transaction, error) {
	pending := domain.ApprovalStatusPending
	tx.Status = domain.TransactionStatusAwaitingApproval
	tx.ApprovalStatus = &pending
	tx.RequiresApproval = true

	created, err := s.txRepo.Create(ctx, tx)
	if err != nil {
		return nil, err
	}

	if s.workflows != nil {
		rules, err := s.catalog.GetProductRules(ctx, account.ProductCode)
		if err != nil {
			return nil, &domain.ExternalDependencyUnavailableError{Dependency: "ProductCatalog", Cause: err}
		}
		minApprovals := 1
		if rules != nil && rules.MinimumApprovals > 0 {
			minApprovals = rules.MinimumApprovals
		}
		if _, err := s.workflows.OpenTransactionApproval(ctx, created.ID, account.ID, minApprovals, initiatedBy); err != nil {
			return nil, err
		}
	}

	if s.audit != nil {
		if err := s.audit.RecordTransaction(ctx, created, initiatedBy); err != nil {
			return nil, err
		}
	}
	s.publishEvent(created.AccountID, websocket.TransactionApprovalNeeded(created))
	return created, nil
}

// PostApproved posts a transaction that has cleared its approval
// workflow. Called by the transaction handler's
// POST /transactions/:id/post-approved route; WorkflowService does not
// call it.
func (s *PostingService) PostApproved(ctx context.Context, txID domain.EntityID, postedBy domain.PersonID, channel domain.ChannelID) (*domain.Transaction, error) {
	tx, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TransactionStatusAwaitingApproval {
		return nil, &domain.WorkflowViolationError{WorkflowID: txID, Reason: "transaction is not awaiting approval"}
	}
	account, err := s.accountRepo.FindByID(ctx, tx.AccountID)
	if err != nil {
		return nil, err
	}
	return s.postImmediately(ctx, account, tx, postedBy, channel)
}

func (s *PostingService) postImmediately(ctx context.Context, account *domain.Account, tx *domain.Transaction, postedBy domain.PersonID, channel domain.ChannelID) (*domain.Transaction, error) {
	newCurrent := account.CurrentBalance
	if tx.Direction == domain.DirectionCredit {
		newCurrent = newCurrent.Add(tx.Amount)
	} else {
		newCurrent = newCurrent.Sub(tx.Amount)
	}

	holds, err := s.balances.holdRepo.GetActiveHolds(ctx, account.ID, nil)
	if err != nil {
		return nil, err
	}
	totalHolds := decimal.Zero
	for _, h := range holds {
		totalHolds = totalHolds.Add(h.Amount)
	}
	newAvailable := s.balances.compute(&domain.Account{Variant: account.Variant, CurrentBalance: newCurrent, OverdraftLimit: account.OverdraftLimit}, holds).AvailableBalance
	_ = totalHolds

	tx.Status = domain.TransactionStatusPosted
	if tx.ApprovalStatus != nil {
		approved := domain.ApprovalStatusApproved
		tx.ApprovalStatus = &approved
	}

	posted, updatedAccount, err := s.txRepo.PostWithBalanceUpdate(ctx, account, domain.NormalizeAmount(newCurrent), domain.NormalizeAmount(newAvailable), account.Version, tx)
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(account.ID)

	if !channel.IsSystemChannel() {
		if err := s.accountRepo.UpdateLastActivityDate(ctx, account.ID, tx.TransactionDate); err != nil {
			return nil, err
		}
	}

	if s.audit != nil {
		if err := s.audit.RecordTransaction(ctx, posted, postedBy); err != nil {
			return nil, err
		}
		if err := s.audit.RecordAccount(ctx, updatedAccount, postedBy); err != nil {
			return nil, err
		}
	}

	s.publishEvent(posted.AccountID, websocket.TransactionPosted(posted))

	return posted, nil
}

// Reverse reverses a previously posted transaction: reversal only ever
// targets a Posted transaction, never one still Pending or
// PartiallyApproved.
func (s *PostingService) Reverse(ctx context.Context, req domain.ReversalRequest) (*domain.Transaction, error) {
	original, err := s.txRepo.GetByReferenceNumber(ctx, req.ReferenceNumber)
	if err != nil {
		return nil, err
	}
	if original.Status != domain.TransactionStatusPosted {
		return nil, &domain.WorkflowViolationError{WorkflowID: original.ID, Reason: "only a Posted transaction can be reversed"}
	}
	if original.ReversedBy != nil {
		return nil, &domain.WorkflowViolationError{WorkflowID: original.ID, Reason: "transaction already reversed"}
	}

	account, err := s.accountRepo.FindByID(ctx, original.AccountID)
	if err != nil {
		return nil, err
	}

	reversal := &domain.Transaction{
		ID:              domain.NewEntityID(),
		AccountID:       original.AccountID,
		TransactionCode: original.TransactionCode,
		Direction:       original.Direction.Opposite(),
		Amount:          original.Amount,
		Currency:        original.Currency,
		Description:     req.Description,
		ChannelID:       domain.ChannelSystem,
		TransactionDate: time.Now().UTC(),
		ValueDate:       time.Now().UTC(),
		Status:          domain.TransactionStatusPosted,
		ReferenceNumber: original.ReferenceNumber + "-REV",
		GLCode:          original.GLCode,
		CreatedAt:       time.Now().UTC(),
		ReversalOf:      &original.ID,
	}

	newCurrent := account.CurrentBalance
	if reversal.Direction == domain.DirectionCredit {
		newCurrent = newCurrent.Add(reversal.Amount)
	} else {
		newCurrent = newCurrent.Sub(reversal.Amount)
	}
	holds, err := s.balances.holdRepo.GetActiveHolds(ctx, account.ID, nil)
	if err != nil {
		return nil, err
	}
	newAvailable := s.balances.compute(&domain.Account{Variant: account.Variant, CurrentBalance: newCurrent, OverdraftLimit: account.OverdraftLimit}, holds).AvailableBalance

	_, reversedOriginal, updatedAccount, err := s.txRepo.ReverseWithBalanceUpdate(ctx, account, domain.NormalizeAmount(newCurrent), domain.NormalizeAmount(newAvailable), account.Version, original, original.Version, reversal)
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(account.ID)

	if s.audit != nil {
		if err := s.audit.RecordTransaction(ctx, reversedOriginal, req.InitiatedBy); err != nil {
			return nil, err
		}
		if err := s.audit.RecordAccount(ctx, updatedAccount, req.InitiatedBy); err != nil {
			return nil, err
		}
	}

	createdReversal, err := s.txRepo.GetByID(ctx, reversal.ID)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		if err := s.audit.RecordTransaction(ctx, createdReversal, req.InitiatedBy); err != nil {
			return nil, err
		}
	}
	s.publishEvent(createdReversal.AccountID, websocket.TransactionReversed(createdReversal))
	return createdReversal, nil
}

// MarkFailed transitions an AwaitingApproval transaction to Failed. It
// is the counterpart to PostApproved for the path where the gating
// workflow never reaches its approval criterion — most commonly a
// timeout swept by WorkflowService.ProcessTimeouts, but also usable for
// an explicit rejection. reason is not persisted: neither the
// transaction nor its audit entry has a field for it.
func (s *PostingService) MarkFailed(ctx context.Context, txID domain.EntityID, reason string, by domain.PersonID) (*domain.Transaction, error) {
	tx, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TransactionStatusAwaitingApproval {
		return nil, &domain.WorkflowViolationError{WorkflowID: txID, Reason: "only an AwaitingApproval transaction can be marked Failed"}
	}

	rejected := domain.ApprovalStatusRejected
	updated, err := s.txRepo.UpdateStatus(ctx, txID, domain.TransactionStatusFailed, &rejected, tx.Version)
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		if err := s.audit.RecordTransaction(ctx, updated, by); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// Find delegates to the repository's filtered query.
func (s *PostingService) Find(ctx context.Context, filters domain.TransactionFilters) ([]*domain.Transaction, error) {
	return s.txRepo.Find(ctx, filters)
}

// GetByID returns a transaction by id.
func (s *PostingService) GetByID(ctx context.Context, id domain.EntityID) (*domain.Transaction, error) {
	return s.txRepo.GetByID(ctx, id)
}
