package service

import (
	"context"
	"sort"
	"time"

	"github.com/meridianledger/core/internal/domain"
	"github.com/meridianledger/core/internal/websocket"
	"github.com/shopspring/decimal"
)

// HoldService owns hold placement and release. It never moves money —
// only the reservation against an account's available balance.
type HoldService struct {
	holdRepo       domain.HoldRepository
	accountRepo    domain.AccountRepository
	balances       *BalanceService
	audit          *AuditService
	eventPublisher websocket.EventPublisher
}

// NewHoldService creates a new HoldService.
func NewHoldService(holdRepo domain.HoldRepository, accountRepo domain.AccountRepository, balances *BalanceService, audit *AuditService) *HoldService {
	return &HoldService{holdRepo: holdRepo, accountRepo: accountRepo, balances: balances, audit: audit}
}

// SetEventPublisher wires a WebSocket publisher for hold lifecycle
// events. Optional: a nil publisher (the default) means no broadcast.
func (s *HoldService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *HoldService) publishEvent(accountID domain.EntityID, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(websocket.AccountTopic(accountID.String()), event)
	}
}

// PlaceHold creates an Active hold. callerLevel is resolved by the
// caller (typically from the bearer token's claims) and passed in;
// this service only checks it against the required tier.
//
// Critical priority is a distinct bypass step from the balance
// contribution rule: every Active hold, Critical or not, reduces
// available balance once placed, but a Critical hold skips
// the placement-time "does available balance cover this amount" gate
// that every other priority is subject to.
func (s *HoldService) PlaceHold(ctx context.Context, req domain.PlaceHoldRequest, callerLevel domain.HoldAuthorizationLevel) (*domain.AccountHold, error) {
	account, err := s.accountRepo.FindByID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.CanHoldType(req.HoldType) {
		return nil, &domain.AccountNotTransactionalError{AccountID: account.ID, Status: account.Status}
	}

	required := domain.RequiredAuthorizationLevel(req.HoldType, req.Amount)
	if !callerLevel.Meets(required) {
		return nil, &domain.UnauthorizedOperationError{Operation: "PlaceHold:" + string(req.HoldType), Required: string(required)}
	}

	if req.Priority != domain.HoldPriorityCritical {
		_, calc, err := s.balances.Covers(ctx, req.AccountID, req.Amount)
		if err != nil {
			return nil, err
		}
		if calc.AvailableBalance.LessThan(req.Amount) {
			return nil, &domain.InsufficientFundsError{AccountID: account.ID, Requested: req.Amount, Available: calc.AvailableBalance}
		}
	}

	hold := &domain.AccountHold{
		ID:                domain.NewEntityID(),
		AccountID:         req.AccountID,
		Amount:            domain.NormalizeAmount(req.Amount),
		HoldType:          req.HoldType,
		Priority:          req.Priority,
		ReasonID:          req.ReasonID,
		AdditionalDetails: req.AdditionalDetails,
		PlacedByPerson:    req.PlacedByPerson,
		PlacedAt:          time.Now().UTC(),
		ExpiresAt:         req.ExpiresAt,
		Status:            domain.HoldStatusActive,
		SourceReference:   req.SourceReference,
		AutomaticRelease:  req.ExpiresAt != nil,
	}
	if err := hold.Validate(); err != nil {
		return nil, err
	}

	created, err := s.holdRepo.Create(ctx, hold)
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(req.AccountID)
	if s.audit != nil {
		if _, err := s.audit.RecordHold(ctx, created, req.PlacedByPerson); err != nil {
			return nil, err
		}
	}
	s.publishEvent(created.AccountID, websocket.HoldPlaced(created))
	return created, nil
}

// ReleaseHold implements full and partial release. A partial
// release moves the hold to PartiallyReleased with its amount reduced
// by the released amount.
func (s *HoldService) ReleaseHold(ctx context.Context, req domain.ReleaseHoldRequest) (*domain.AccountHold, error) {
	hold, err := s.holdRepo.GetByID(ctx, req.HoldID)
	if err != nil {
		return nil, err
	}
	if hold.Status.IsTerminal() {
		return nil, &domain.WorkflowViolationError{WorkflowID: hold.ID, Reason: "hold is already " + string(hold.Status)}
	}

	releaseAmount := hold.Amount
	resultStatus := domain.HoldStatusReleased
	if req.ReleaseAmount != nil {
		if req.ReleaseAmount.GreaterThan(hold.Amount) {
			return nil, domain.NewValidationError("release_amount", "exceeds remaining hold amount")
		}
		releaseAmount = domain.NormalizeAmount(*req.ReleaseAmount)
		remaining := hold.Amount.Sub(releaseAmount)
		if remaining.IsZero() {
			hold.Amount = decimal.Zero
		} else {
			hold.Amount = remaining
			resultStatus = domain.HoldStatusPartiallyReleased
		}
	} else {
		hold.Amount = decimal.Zero
	}

	now := time.Now().UTC()
	hold.Status = resultStatus
	if resultStatus == domain.HoldStatusReleased {
		hold.ReleasedAt = &now
		hold.ReleasedByPerson = &req.ReleasedBy
	}

	updated, err := s.holdRepo.Update(ctx, hold, hold.Version)
	if err != nil {
		return nil, err
	}

	if err := s.holdRepo.AppendRelease(ctx, &domain.HoldReleaseRecord{
		ID:           domain.NewEntityID(),
		HoldID:       hold.ID,
		Amount:       releaseAmount,
		ReasonID:     req.ReasonID,
		ReleasedBy:   req.ReleasedBy,
		ReleasedAt:   now,
		ResultStatus: resultStatus,
	}); err != nil {
		return nil, err
	}

	s.balances.Invalidate(updated.AccountID)
	if s.audit != nil {
		if _, err := s.audit.RecordHold(ctx, updated, req.ReleasedBy); err != nil {
			return nil, err
		}
	}
	s.publishEvent(updated.AccountID, websocket.HoldReleased(updated))
	return updated, nil
}

// ModifyHold changes amount, expiry, and/or reason on a hold that is
// still Active. Any of newAmount/newExpiry/newReasonID may be nil to
// leave that field unchanged.
func (s *HoldService) ModifyHold(ctx context.Context, holdID domain.EntityID, newAmount *decimal.Decimal, newExpiry *time.Time, newReasonID *domain.EntityID, modifiedBy domain.PersonID) (*domain.AccountHold, error) {
	hold, err := s.holdRepo.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.Status != domain.HoldStatusActive {
		return nil, &domain.WorkflowViolationError{WorkflowID: hold.ID, Reason: "hold is not Active"}
	}
	if newAmount != nil {
		if err := domain.RequirePositive("amount", *newAmount); err != nil {
			return nil, err
		}
		hold.Amount = domain.NormalizeAmount(*newAmount)
	}
	if newExpiry != nil {
		hold.ExpiresAt = newExpiry
		hold.AutomaticRelease = true
	}
	if newReasonID != nil {
		hold.ReasonID = *newReasonID
	}

	updated, err := s.holdRepo.Update(ctx, hold, hold.Version)
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(updated.AccountID)
	if s.audit != nil {
		if _, err := s.audit.RecordHold(ctx, updated, modifiedBy); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// CancelHold terminates an Active hold without a partial-release
// amount, distinct from ReleaseHold only in the reason it is recorded
// under — a cancellation is an administrative correction, a release is
// the reservation being honored or abandoned in the ordinary course.
func (s *HoldService) CancelHold(ctx context.Context, holdID domain.EntityID, cancelledBy domain.PersonID, reasonID domain.EntityID) (*domain.AccountHold, error) {
	hold, err := s.holdRepo.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.Status.IsTerminal() {
		return nil, &domain.WorkflowViolationError{WorkflowID: hold.ID, Reason: "hold is already " + string(hold.Status)}
	}

	amount := hold.Amount
	now := time.Now().UTC()
	hold.Status = domain.HoldStatusCancelled
	hold.Amount = decimal.Zero
	hold.ReleasedAt = &now
	hold.ReleasedByPerson = &cancelledBy

	updated, err := s.holdRepo.Update(ctx, hold, hold.Version)
	if err != nil {
		return nil, err
	}
	if err := s.holdRepo.AppendRelease(ctx, &domain.HoldReleaseRecord{
		ID:           domain.NewEntityID(),
		HoldID:       hold.ID,
		Amount:       amount,
		ReasonID:     reasonID,
		ReleasedBy:   cancelledBy,
		ReleasedAt:   now,
		ResultStatus: domain.HoldStatusCancelled,
	}); err != nil {
		return nil, err
	}

	s.balances.Invalidate(updated.AccountID)
	if s.audit != nil {
		if _, err := s.audit.RecordHold(ctx, updated, cancelledBy); err != nil {
			return nil, err
		}
	}
	s.publishEvent(updated.AccountID, websocket.HoldReleased(updated))
	return updated, nil
}

// GetHoldByID returns a single hold.
func (s *HoldService) GetHoldByID(ctx context.Context, id domain.EntityID) (*domain.AccountHold, error) {
	return s.holdRepo.GetByID(ctx, id)
}

// GetByStatus returns holds in a given status, optionally scoped to an
// account and time window.
func (s *HoldService) GetByStatus(ctx context.Context, accountID *domain.EntityID, status domain.HoldStatus, from, to *time.Time) ([]*domain.AccountHold, error) {
	return s.holdRepo.GetByStatus(ctx, accountID, status, from, to)
}

// GetByType returns holds of a given type, optionally filtered by status
// and restricted to a set of accounts.
func (s *HoldService) GetByType(ctx context.Context, holdType domain.HoldType, status *domain.HoldStatus, accountIDs []domain.EntityID) ([]*domain.AccountHold, error) {
	return s.holdRepo.GetByType(ctx, holdType, status, accountIDs)
}

// GetHoldHistory returns every hold ever placed on an account within an
// optional time window, regardless of status.
func (s *HoldService) GetHoldHistory(ctx context.Context, accountID domain.EntityID, from, to *time.Time) ([]*domain.AccountHold, error) {
	return s.holdRepo.GetHistory(ctx, accountID, from, to)
}

// HoldPriorityAssignment pairs a hold id with the priority it should be
// reordered to.
type HoldPriorityAssignment struct {
	HoldID      domain.EntityID
	NewPriority domain.HoldPriority
}

// ReorderPriorities atomically rewrites the priority of a set of Active
// holds on one account. All-or-nothing: the first invalid assignment
// aborts before any hold is updated.
func (s *HoldService) ReorderPriorities(ctx context.Context, accountID domain.EntityID, assignments []HoldPriorityAssignment, authorizedBy domain.PersonID) ([]*domain.AccountHold, error) {
	holds := make([]*domain.AccountHold, 0, len(assignments))
	for _, a := range assignments {
		hold, err := s.holdRepo.GetByID(ctx, a.HoldID)
		if err != nil {
			return nil, err
		}
		if hold.AccountID != accountID {
			return nil, domain.NewValidationError("hold_id", "hold does not belong to the given account")
		}
		if hold.Status != domain.HoldStatusActive {
			return nil, &domain.WorkflowViolationError{WorkflowID: hold.ID, Reason: "hold is not Active"}
		}
		switch a.NewPriority {
		case domain.HoldPriorityCritical, domain.HoldPriorityHigh, domain.HoldPriorityStandard, domain.HoldPriorityMedium, domain.HoldPriorityLow:
		default:
			return nil, domain.NewValidationError("priority", "unrecognized hold priority")
		}
		hold.Priority = a.NewPriority
		holds = append(holds, hold)
	}

	updated, err := s.holdRepo.BulkUpdate(ctx, holds)
	if err != nil {
		return nil, err
	}
	s.balances.Invalidate(accountID)
	if s.audit != nil {
		for _, h := range updated {
			if _, err := s.audit.RecordHold(ctx, h, authorizedBy); err != nil {
				return nil, err
			}
		}
	}
	return updated, nil
}

// BulkRelease releases a set of holds in one all-or-nothing batch,
// grouped under a single audit pass. Each request may still be a
// partial release; the batch fails entirely if any hold is already
// terminal or any release amount exceeds its remaining hold amount.
func (s *HoldService) BulkRelease(ctx context.Context, requests []domain.ReleaseHoldRequest) (*domain.BatchResult, []*domain.AccountHold, error) {
	holds := make([]*domain.AccountHold, 0, len(requests))
	for _, req := range requests {
		hold, err := s.holdRepo.GetByID(ctx, req.HoldID)
		if err != nil {
			return nil, nil, err
		}
		if hold.Status.IsTerminal() {
			return nil, nil, &domain.WorkflowViolationError{WorkflowID: hold.ID, Reason: "hold is already " + string(hold.Status)}
		}
		if req.ReleaseAmount != nil && req.ReleaseAmount.GreaterThan(hold.Amount) {
			return nil, nil, domain.NewValidationError("release_amount", "exceeds remaining hold amount")
		}
		holds = append(holds, hold)
	}

	result := &domain.BatchResult{}
	released := make([]*domain.AccountHold, 0, len(requests))
	for i, req := range requests {
		hold := holds[i]
		releaseAmount := hold.Amount
		resultStatus := domain.HoldStatusReleased
		if req.ReleaseAmount != nil {
			releaseAmount = domain.NormalizeAmount(*req.ReleaseAmount)
			remaining := hold.Amount.Sub(releaseAmount)
			if remaining.IsZero() {
				hold.Amount = decimal.Zero
			} else {
				hold.Amount = remaining
				resultStatus = domain.HoldStatusPartiallyReleased
			}
		} else {
			hold.Amount = decimal.Zero
		}
		now := time.Now().UTC()
		hold.Status = resultStatus
		if resultStatus == domain.HoldStatusReleased {
			hold.ReleasedAt = &now
			hold.ReleasedByPerson = &req.ReleasedBy
		}

		updated, err := s.holdRepo.Update(ctx, hold, hold.Version)
		if err != nil {
			return nil, nil, err
		}
		if err := s.holdRepo.AppendRelease(ctx, &domain.HoldReleaseRecord{
			ID:           domain.NewEntityID(),
			HoldID:       hold.ID,
			Amount:       releaseAmount,
			ReasonID:     req.ReasonID,
			ReleasedBy:   req.ReleasedBy,
			ReleasedAt:   now,
			ResultStatus: resultStatus,
		}); err != nil {
			return nil, nil, err
		}

		s.balances.Invalidate(updated.AccountID)
		skipped := false
		if s.audit != nil {
			skipped, err = s.audit.RecordHold(ctx, updated, req.ReleasedBy)
			if err != nil {
				return nil, nil, err
			}
		}
		s.publishEvent(updated.AccountID, websocket.HoldReleased(updated))
		if skipped {
			result.Skipped++
		} else {
			result.Updated++
		}
		released = append(released, updated)
	}
	return result, released, nil
}

// ProcessExpiredHolds releases every Active hold whose expiry has
// passed as of asOf. Holds not flagged AutomaticRelease are
// skipped — their expiry is advisory only and requires a human release.
func (s *HoldService) ProcessExpiredHolds(ctx context.Context, asOf time.Time) (*domain.HoldExpiryJobSummary, error) {
	expired, err := s.holdRepo.GetExpired(ctx, asOf, nil)
	if err != nil {
		return nil, err
	}

	summary := &domain.HoldExpiryJobSummary{
		JobID:          domain.NewEntityID(),
		ProcessingDate: asOf,
	}
	for _, hold := range expired {
		if !hold.AutomaticRelease {
			continue
		}
		amount := hold.Amount
		now := time.Now().UTC()
		system := domain.PersonID(domain.NilEntityID)
		hold.Status = domain.HoldStatusExpired
		hold.Amount = decimal.Zero
		hold.ReleasedAt = &now
		hold.ReleasedByPerson = &system

		updated, err := s.holdRepo.Update(ctx, hold, hold.Version)
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			continue
		}
		if err := s.holdRepo.AppendRelease(ctx, &domain.HoldReleaseRecord{
			ID:           domain.NewEntityID(),
			HoldID:       hold.ID,
			Amount:       amount,
			ReleasedBy:   system,
			ReleasedAt:   now,
			ResultStatus: domain.HoldStatusExpired,
		}); err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			continue
		}

		s.balances.Invalidate(updated.AccountID)
		if s.audit != nil {
			if _, err := s.audit.RecordHold(ctx, updated, system); err != nil {
				summary.Errors = append(summary.Errors, err.Error())
				continue
			}
		}
		s.publishEvent(updated.AccountID, websocket.HoldExpired(updated))

		summary.ProcessedCount++
		summary.TotalAmount = summary.TotalAmount.Add(amount)
	}
	return summary, nil
}

// OverrideForTransaction selects the minimum set of Active holds whose
// combined amount covers requiredAmount, skipping any hold whose
// priority is at least as senior as overridePriority, and records an
// authorized decision to bypass them for a single posting. The holds
// themselves stay Active — only their eligibility for this one
// transaction's available-balance check changes.
func (s *HoldService) OverrideForTransaction(ctx context.Context, accountID, transactionID domain.EntityID, requiredAmount decimal.Decimal, overridePriority domain.HoldPriority, authorizedBy domain.PersonID, reasonID domain.EntityID) (*domain.HoldOverrideRecord, error) {
	active, err := s.holdRepo.GetActiveHolds(ctx, accountID, nil)
	if err != nil {
		return nil, err
	}

	sort.Slice(active, func(i, j int) bool { return active[i].Amount.GreaterThan(active[j].Amount) })

	var selected []domain.EntityID
	covered := decimal.Zero
	for _, h := range active {
		if h.Priority.AtLeast(overridePriority) {
			continue
		}
		selected = append(selected, h.ID)
		covered = covered.Add(h.Amount)
		if covered.GreaterThanOrEqual(requiredAmount) {
			break
		}
	}

	record := &domain.HoldOverrideRecord{
		ID:               domain.NewEntityID(),
		AccountID:        accountID,
		TransactionID:    transactionID,
		HoldIDs:          selected,
		RequiredAmount:   domain.NormalizeAmount(requiredAmount),
		OverridePriority: overridePriority,
		AuthorizedBy:     authorizedBy,
		ReasonID:         reasonID,
		CreatedAt:        time.Now().UTC(),
	}
	return s.holdRepo.CreateOverride(ctx, record)
}

// GetActiveHolds returns every Active hold on accountID, optionally
// filtered by type.
func (s *HoldService) GetActiveHolds(ctx context.Context, accountID domain.EntityID, types []domain.HoldType) ([]*domain.AccountHold, error) {
	return s.holdRepo.GetActiveHolds(ctx, accountID, types)
}

// FindByCourtReference resolves every hold tied to a given court
// reference, used to reconcile judicial liens against an
// external court docket feed.
func (s *HoldService) FindByCourtReference(ctx context.Context, courtReference string) ([]*domain.AccountHold, error) {
	return s.holdRepo.GetByCourtReference(ctx, courtReference)
}

// Analytics computes a read-only summary of one account's hold
// exposure.
func (s *HoldService) Analytics(ctx context.Context, accountID domain.EntityID) (*domain.HoldAnalytics, error) {
	calc, err := s.balances.Calculate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	ratio := decimal.Zero
	if !calc.CurrentBalance.IsZero() {
		ratio = calc.TotalHolds.Div(calc.CurrentBalance)
	}
	return &domain.HoldAnalytics{
		AccountID:          accountID,
		TotalActiveHolds:   calc.TotalHolds,
		ActiveHoldCount:    calc.ActiveHoldCount,
		HoldToBalanceRatio: ratio,
	}, nil
}

// HighHoldRatioAccounts scans candidateAccountIDs and returns those
// whose hold-to-balance ratio is at or above threshold. Intended for
// periodic review, not the posting hot path.
func (s *HoldService) HighHoldRatioAccounts(ctx context.Context, candidateAccountIDs []domain.EntityID, threshold decimal.Decimal) ([]domain.EntityID, error) {
	var flagged []domain.EntityID
	for _, id := range candidateAccountIDs {
		analytics, err := s.Analytics(ctx, id)
		if err != nil {
			return nil, err
		}
		if analytics.HoldToBalanceRatio.GreaterThanOrEqual(threshold) {
			flagged = append(flagged, id)
		}
	}
	return flagged, nil
}

// BulkPlace implements the all-or-nothing batch protocol for
// placing multiple holds in one transaction. Every request is validated
// before any hold is created; a single invalid request fails the whole
// batch.
func (s *HoldService) BulkPlace(ctx context.Context, requests []domain.PlaceHoldRequest, callerLevel domain.HoldAuthorizationLevel) (*domain.BatchResult, []*domain.AccountHold, error) {
	holds := make([]*domain.AccountHold, 0, len(requests))
	for _, req := range requests {
		required := domain.RequiredAuthorizationLevel(req.HoldType, req.Amount)
		if !callerLevel.Meets(required) {
			return nil, nil, &domain.UnauthorizedOperationError{Operation: "BulkPlace:" + string(req.HoldType), Required: string(required)}
		}
		hold := &domain.AccountHold{
			ID:                domain.NewEntityID(),
			AccountID:         req.AccountID,
			Amount:            domain.NormalizeAmount(req.Amount),
			HoldType:          req.HoldType,
			Priority:          req.Priority,
			ReasonID:          req.ReasonID,
			AdditionalDetails: req.AdditionalDetails,
			PlacedByPerson:    req.PlacedByPerson,
			PlacedAt:          time.Now().UTC(),
			ExpiresAt:         req.ExpiresAt,
			Status:            domain.HoldStatusActive,
			SourceReference:   req.SourceReference,
			AutomaticRelease:  req.ExpiresAt != nil,
		}
		if err := hold.Validate(); err != nil {
			return nil, nil, err
		}
		holds = append(holds, hold)
	}

	created, err := s.holdRepo.BulkCreate(ctx, holds)
	if err != nil {
		return nil, nil, err
	}

	result := &domain.BatchResult{}
	for _, h := range created {
		s.balances.Invalidate(h.AccountID)
		skipped := false
		if s.audit != nil {
			var err error
			skipped, err = s.audit.RecordHold(ctx, h, h.PlacedByPerson)
			if err != nil {
				return nil, nil, err
			}
		}
		if skipped {
			result.Skipped++
		} else {
			result.Created++
		}
		s.publishEvent(h.AccountID, websocket.HoldPlaced(h))
	}
	return result, created, nil
}
