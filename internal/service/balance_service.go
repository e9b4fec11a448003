package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/meridianledger/core/internal/domain"
	"github.com/shopspring/decimal"
)

// BalanceCalculation is the deterministic, total result of computing an
// account's available balance.
type BalanceCalculation struct {
	Account              *domain.Account
	CurrentBalance       decimal.Decimal
	AvailableBalance     decimal.Decimal
	OverdraftLimit       decimal.Decimal
	TotalHolds           decimal.Decimal
	ActiveHoldCount      int
	CalculationTimestamp time.Time
	HoldBreakdown        []domain.HoldTypeBreakdown
}

// BalanceService composes AccountRepository and HoldRepository into a
// read-only available-balance computation and performs no further I/O.
// Results may be cached for a short bounded TTL keyed by (account id,
// latest audit log id).
type BalanceService struct {
	accountRepo domain.AccountRepository
	holdRepo    domain.HoldRepository
	auditRepo   domain.AuditRepository

	cache    *expirable.LRU[string, *BalanceCalculation]
	cacheTTL time.Duration
}

// NewBalanceService creates a new BalanceService. cacheTTL of zero
// disables caching (every call recomputes from the repositories).
func NewBalanceService(accountRepo domain.AccountRepository, holdRepo domain.HoldRepository, auditRepo domain.AuditRepository, cacheTTL time.Duration) *BalanceService {
	s := &BalanceService{
		accountRepo: accountRepo,
		holdRepo:    holdRepo,
		auditRepo:   auditRepo,
		cacheTTL:    cacheTTL,
	}
	if cacheTTL > 0 {
		s.cache = expirable.NewLRU[string, *BalanceCalculation](4096, nil, cacheTTL)
	}
	return s
}

func cacheKey(accountID domain.EntityID, latestAuditLogID int64) string {
	return fmt.Sprintf("%s:%d", accountID, latestAuditLogID)
}

// Calculate returns the BalanceCalculation for accountID, applying the
// available-balance rules by variant:
//
//	Current: current − Σholds + overdraft_limit
//	Savings: max(current − Σholds, 0)
//	Loan:    0
func (s *BalanceService) Calculate(ctx context.Context, accountID domain.EntityID) (*BalanceCalculation, error) {
	var latestAuditID int64
	if s.cache != nil {
		if entry, err := s.auditRepo.GetLatest(ctx, domain.AuditedEntityAccount, accountID); err == nil && entry != nil {
			latestAuditID = entry.ID
		}
		if cached, ok := s.cache.Get(cacheKey(accountID, latestAuditID)); ok {
			return cached, nil
		}
	}

	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	activeHolds, err := s.holdRepo.GetActiveHolds(ctx, accountID, nil)
	if err != nil {
		return nil, err
	}

	calc := s.compute(account, activeHolds)

	if s.cache != nil {
		s.cache.Add(cacheKey(accountID, latestAuditID), calc)
	}
	return calc, nil
}

// compute is the pure function over (account, active holds) — no I/O,
// deterministic, total.
func (s *BalanceService) compute(account *domain.Account, activeHolds []*domain.AccountHold) *BalanceCalculation {
	totalHolds := decimal.Zero
	for _, h := range activeHolds {
		totalHolds = totalHolds.Add(h.Amount)
	}

	var available decimal.Decimal
	switch account.Variant {
	case domain.AccountVariantCurrent:
		available = account.CurrentBalance.Sub(totalHolds).Add(account.Overdraft())
	case domain.AccountVariantSavings:
		available = account.CurrentBalance.Sub(totalHolds)
		if available.LessThan(decimal.Zero) {
			available = decimal.Zero
		}
	case domain.AccountVariantLoan:
		available = decimal.Zero
	}

	return &BalanceCalculation{
		Account:              account,
		CurrentBalance:       account.CurrentBalance,
		AvailableBalance:     available,
		OverdraftLimit:       account.Overdraft(),
		TotalHolds:           totalHolds,
		ActiveHoldCount:      len(activeHolds),
		CalculationTimestamp: time.Now().UTC(),
		HoldBreakdown:        breakdownByTypeAndPriority(activeHolds),
	}
}

// breakdownByTypeAndPriority groups active holds by (hold_type,
// priority) pairs.
func breakdownByTypeAndPriority(holds []*domain.AccountHold) []domain.HoldTypeBreakdown {
	type key struct {
		t domain.HoldType
		p domain.HoldPriority
	}
	agg := make(map[key]*domain.HoldTypeBreakdown)
	var order []key
	for _, h := range holds {
		k := key{h.HoldType, h.Priority}
		row, ok := agg[k]
		if !ok {
			row = &domain.HoldTypeBreakdown{HoldType: h.HoldType, Priority: h.Priority}
			agg[k] = row
			order = append(order, k)
		}
		row.Count++
		row.TotalAmount = row.TotalAmount.Add(h.Amount)
	}
	result := make([]domain.HoldTypeBreakdown, 0, len(order))
	for _, k := range order {
		result = append(result, *agg[k])
	}
	return result
}

// Invalidate drops any cached calculation for accountID. The posting and
// hold-mutation paths invalidate-or-read-through rather than ever
// serving a stale value.
func (s *BalanceService) Invalidate(accountID domain.EntityID) {
	if s.cache == nil {
		return
	}
	// Keys are "accountID:auditLogID", so every entry for the account
	// shares the account id prefix.
	prefix := accountID.String() + ":"
	for _, key := range s.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Remove(key)
		}
	}
}

// AvailableBalanceIgnoring recomputes effective available balance while
// excluding the given hold types, without mutating anything.
func (s *BalanceService) AvailableBalanceIgnoring(ctx context.Context, accountID domain.EntityID, ignoreTypes []domain.HoldType) (decimal.Decimal, error) {
	calc, err := s.Calculate(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	ignored := decimal.Zero
	ignoreSet := make(map[domain.HoldType]bool, len(ignoreTypes))
	for _, t := range ignoreTypes {
		ignoreSet[t] = true
	}
	for _, row := range calc.HoldBreakdown {
		if ignoreSet[row.HoldType] {
			ignored = ignored.Add(row.TotalAmount)
		}
	}
	return calc.AvailableBalance.Add(ignored), nil
}

// Covers reports whether the account's available balance is at least
// amount, without excluding any hold types.
func (s *BalanceService) Covers(ctx context.Context, accountID domain.EntityID, amount decimal.Decimal) (bool, *BalanceCalculation, error) {
	calc, err := s.Calculate(ctx, accountID)
	if err != nil {
		return false, nil, err
	}
	return calc.AvailableBalance.GreaterThanOrEqual(amount), calc, nil
}
