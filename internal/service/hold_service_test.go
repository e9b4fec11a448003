package service

import (
	"context"
	"testing"
	"time"

	"github.com/meridianledger/core/internal/domain"
	"github.com/meridianledger/core/internal/repository/memory"
	"github.com/shopspring/decimal"
)

func newTestHoldService(t *testing.T) (*HoldService, *memory.AccountRepository, *memory.HoldRepository) {
	t.Helper()
	accountRepo := memory.NewAccountRepository()
	holdRepo := memory.NewHoldRepository()
	auditRepo := memory.NewAuditRepository()
	audit := NewAuditService(auditRepo)
	balances := NewBalanceService(accountRepo, holdRepo, auditRepo, 0)
	return NewHoldService(holdRepo, accountRepo, balances, audit), accountRepo, holdRepo
}

func seedActiveAccount(t *testing.T, repo *memory.AccountRepository, balance decimal.Decimal) *domain.Account {
	t.Helper()
	account, err := repo.Create(context.Background(), &domain.Account{
		Variant:          domain.AccountVariantCurrent,
		Status:           domain.AccountStatusActive,
		Currency:         "USD",
		CurrentBalance:   balance,
		AvailableBalance: balance,
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}
	return account
}

func TestPlaceHold_Success(t *testing.T) {
	svc, accountRepo, _ := newTestHoldService(t)
	account := seedActiveAccount(t, accountRepo, decimal.NewFromInt(1000))

	hold, err := svc.PlaceHold(context.Background(), domain.PlaceHoldRequest{
		AccountID: account.ID,
		Amount:    decimal.NewFromInt(200),
		HoldType:  domain.HoldTypeUnclearedFunds,
		Priority:  domain.HoldPriorityStandard,
	}, domain.HoldAuthorizationStandard)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if hold.Status != domain.HoldStatusActive {
		t.Errorf("expected a new hold to be Active, got %s", hold.Status)
	}
}

func TestPlaceHold_InsufficientAvailableBalanceRejected(t *testing.T) {
	svc, accountRepo, _ := newTestHoldService(t)
	account := seedActiveAccount(t, accountRepo, decimal.NewFromInt(100))

	_, err := svc.PlaceHold(context.Background(), domain.PlaceHoldRequest{
		AccountID: account.ID,
		Amount:    decimal.NewFromInt(500),
		HoldType:  domain.HoldTypeUnclearedFunds,
		Priority:  domain.HoldPriorityStandard,
	}, domain.HoldAuthorizationStandard)
	if err == nil {
		t.Fatal("expected an error: available balance does not cover the requested hold")
	}
	if _, ok := err.(*domain.InsufficientFundsError); !ok {
		t.Errorf("expected an InsufficientFundsError, got %T: %v", err, err)
	}
}

func TestPlaceHold_CriticalPriorityBypassesBalanceGate(t *testing.T) {
	svc, accountRepo, _ := newTestHoldService(t)
	account := seedActiveAccount(t, accountRepo, decimal.NewFromInt(100))

	hold, err := svc.PlaceHold(context.Background(), domain.PlaceHoldRequest{
		AccountID: account.ID,
		Amount:    decimal.NewFromInt(5000),
		HoldType:  domain.HoldTypeFraudHold,
		Priority:  domain.HoldPriorityCritical,
	}, domain.HoldAuthorizationManager)
	if err != nil {
		t.Fatalf("a Critical hold should bypass the available-balance gate, got %v", err)
	}
	if hold.Amount.Cmp(decimal.NewFromInt(5000)) != 0 {
		t.Errorf("expected the hold amount to be recorded as placed, got %s", hold.Amount)
	}
}

func TestPlaceHold_InsufficientAuthorizationRejected(t *testing.T) {
	svc, accountRepo, _ := newTestHoldService(t)
	account := seedActiveAccount(t, accountRepo, decimal.NewFromInt(1000))

	_, err := svc.PlaceHold(context.Background(), domain.PlaceHoldRequest{
		AccountID: account.ID,
		Amount:    decimal.NewFromInt(100),
		HoldType:  domain.HoldTypeJudicialLien,
		Priority:  domain.HoldPriorityStandard,
	}, domain.HoldAuthorizationManager)
	if err == nil {
		t.Fatal("expected an error: a judicial lien requires External authorization")
	}
	if _, ok := err.(*domain.UnauthorizedOperationError); !ok {
		t.Errorf("expected an UnauthorizedOperationError, got %T: %v", err, err)
	}
}

func TestReleaseHold_FullRelease(t *testing.T) {
	svc, accountRepo, _ := newTestHoldService(t)
	account := seedActiveAccount(t, accountRepo, decimal.NewFromInt(1000))

	hold, err := svc.PlaceHold(context.Background(), domain.PlaceHoldRequest{
		AccountID: account.ID,
		Amount:    decimal.NewFromInt(200),
		HoldType:  domain.HoldTypeUnclearedFunds,
		Priority:  domain.HoldPriorityStandard,
	}, domain.HoldAuthorizationStandard)
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	released, err := svc.ReleaseHold(context.Background(), domain.ReleaseHoldRequest{HoldID: hold.ID})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if released.Status != domain.HoldStatusReleased {
		t.Errorf("expected Released, got %s", released.Status)
	}
	if !released.Amount.IsZero() {
		t.Errorf("expected a fully released hold to carry a zero remaining amount, got %s", released.Amount)
	}
}

func TestReleaseHold_PartialRelease(t *testing.T) {
	svc, accountRepo, _ := newTestHoldService(t)
	account := seedActiveAccount(t, accountRepo, decimal.NewFromInt(1000))

	hold, err := svc.PlaceHold(context.Background(), domain.PlaceHoldRequest{
		AccountID: account.ID,
		Amount:    decimal.NewFromInt(200),
		HoldType:  domain.HoldTypeUnclearedFunds,
		Priority:  domain.HoldPriorityStandard,
	}, domain.HoldAuthorizationStandard)
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	partial := decimal.NewFromInt(80)
	released, err := svc.ReleaseHold(context.Background(), domain.ReleaseHoldRequest{
		HoldID:        hold.ID,
		ReleaseAmount: &partial,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if released.Status != domain.HoldStatusPartiallyReleased {
		t.Errorf("expected PartiallyReleased, got %s", released.Status)
	}
	if !released.Amount.Equal(decimal.NewFromInt(120)) {
		t.Errorf("expected the remaining hold amount to be 120, got %s", released.Amount)
	}
}

func TestReleaseHold_TerminalHoldRejected(t *testing.T) {
	svc, accountRepo, _ := newTestHoldService(t)
	account := seedActiveAccount(t, accountRepo, decimal.NewFromInt(1000))

	hold, err := svc.PlaceHold(context.Background(), domain.PlaceHoldRequest{
		AccountID: account.ID,
		Amount:    decimal.NewFromInt(200),
		HoldType:  domain.HoldTypeUnclearedFunds,
		Priority:  domain.HoldPriorityStandard,
	}, domain.HoldAuthorizationStandard)
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}
	if _, err := svc.ReleaseHold(context.Background(), domain.ReleaseHoldRequest{HoldID: hold.ID}); err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	_, err = svc.ReleaseHold(context.Background(), domain.ReleaseHoldRequest{HoldID: hold.ID})
	if err == nil {
		t.Fatal("expected an error releasing an already-released hold")
	}
}

func TestProcessExpiredHolds_ReleasesOnlyAutomaticReleaseHolds(t *testing.T) {
	svc, accountRepo, holdRepo := newTestHoldService(t)
	account := seedActiveAccount(t, accountRepo, decimal.NewFromInt(1000))

	past := time.Now().UTC().Add(-time.Hour)
	auto, err := holdRepo.Create(context.Background(), &domain.AccountHold{
		AccountID:        account.ID,
		Amount:           decimal.NewFromInt(100),
		HoldType:         domain.HoldTypeUnclearedFunds,
		Priority:         domain.HoldPriorityStandard,
		Status:           domain.HoldStatusActive,
		ExpiresAt:        &past,
		AutomaticRelease: true,
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}
	manual, err := holdRepo.Create(context.Background(), &domain.AccountHold{
		AccountID:        account.ID,
		Amount:           decimal.NewFromInt(50),
		HoldType:         domain.HoldTypeUnclearedFunds,
		Priority:         domain.HoldPriorityStandard,
		Status:           domain.HoldStatusActive,
		ExpiresAt:        &past,
		AutomaticRelease: false,
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	summary, err := svc.ProcessExpiredHolds(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if summary.ProcessedCount != 1 {
		t.Errorf("expected exactly one hold to be processed, got %d", summary.ProcessedCount)
	}

	refreshedAuto, err := holdRepo.GetByID(context.Background(), auto.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if refreshedAuto.Status != domain.HoldStatusExpired {
		t.Errorf("expected the automatic-release hold to expire, got %s", refreshedAuto.Status)
	}

	refreshedManual, err := holdRepo.GetByID(context.Background(), manual.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if refreshedManual.Status != domain.HoldStatusActive {
		t.Errorf("expected the manual-release hold to remain Active, got %s", refreshedManual.Status)
	}
}
