package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meridianledger/core/internal/domain"
	"github.com/meridianledger/core/internal/repository/memory"
	"github.com/shopspring/decimal"
)

func newTestAccountService(t *testing.T, catalog domain.ProductCatalog) (*AccountService, *memory.AccountRepository) {
	t.Helper()
	svc, accountRepo, _ := newTestAccountServiceWithHolds(t, catalog)
	return svc, accountRepo
}

func newTestAccountServiceWithHolds(t *testing.T, catalog domain.ProductCatalog) (*AccountService, *memory.AccountRepository, *memory.HoldRepository) {
	t.Helper()
	accountRepo := memory.NewAccountRepository()
	holdRepo := memory.NewHoldRepository()
	audit := NewAuditService(memory.NewAuditRepository())
	return NewAccountService(accountRepo, holdRepo, catalog, audit), accountRepo, holdRepo
}

func TestCreateAccount_Success(t *testing.T) {
	catalog := newStubCatalog()
	catalog.rules["CUR-001"] = &domain.ProductRules{ProductCode: "CUR-001"}
	svc, _ := newTestAccountService(t, catalog)

	account, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		ProductCode: "CUR-001",
		Variant:     domain.AccountVariantCurrent,
		Currency:    "USD",
		OpenDate:    time.Now().UTC(),
		OpenedBy:    domain.NewEntityID(),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if account.Status != domain.AccountStatusPendingApproval {
		t.Errorf("expected a new account to open in PendingApproval, got %s", account.Status)
	}
	if !account.CurrentBalance.IsZero() {
		t.Errorf("expected a new account to open with a zero balance, got %s", account.CurrentBalance)
	}
}

func TestCreateAccount_AppliesProductDefaults(t *testing.T) {
	catalog := newStubCatalog()
	defaultOverdraft := decimal.NewFromInt(500)
	dormancyDays := int32(30)
	catalog.rules["CUR-001"] = &domain.ProductRules{
		ProductCode:           "CUR-001",
		DefaultOverdraftLimit: &defaultOverdraft,
		DefaultDormancyDays:   &dormancyDays,
	}
	svc, _ := newTestAccountService(t, catalog)

	account, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		ProductCode: "CUR-001",
		Variant:     domain.AccountVariantCurrent,
		Currency:    "USD",
		OpenDate:    time.Now().UTC(),
		OpenedBy:    domain.NewEntityID(),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if account.OverdraftLimit == nil || !account.OverdraftLimit.Equal(defaultOverdraft) {
		t.Errorf("expected the product's default overdraft limit to be applied, got %v", account.OverdraftLimit)
	}
	if account.DormancyThresholdDays != 30 {
		t.Errorf("expected the product's default dormancy threshold, got %d", account.DormancyThresholdDays)
	}
}

func TestCreateAccount_UnknownProductCode(t *testing.T) {
	catalog := newStubCatalog()
	svc, _ := newTestAccountService(t, catalog)

	_, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		ProductCode: "NOPE",
		Variant:     domain.AccountVariantCurrent,
		Currency:    "USD",
		OpenDate:    time.Now().UTC(),
	})
	if err == nil {
		t.Fatal("expected an error for an unrecognized product code")
	}
	var invalidCode *domain.InvalidProductCodeError
	if !errors.As(err, &invalidCode) {
		t.Errorf("expected an InvalidProductCodeError, got %T: %v", err, err)
	}
}

func TestUpdateStatus_LegalTransition(t *testing.T) {
	catalog := newStubCatalog()
	catalog.rules["CUR-001"] = &domain.ProductRules{ProductCode: "CUR-001"}
	svc, _ := newTestAccountService(t, catalog)

	account, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		ProductCode: "CUR-001",
		Variant:     domain.AccountVariantCurrent,
		Currency:    "USD",
		OpenDate:    time.Now().UTC(),
		OpenedBy:    domain.NewEntityID(),
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		AccountID:       account.ID,
		NewStatus:       domain.AccountStatusActive,
		ChangedBy:       domain.NewEntityID(),
		ExpectedVersion: account.Version,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated.Status != domain.AccountStatusActive {
		t.Errorf("expected Active, got %s", updated.Status)
	}
}

func TestUpdateStatus_IllegalTransitionRejected(t *testing.T) {
	catalog := newStubCatalog()
	catalog.rules["CUR-001"] = &domain.ProductRules{ProductCode: "CUR-001"}
	svc, _ := newTestAccountService(t, catalog)

	account, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		ProductCode: "CUR-001",
		Variant:     domain.AccountVariantCurrent,
		Currency:    "USD",
		OpenDate:    time.Now().UTC(),
		OpenedBy:    domain.NewEntityID(),
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	_, err = svc.UpdateStatus(context.Background(), UpdateStatusInput{
		AccountID:       account.ID,
		NewStatus:       domain.AccountStatusDormant,
		ChangedBy:       domain.NewEntityID(),
		ExpectedVersion: account.Version,
	})
	if err == nil {
		t.Fatal("expected an error for an illegal transition from PendingApproval to Dormant")
	}
}

func TestUpdateStatus_MissingReasonRejected(t *testing.T) {
	catalog := newStubCatalog()
	catalog.rules["CUR-001"] = &domain.ProductRules{ProductCode: "CUR-001"}
	svc, _ := newTestAccountService(t, catalog)

	account, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		ProductCode: "CUR-001",
		Variant:     domain.AccountVariantCurrent,
		Currency:    "USD",
		OpenDate:    time.Now().UTC(),
		OpenedBy:    domain.NewEntityID(),
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}
	activated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		AccountID:       account.ID,
		NewStatus:       domain.AccountStatusActive,
		ChangedBy:       domain.NewEntityID(),
		ExpectedVersion: account.Version,
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	_, err = svc.UpdateStatus(context.Background(), UpdateStatusInput{
		AccountID:       activated.ID,
		NewStatus:       domain.AccountStatusFrozen,
		ChangedBy:       domain.NewEntityID(),
		ExpectedVersion: activated.Version,
	})
	if err == nil {
		t.Fatal("expected an error: Frozen requires a reason id")
	}
}

func TestUpdateStatus_ClosureRejectedWithActiveHold(t *testing.T) {
	catalog := newStubCatalog()
	catalog.rules["CUR-001"] = &domain.ProductRules{ProductCode: "CUR-001"}
	svc, _, holdRepo := newTestAccountServiceWithHolds(t, catalog)

	account, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		ProductCode: "CUR-001",
		Variant:     domain.AccountVariantCurrent,
		Currency:    "USD",
		OpenDate:    time.Now().UTC(),
		OpenedBy:    domain.NewEntityID(),
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	if _, err := holdRepo.Create(context.Background(), &domain.AccountHold{
		AccountID: account.ID,
		Amount:    decimal.NewFromInt(10),
		HoldType:  domain.HoldTypeUnclearedFunds,
		Priority:  domain.HoldPriorityStandard,
		Status:    domain.HoldStatusActive,
	}); err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	_, err = svc.UpdateStatus(context.Background(), UpdateStatusInput{
		AccountID:       account.ID,
		NewStatus:       domain.AccountStatusClosed,
		ReasonID:        domain.NewEntityID(),
		ChangedBy:       domain.NewEntityID(),
		ExpectedVersion: account.Version,
	})
	if err == nil {
		t.Fatal("expected an error: an account with an Active hold cannot be closed")
	}
}

func TestUpdateStatus_ClosureRejectedWithNegativeBalance(t *testing.T) {
	catalog := newStubCatalog()
	catalog.rules["CUR-001"] = &domain.ProductRules{ProductCode: "CUR-001"}
	svc, accountRepo, _ := newTestAccountServiceWithHolds(t, catalog)

	account, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		ProductCode: "CUR-001",
		Variant:     domain.AccountVariantCurrent,
		Currency:    "USD",
		OpenDate:    time.Now().UTC(),
		OpenedBy:    domain.NewEntityID(),
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	if _, err := accountRepo.UpdateBalance(context.Background(), account.ID, decimal.NewFromInt(-5), decimal.NewFromInt(-5), account.Version); err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	_, err = svc.UpdateStatus(context.Background(), UpdateStatusInput{
		AccountID:       account.ID,
		NewStatus:       domain.AccountStatusClosed,
		ReasonID:        domain.NewEntityID(),
		ChangedBy:       domain.NewEntityID(),
		ExpectedVersion: account.Version + 1,
	})
	if err == nil {
		t.Fatal("expected an error: an account with a negative balance cannot be closed")
	}
}

func TestUpdateStatus_ClosureSucceedsWithNoHoldsAndNonNegativeBalance(t *testing.T) {
	catalog := newStubCatalog()
	catalog.rules["CUR-001"] = &domain.ProductRules{ProductCode: "CUR-001"}
	svc, _, _ := newTestAccountServiceWithHolds(t, catalog)

	account, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		ProductCode: "CUR-001",
		Variant:     domain.AccountVariantCurrent,
		Currency:    "USD",
		OpenDate:    time.Now().UTC(),
		OpenedBy:    domain.NewEntityID(),
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	closed, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		AccountID:       account.ID,
		NewStatus:       domain.AccountStatusClosed,
		ReasonID:        domain.NewEntityID(),
		ChangedBy:       domain.NewEntityID(),
		ExpectedVersion: account.Version,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if closed.Status != domain.AccountStatusClosed {
		t.Errorf("expected Closed, got %s", closed.Status)
	}
}
