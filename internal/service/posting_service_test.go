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

type postingFixture struct {
	posting     *PostingService
	balances    *BalanceService
	accountRepo *memory.AccountRepository
	holdRepo    *memory.HoldRepository
	txRepo      *memory.TransactionRepository
	workflows   *WorkflowService
	catalog     *stubCatalog
}

func newPostingFixture(t *testing.T) *postingFixture {
	t.Helper()
	accountRepo := memory.NewAccountRepository()
	holdRepo := memory.NewHoldRepository()
	auditRepo := memory.NewAuditRepository()
	txRepo := memory.NewTransactionRepository(accountRepo)
	workflowRepo := memory.NewWorkflowRepository()

	audit := NewAuditService(auditRepo)
	balances := NewBalanceService(accountRepo, holdRepo, auditRepo, 0)
	workflows := NewWorkflowService(workflowRepo, audit)
	catalog := newStubCatalog()
	posting := NewPostingService(txRepo, accountRepo, balances, catalog, workflows, audit)

	return &postingFixture{
		posting:     posting,
		balances:    balances,
		accountRepo: accountRepo,
		holdRepo:    holdRepo,
		txRepo:      txRepo,
		workflows:   workflows,
		catalog:     catalog,
	}
}

func (f *postingFixture) seedAccount(t *testing.T, balance decimal.Decimal) *domain.Account {
	t.Helper()
	account, err := f.accountRepo.Create(context.Background(), &domain.Account{
		ProductCode:      "CUR-001",
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

func TestPost_CreditIncreasesBalance(t *testing.T) {
	f := newPostingFixture(t)
	account := f.seedAccount(t, decimal.NewFromInt(500))

	now := time.Now().UTC()
	tx, err := f.posting.Post(context.Background(), domain.PostTransactionRequest{
		AccountID:       account.ID,
		TransactionCode: "DEP",
		Direction:       domain.DirectionCredit,
		Amount:          decimal.NewFromInt(100),
		Currency:        "USD",
		ChannelID:       domain.ChannelTeller,
		TransactionDate: now,
		ValueDate:       now,
		ReferenceNumber: "REF-CREDIT-1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tx.Status != domain.TransactionStatusPosted {
		t.Errorf("expected Posted, got %s", tx.Status)
	}

	updated, err := f.accountRepo.FindByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !updated.CurrentBalance.Equal(decimal.NewFromInt(600)) {
		t.Errorf("expected current balance 600, got %s", updated.CurrentBalance)
	}
}

func TestPost_DuplicateExternalReferenceReturnsOriginal(t *testing.T) {
	f := newPostingFixture(t)
	account := f.seedAccount(t, decimal.NewFromInt(500))

	now := time.Now().UTC()
	externalRef := "BANK-EXT-REF-1"
	req := domain.PostTransactionRequest{
		AccountID:         account.ID,
		TransactionCode:   "DEP",
		Direction:         domain.DirectionCredit,
		Amount:            decimal.NewFromInt(100),
		Currency:          "USD",
		ChannelID:         domain.ChannelOnline,
		TransactionDate:   now,
		ValueDate:         now,
		ReferenceNumber:   "REF-EXT-1",
		ExternalReference: &externalRef,
	}

	first, err := f.posting.Post(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	req.ReferenceNumber = "REF-EXT-2"
	second, err := f.posting.Post(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error on resubmission, got %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected the resubmission to return the original transaction %s, got %s", first.ID, second.ID)
	}

	updated, err := f.accountRepo.FindByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !updated.CurrentBalance.Equal(decimal.NewFromInt(600)) {
		t.Errorf("expected the resubmission not to post a second time, got balance %s", updated.CurrentBalance)
	}
}

func TestPost_DuplicateReferenceNumberRejected(t *testing.T) {
	f := newPostingFixture(t)
	account := f.seedAccount(t, decimal.NewFromInt(500))

	now := time.Now().UTC()
	req := domain.PostTransactionRequest{
		AccountID:       account.ID,
		TransactionCode: "DEP",
		Direction:       domain.DirectionCredit,
		Amount:          decimal.NewFromInt(100),
		Currency:        "USD",
		ChannelID:       domain.ChannelTeller,
		TransactionDate: now,
		ValueDate:       now,
		ReferenceNumber: "REF-DUP-1",
	}
	if _, err := f.posting.Post(context.Background(), req); err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	_, err := f.posting.Post(context.Background(), req)
	if err == nil {
		t.Fatal("expected an error: reference number must be unique")
	}
	var dup *domain.DuplicateReferenceError
	if !errors.As(err, &dup) {
		t.Errorf("expected a DuplicateReferenceError, got %T: %v", err, err)
	}
}

func TestPost_DebitBlockedByHold(t *testing.T) {
	f := newPostingFixture(t)
	account := f.seedAccount(t, decimal.NewFromInt(200))

	if _, err := f.holdRepo.Create(context.Background(), &domain.AccountHold{
		AccountID: account.ID,
		Amount:    decimal.NewFromInt(150),
		HoldType:  domain.HoldTypeUnclearedFunds,
		Priority:  domain.HoldPriorityStandard,
		Status:    domain.HoldStatusActive,
	}); err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	now := time.Now().UTC()
	_, err := f.posting.Post(context.Background(), domain.PostTransactionRequest{
		AccountID:       account.ID,
		TransactionCode: "WD",
		Direction:       domain.DirectionDebit,
		Amount:          decimal.NewFromInt(100),
		Currency:        "USD",
		ChannelID:       domain.ChannelATM,
		TransactionDate: now,
		ValueDate:       now,
		ReferenceNumber: "REF-DEBIT-1",
	})
	if err == nil {
		t.Fatal("expected an error: the hold leaves only 50 available against a 100 debit")
	}
	if _, ok := err.(*domain.InsufficientFundsError); !ok {
		t.Errorf("expected an InsufficientFundsError, got %T: %v", err, err)
	}
}

func TestPost_OverrideAllowsDebitDespiteHold(t *testing.T) {
	f := newPostingFixture(t)
	account := f.seedAccount(t, decimal.NewFromInt(100))

	hold, err := f.holdRepo.Create(context.Background(), &domain.AccountHold{
		AccountID: account.ID,
		Amount:    decimal.NewFromInt(80),
		HoldType:  domain.HoldTypeUnclearedFunds,
		Priority:  domain.HoldPriorityStandard,
		Status:    domain.HoldStatusActive,
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	holds := NewHoldService(f.holdRepo, f.accountRepo, f.balances, nil)
	txID := domain.NewEntityID()
	record, err := holds.OverrideForTransaction(context.Background(), account.ID, txID, decimal.NewFromInt(50), domain.HoldPriorityCritical, domain.NewEntityID(), domain.NewEntityID())
	if err != nil {
		t.Fatalf("expected no error authorizing the override, got %v", err)
	}
	if len(record.HoldIDs) != 1 || record.HoldIDs[0] != hold.ID {
		t.Fatalf("expected the override to select the uncleared-funds hold, got %v", record.HoldIDs)
	}

	now := time.Now().UTC()
	tx, err := f.posting.Post(context.Background(), domain.PostTransactionRequest{
		TransactionID:   &txID,
		AccountID:       account.ID,
		TransactionCode: "WD",
		Direction:       domain.DirectionDebit,
		Amount:          decimal.NewFromInt(50),
		Currency:        "USD",
		ChannelID:       domain.ChannelATM,
		TransactionDate: now,
		ValueDate:       now,
		ReferenceNumber: "REF-OVERRIDE-1",
	})
	if err != nil {
		t.Fatalf("expected the override to clear the insufficient-funds gate, got %v", err)
	}
	if tx.Status != domain.TransactionStatusPosted {
		t.Errorf("expected Posted, got %s", tx.Status)
	}

	updated, err := f.accountRepo.FindByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !updated.CurrentBalance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected current balance 50, got %s", updated.CurrentBalance)
	}

	active, err := f.holdRepo.GetActiveHolds(context.Background(), account.ID, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(active) != 1 || active[0].Status != domain.HoldStatusActive {
		t.Errorf("expected the overridden hold to remain Active, got %+v", active)
	}
}

func TestPost_AboveApprovalThresholdOpensWorkflow(t *testing.T) {
	f := newPostingFixture(t)
	account := f.seedAccount(t, decimal.NewFromInt(100_000))
	f.catalog.rules["CUR-001"] = &domain.ProductRules{
		ProductCode:             "CUR-001",
		ApprovalThresholdAmount: decimal.NewFromInt(10_000),
		MinimumApprovals:        2,
	}

	now := time.Now().UTC()
	tx, err := f.posting.Post(context.Background(), domain.PostTransactionRequest{
		AccountID:       account.ID,
		TransactionCode: "WD",
		Direction:       domain.DirectionDebit,
		Amount:          decimal.NewFromInt(20_000),
		Currency:        "USD",
		ChannelID:       domain.ChannelTeller,
		TransactionDate: now,
		ValueDate:       now,
		ReferenceNumber: "REF-APPROVAL-1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tx.Status != domain.TransactionStatusAwaitingApproval {
		t.Errorf("expected AwaitingApproval, got %s", tx.Status)
	}

	workflow, err := f.workflows.GetByTransactionID(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("expected a TransactionApproval workflow to be opened, got %v", err)
	}
	if workflow.MinimumApprovals != 2 {
		t.Errorf("expected the workflow to carry the product's minimum approval count, got %d", workflow.MinimumApprovals)
	}

	updated, err := f.accountRepo.FindByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !updated.CurrentBalance.Equal(decimal.NewFromInt(100_000)) {
		t.Error("a transaction awaiting approval must not yet move the account balance")
	}
}

func TestPost_ApprovalWorkflowCompletionPostsTransaction(t *testing.T) {
	f := newPostingFixture(t)
	account := f.seedAccount(t, decimal.NewFromInt(100_000))
	f.catalog.rules["CUR-001"] = &domain.ProductRules{
		ProductCode:             "CUR-001",
		ApprovalThresholdAmount: decimal.NewFromInt(10_000),
		MinimumApprovals:        1,
	}

	now := time.Now().UTC()
	tx, err := f.posting.Post(context.Background(), domain.PostTransactionRequest{
		AccountID:       account.ID,
		TransactionCode: "WD",
		Direction:       domain.DirectionDebit,
		Amount:          decimal.NewFromInt(20_000),
		Currency:        "USD",
		ChannelID:       domain.ChannelTeller,
		TransactionDate: now,
		ValueDate:       now,
		ReferenceNumber: "REF-APPROVAL-2",
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	workflow, err := f.workflows.GetByTransactionID(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	approverID := domain.NewEntityID()
	completed, err := f.workflows.RecordApproval(context.Background(), workflow.ID, approverID, domain.ApprovalActionApproved, "", "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if completed.Status != domain.WorkflowStatusCompleted {
		t.Fatalf("expected the workflow to complete once its single required approval is recorded, got %s", completed.Status)
	}

	posted, err := f.posting.PostApproved(context.Background(), tx.ID, approverID, domain.ChannelTeller)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if posted.Status != domain.TransactionStatusPosted {
		t.Errorf("expected Posted, got %s", posted.Status)
	}

	updated, err := f.accountRepo.FindByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !updated.CurrentBalance.Equal(decimal.NewFromInt(80_000)) {
		t.Errorf("expected current balance 80000, got %s", updated.CurrentBalance)
	}
}

func TestReverse_ReversesAPostedTransaction(t *testing.T) {
	f := newPostingFixture(t)
	account := f.seedAccount(t, decimal.NewFromInt(500))

	now := time.Now().UTC()
	tx, err := f.posting.Post(context.Background(), domain.PostTransactionRequest{
		AccountID:       account.ID,
		TransactionCode: "DEP",
		Direction:       domain.DirectionCredit,
		Amount:          decimal.NewFromInt(100),
		Currency:        "USD",
		ChannelID:       domain.ChannelTeller,
		TransactionDate: now,
		ValueDate:       now,
		ReferenceNumber: "REF-REV-1",
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	reversal, err := f.posting.Reverse(context.Background(), domain.ReversalRequest{
		ReferenceNumber: tx.ReferenceNumber,
		Description:     "reversing erroneous deposit",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if reversal.Direction != domain.DirectionDebit {
		t.Errorf("expected the reversal of a Credit to be a Debit, got %s", reversal.Direction)
	}

	updated, err := f.accountRepo.FindByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !updated.CurrentBalance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected the balance to return to 500 after reversal, got %s", updated.CurrentBalance)
	}
}

func TestReverse_PendingTransactionRejected(t *testing.T) {
	f := newPostingFixture(t)
	account := f.seedAccount(t, decimal.NewFromInt(100_000))
	f.catalog.rules["CUR-001"] = &domain.ProductRules{
		ProductCode:             "CUR-001",
		ApprovalThresholdAmount: decimal.NewFromInt(10_000),
		MinimumApprovals:        1,
	}

	now := time.Now().UTC()
	tx, err := f.posting.Post(context.Background(), domain.PostTransactionRequest{
		AccountID:       account.ID,
		TransactionCode: "WD",
		Direction:       domain.DirectionDebit,
		Amount:          decimal.NewFromInt(20_000),
		Currency:        "USD",
		ChannelID:       domain.ChannelTeller,
		TransactionDate: now,
		ValueDate:       now,
		ReferenceNumber: "REF-REV-2",
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	_, err = f.posting.Reverse(context.Background(), domain.ReversalRequest{ReferenceNumber: tx.ReferenceNumber})
	if err == nil {
		t.Fatal("expected an error: only a Posted transaction can be reversed")
	}
}
