package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestValidTransition(t *testing.T) {
	tests := []struct {
		name string
		from AccountStatus
		to   AccountStatus
		want bool
	}{
		{"pending approval to active", AccountStatusPendingApproval, AccountStatusActive, true},
		{"pending approval to closed", AccountStatusPendingApproval, AccountStatusClosed, true},
		{"pending approval to dormant", AccountStatusPendingApproval, AccountStatusDormant, false},
		{"active to dormant", AccountStatusActive, AccountStatusDormant, true},
		{"active to frozen", AccountStatusActive, AccountStatusFrozen, true},
		{"active to closed directly", AccountStatusActive, AccountStatusClosed, false},
		{"dormant to pending reactivation", AccountStatusDormant, AccountStatusPendingReactivation, true},
		{"dormant to active directly", AccountStatusDormant, AccountStatusActive, false},
		{"frozen to active", AccountStatusFrozen, AccountStatusActive, true},
		{"pending closure to closed", AccountStatusPendingClosure, AccountStatusClosed, true},
		{"closed to anything", AccountStatusClosed, AccountStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("ValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestAccountStatusIsTerminal(t *testing.T) {
	if !AccountStatusClosed.IsTerminal() {
		t.Error("Closed should be terminal")
	}
	if AccountStatusActive.IsTerminal() {
		t.Error("Active should not be terminal")
	}
}

func TestAccountStatusRequiresReason(t *testing.T) {
	tests := []struct {
		status AccountStatus
		want   bool
	}{
		{AccountStatusFrozen, true},
		{AccountStatusClosed, true},
		{AccountStatusPendingClosure, true},
		{AccountStatusActive, false},
		{AccountStatusDormant, false},
	}
	for _, tt := range tests {
		if got := tt.status.RequiresReason(); got != tt.want {
			t.Errorf("%s.RequiresReason() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func validCurrentAccount() *Account {
	overdraft := decimal.NewFromInt(100)
	return &Account{
		ID:               NewEntityID(),
		ProductCode:      "CUR-001",
		Variant:          AccountVariantCurrent,
		Status:           AccountStatusActive,
		Currency:         "USD",
		CurrentBalance:   decimal.NewFromInt(500),
		AvailableBalance: decimal.NewFromInt(500),
		OverdraftLimit:   &overdraft,
	}
}

func TestAccountValidate_Success(t *testing.T) {
	a := validCurrentAccount()
	if err := a.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestAccountValidate_BadCurrency(t *testing.T) {
	a := validCurrentAccount()
	a.Currency = "us"
	if err := a.Validate(); err == nil {
		t.Fatal("expected an error for malformed currency")
	}
}

func TestAccountValidate_UnrecognizedVariant(t *testing.T) {
	a := validCurrentAccount()
	a.Variant = "Checking"
	if err := a.Validate(); err == nil {
		t.Fatal("expected an error for unrecognized variant")
	}
}

func TestAccountValidate_LoanRequiresLoanTerms(t *testing.T) {
	a := validCurrentAccount()
	a.Variant = AccountVariantLoan
	a.OverdraftLimit = nil
	a.Loan = nil
	if err := a.Validate(); err == nil {
		t.Fatal("expected an error when a Loan account has no loan terms")
	}
}

func TestAccountValidate_LoanOutstandingExceedsOriginal(t *testing.T) {
	a := validCurrentAccount()
	a.Variant = AccountVariantLoan
	a.OverdraftLimit = nil
	a.Loan = &LoanTerms{
		OriginalPrincipal:    decimal.NewFromInt(1000),
		OutstandingPrincipal: decimal.NewFromInt(2000),
	}
	if err := a.Validate(); err == nil {
		t.Fatal("expected an error when outstanding principal exceeds original principal")
	}
}

func TestAccountValidate_OverdraftOnNonCurrentAccount(t *testing.T) {
	a := validCurrentAccount()
	a.Variant = AccountVariantSavings
	if err := a.Validate(); err == nil {
		t.Fatal("expected an error for overdraft limit on a non-Current account")
	}
}

func TestAccountValidate_NegativeOverdraftLimit(t *testing.T) {
	a := validCurrentAccount()
	negative := decimal.NewFromInt(-1)
	a.OverdraftLimit = &negative
	if err := a.Validate(); err == nil {
		t.Fatal("expected an error for a negative overdraft limit")
	}
}

func TestAccountValidate_AvailableBalanceExceedsCeiling(t *testing.T) {
	a := validCurrentAccount()
	a.AvailableBalance = decimal.NewFromInt(10000)
	if err := a.Validate(); err == nil {
		t.Fatal("expected an error when available balance exceeds current balance plus overdraft")
	}
}

func TestAccountOverdraft(t *testing.T) {
	a := validCurrentAccount()
	if !a.Overdraft().Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected overdraft of 100, got %s", a.Overdraft())
	}
	a.OverdraftLimit = nil
	if !a.Overdraft().IsZero() {
		t.Error("expected zero overdraft when OverdraftLimit is nil")
	}
}

func TestAccountIsDebitBlocked(t *testing.T) {
	tests := []struct {
		name    string
		status  AccountStatus
		channel ChannelID
		want    bool
	}{
		{"frozen blocks every channel", AccountStatusFrozen, ChannelATM, true},
		{"closed blocks every channel", AccountStatusClosed, ChannelTeller, true},
		{"pending approval blocks every channel", AccountStatusPendingApproval, ChannelOnline, true},
		{"dormant blocks a customer channel", AccountStatusDormant, ChannelATM, true},
		{"dormant allows system channel", AccountStatusDormant, ChannelSystem, false},
		{"dormant allows auto-interest channel", AccountStatusDormant, ChannelAutoInterest, false},
		{"active allows every channel", AccountStatusActive, ChannelATM, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validCurrentAccount()
			a.Status = tt.status
			if got := a.IsDebitBlocked(tt.channel); got != tt.want {
				t.Errorf("IsDebitBlocked(%s) with status %s = %v, want %v", tt.channel, tt.status, got, tt.want)
			}
		})
	}
}

func TestAccountIsTransactional(t *testing.T) {
	a := validCurrentAccount()
	if !a.IsTransactional() {
		t.Error("an Active account should be transactional")
	}
	a.Status = AccountStatusClosed
	if a.IsTransactional() {
		t.Error("a Closed account should not be transactional")
	}
}

func TestAccountCanHoldType(t *testing.T) {
	a := validCurrentAccount()
	a.Status = AccountStatusFrozen
	if a.CanHoldType(HoldTypeOverdraftReserve) {
		t.Error("a Frozen account should reject non-legal hold types")
	}
	if !a.CanHoldType(HoldTypeJudicialLien) {
		t.Error("a Frozen account should still accept a JudicialLien hold")
	}
	if !a.CanHoldType(HoldTypeComplianceHold) {
		t.Error("a Frozen account should still accept a ComplianceHold")
	}
	a.Status = AccountStatusClosed
	if a.CanHoldType(HoldTypeJudicialLien) {
		t.Error("a Closed account should reject every hold type")
	}
}

func TestAccountValidate_LoanSuccess(t *testing.T) {
	a := &Account{
		Currency:         "USD",
		Variant:          AccountVariantLoan,
		CurrentBalance:   decimal.Zero,
		AvailableBalance: decimal.Zero,
		Loan: &LoanTerms{
			OriginalPrincipal:    decimal.NewFromInt(10000),
			OutstandingPrincipal: decimal.NewFromInt(8000),
			DisbursementDate:     time.Now(),
		},
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
