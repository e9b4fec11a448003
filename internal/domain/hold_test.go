package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRequiredAuthorizationLevel(t *testing.T) {
	tests := []struct {
		name     string
		holdType HoldType
		amount   decimal.Decimal
		want     HoldAuthorizationLevel
	}{
		{"judicial lien always external", HoldTypeJudicialLien, decimal.NewFromInt(1), HoldAuthorizationExternal},
		{"small compliance hold needs manager", HoldTypeComplianceHold, decimal.NewFromInt(500), HoldAuthorizationManager},
		{"large compliance hold needs executive", HoldTypeComplianceHold, decimal.NewFromInt(2_000_000), HoldAuthorizationExecutive},
		{"fraud hold needs manager", HoldTypeFraudHold, decimal.NewFromInt(10), HoldAuthorizationManager},
		{"small administrative hold needs standard", HoldTypeAdministrativeHold, decimal.NewFromInt(100), HoldAuthorizationStandard},
		{"large administrative hold needs supervisor", HoldTypeAdministrativeHold, decimal.NewFromInt(200_000), HoldAuthorizationSupervisor},
		{"uncleared funds hold needs only standard", HoldTypeUnclearedFunds, decimal.NewFromInt(5_000_000), HoldAuthorizationStandard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiredAuthorizationLevel(tt.holdType, tt.amount); got != tt.want {
				t.Errorf("RequiredAuthorizationLevel(%s, %s) = %s, want %s", tt.holdType, tt.amount, got, tt.want)
			}
		})
	}
}

func TestHoldAuthorizationLevelMeets(t *testing.T) {
	tests := []struct {
		have     HoldAuthorizationLevel
		required HoldAuthorizationLevel
		want     bool
	}{
		{HoldAuthorizationManager, HoldAuthorizationStandard, true},
		{HoldAuthorizationStandard, HoldAuthorizationManager, false},
		{HoldAuthorizationExecutive, HoldAuthorizationExternal, false},
		{HoldAuthorizationExternal, HoldAuthorizationExternal, true},
		{HoldAuthorizationManager, HoldAuthorizationManager, true},
	}
	for _, tt := range tests {
		if got := tt.have.Meets(tt.required); got != tt.want {
			t.Errorf("%s.Meets(%s) = %v, want %v", tt.have, tt.required, got, tt.want)
		}
	}
}

func TestHoldStatusIsTerminal(t *testing.T) {
	if HoldStatusActive.IsTerminal() {
		t.Error("Active should not be terminal")
	}
	for _, s := range []HoldStatus{HoldStatusReleased, HoldStatusExpired, HoldStatusCancelled, HoldStatusPartiallyReleased} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func validHold() *AccountHold {
	return &AccountHold{
		Amount:   decimal.NewFromInt(50),
		HoldType: HoldTypeUnclearedFunds,
		Priority: HoldPriorityStandard,
	}
}

func TestAccountHoldValidate_Success(t *testing.T) {
	h := validHold()
	if err := h.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestAccountHoldValidate_NonPositiveAmount(t *testing.T) {
	h := validHold()
	h.Amount = decimal.Zero
	if err := h.Validate(); err == nil {
		t.Fatal("expected an error for a zero hold amount")
	}
}

func TestAccountHoldValidate_UnrecognizedType(t *testing.T) {
	h := validHold()
	h.HoldType = "Bogus"
	if err := h.Validate(); err == nil {
		t.Fatal("expected an error for an unrecognized hold type")
	}
}

func TestAccountHoldValidate_UnrecognizedPriority(t *testing.T) {
	h := validHold()
	h.Priority = "Urgent"
	if err := h.Validate(); err == nil {
		t.Fatal("expected an error for an unrecognized priority")
	}
}

func TestAccountHoldValidate_DetailsTooLong(t *testing.T) {
	h := validHold()
	long := make([]rune, MaxHoldDetailsLength+1)
	for i := range long {
		long[i] = 'a'
	}
	h.AdditionalDetails = string(long)
	if err := h.Validate(); err == nil {
		t.Fatal("expected an error for additional details exceeding the maximum length")
	}
}
