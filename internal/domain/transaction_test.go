package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestTransactionDirectionOpposite(t *testing.T) {
	if DirectionCredit.Opposite() != DirectionDebit {
		t.Error("Credit.Opposite() should be Debit")
	}
	if DirectionDebit.Opposite() != DirectionCredit {
		t.Error("Debit.Opposite() should be Credit")
	}
}

func TestApprovalStatusIsTerminal(t *testing.T) {
	if !ApprovalStatusApproved.IsTerminal() {
		t.Error("Approved should be terminal")
	}
	if !ApprovalStatusRejected.IsTerminal() {
		t.Error("Rejected should be terminal")
	}
	if ApprovalStatusPartiallyApproved.IsTerminal() {
		t.Error("PartiallyApproved should not be terminal")
	}
	if ApprovalStatusPending.IsTerminal() {
		t.Error("Pending should not be terminal")
	}
}

func TestChannelIDIsSystemChannel(t *testing.T) {
	tests := []struct {
		channel ChannelID
		want    bool
	}{
		{ChannelSystem, true},
		{ChannelAutoInterest, true},
		{ChannelAutoFee, true},
		{ChannelATM, false},
		{ChannelTeller, false},
		{ChannelOnline, false},
	}
	for _, tt := range tests {
		if got := tt.channel.IsSystemChannel(); got != tt.want {
			t.Errorf("%s.IsSystemChannel() = %v, want %v", tt.channel, got, tt.want)
		}
	}
}

func validTransaction() *Transaction {
	return &Transaction{
		Amount:          decimal.NewFromInt(100),
		Currency:        "USD",
		Direction:       DirectionCredit,
		TransactionCode: "DEP",
		ReferenceNumber: "REF-001",
	}
}

func TestTransactionValidate_Success(t *testing.T) {
	tx := validTransaction()
	if err := tx.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestTransactionValidate_NonPositiveAmount(t *testing.T) {
	tx := validTransaction()
	tx.Amount = decimal.Zero
	if err := tx.Validate(); err == nil {
		t.Fatal("expected an error for a zero amount")
	}
}

func TestTransactionValidate_BadCurrency(t *testing.T) {
	tx := validTransaction()
	tx.Currency = "usd"
	if err := tx.Validate(); err == nil {
		t.Fatal("expected an error for malformed currency")
	}
}

func TestTransactionValidate_UnrecognizedDirection(t *testing.T) {
	tx := validTransaction()
	tx.Direction = "Sideways"
	if err := tx.Validate(); err == nil {
		t.Fatal("expected an error for an unrecognized direction")
	}
}

func TestTransactionValidate_MissingTransactionCode(t *testing.T) {
	tx := validTransaction()
	tx.TransactionCode = ""
	if err := tx.Validate(); err == nil {
		t.Fatal("expected an error for a missing transaction code")
	}
}

func TestTransactionValidate_MissingReferenceNumber(t *testing.T) {
	tx := validTransaction()
	tx.ReferenceNumber = ""
	if err := tx.Validate(); err == nil {
		t.Fatal("expected an error for a missing reference number")
	}
}

func TestTransactionValidate_DescriptionTooLong(t *testing.T) {
	tx := validTransaction()
	long := make([]rune, MaxTransactionDescriptionLength+1)
	for i := range long {
		long[i] = 'a'
	}
	tx.Description = string(long)
	if err := tx.Validate(); err == nil {
		t.Fatal("expected an error for a description exceeding the maximum length")
	}
}

func TestTransactionValidate_ExternalReferenceTooLong(t *testing.T) {
	tx := validTransaction()
	long := make([]rune, MaxExternalReferenceLength+1)
	for i := range long {
		long[i] = 'a'
	}
	ref := string(long)
	tx.ExternalReference = &ref
	if err := tx.Validate(); err == nil {
		t.Fatal("expected an error for an external reference exceeding the maximum length")
	}
}
