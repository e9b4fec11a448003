package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ProductRules is the read-only product configuration the Account
// Ledger resolves at account creation and the interest/fee
// collaborators read on their own schedule.
type ProductRules struct {
	ProductCode              string
	DefaultDormancyDays      *int32
	DefaultOverdraftLimit    *decimal.Decimal
	AccrualFrequency         string
	InterestPostingFrequency string
	OverdraftInterestRate    *decimal.Decimal
	FeeScheduleRef           string
	ApprovalThresholdAmount  decimal.Decimal
	MinimumApprovals         int
}

// InterestRateTier is one row of a product's rate ladder.
type InterestRateTier struct {
	MinimumBalance decimal.Decimal
	InterestRate   decimal.Decimal
}

// ProductCatalog is the external, read-only, idempotent collaborator
// supplying product defaults and approval thresholds. The core
// caches results keyed by product_code and invalidates on an
// out-of-band bus message; see internal/catalog for the reference
// adapter.
type ProductCatalog interface {
	GetProductRules(ctx context.Context, productCode string) (*ProductRules, error)
	GetInterestRateTiers(ctx context.Context, productCode string) ([]InterestRateTier, error)
}
