package service

import (
	"context"

	"github.com/meridianledger/core/internal/domain"
)

// stubCatalog is a fixed-response domain.ProductCatalog test double —
// the real HTTP adapter lives in internal/catalog, out of scope here.
type stubCatalog struct {
	rules map[string]*domain.ProductRules
	tiers map[string][]domain.InterestRateTier
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		rules: make(map[string]*domain.ProductRules),
		tiers: make(map[string][]domain.InterestRateTier),
	}
}

func (c *stubCatalog) GetProductRules(ctx context.Context, productCode string) (*domain.ProductRules, error) {
	return c.rules[productCode], nil
}

func (c *stubCatalog) GetInterestRateTiers(ctx context.Context, productCode string) ([]domain.InterestRateTier, error) {
	return c.tiers[productCode], nil
}
