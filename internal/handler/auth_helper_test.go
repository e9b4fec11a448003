package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/meridianledger/core/internal/domain"
	"github.com/meridianledger/core/internal/middleware"
)

// setupPersonContext injects a resolved caller identity into the
// request context the way AuthMiddleware.Authenticate does after a
// successful token validation and person lookup.
func setupPersonContext(c echo.Context, personID string) {
	ctx := context.WithValue(c.Request().Context(), middleware.PersonIDKey, personID)
	c.SetRequest(c.Request().WithContext(ctx))
}

// stubCatalog is a fixed-response domain.ProductCatalog test double for
// handler-level tests, mirroring internal/service's own stubCatalog.
type stubCatalog struct {
	rules map[string]*domain.ProductRules
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{rules: make(map[string]*domain.ProductRules)}
}

func (c *stubCatalog) GetProductRules(ctx context.Context, productCode string) (*domain.ProductRules, error) {
	return c.rules[productCode], nil
}

func (c *stubCatalog) GetInterestRateTiers(ctx context.Context, productCode string) ([]domain.InterestRateTier, error) {
	return nil, nil
}
