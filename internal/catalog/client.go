// Package catalog implements the outbound HTTP adapter for
// domain.ProductCatalog. The catalog is external, read-only, and
// idempotent; results are cached per product code and invalidated
// either by TTL expiry or by an explicit bus-delivered invalidation
// message (see Invalidate).
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/meridianledger/core/internal/domain"
	"github.com/shopspring/decimal"
)

// Client is an HTTP-backed domain.ProductCatalog.
type Client struct {
	baseURL    string
	httpClient *http.Client

	rules *expirable.LRU[string, *domain.ProductRules]
	tiers *expirable.LRU[string, []domain.InterestRateTier]
}

// NewClient creates a new catalog Client. cacheTTL bounds how long a
// resolved ProductRules/InterestRateTier set may be served without a
// fresh round trip.
func NewClient(baseURL string, timeout, cacheTTL time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		rules:      expirable.NewLRU[string, *domain.ProductRules](512, nil, cacheTTL),
		tiers:      expirable.NewLRU[string, []domain.InterestRateTier](512, nil, cacheTTL),
	}
}

type productRulesResponse struct {
	ProductCode              string           `json:"product_code"`
	DefaultDormancyDays      *int32           `json:"default_dormancy_days"`
	DefaultOverdraftLimit    *decimal.Decimal `json:"default_overdraft_limit"`
	AccrualFrequency         string           `json:"accrual_frequency"`
	InterestPostingFrequency string           `json:"interest_posting_frequency"`
	OverdraftInterestRate    *decimal.Decimal `json:"overdraft_interest_rate"`
	FeeScheduleRef           string           `json:"fee_schedule_ref"`
	ApprovalThresholdAmount  decimal.Decimal  `json:"approval_threshold_amount"`
	MinimumApprovals         int              `json:"minimum_approvals"`
}

// GetProductRules resolves a product code's configuration, reading
// through an in-process cache first.
func (c *Client) GetProductRules(ctx context.Context, productCode string) (*domain.ProductRules, error) {
	if cached, ok := c.rules.Get(productCode); ok {
		return cached, nil
	}

	var resp productRulesResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/products/%s/rules", productCode), &resp); err != nil {
		return nil, err
	}

	rules := &domain.ProductRules{
		ProductCode:              resp.ProductCode,
		DefaultDormancyDays:      resp.DefaultDormancyDays,
		DefaultOverdraftLimit:    resp.DefaultOverdraftLimit,
		AccrualFrequency:         resp.AccrualFrequency,
		InterestPostingFrequency: resp.InterestPostingFrequency,
		OverdraftInterestRate:    resp.OverdraftInterestRate,
		FeeScheduleRef:           resp.FeeScheduleRef,
		ApprovalThresholdAmount:  resp.ApprovalThresholdAmount,
		MinimumApprovals:         resp.MinimumApprovals,
	}
	c.rules.Add(productCode, rules)
	return rules, nil
}

// GetInterestRateTiers resolves a product's balance-tiered interest
// rate ladder.
func (c *Client) GetInterestRateTiers(ctx context.Context, productCode string) ([]domain.InterestRateTier, error) {
	if cached, ok := c.tiers.Get(productCode); ok {
		return cached, nil
	}

	var tiers []domain.InterestRateTier
	if err := c.getJSON(ctx, fmt.Sprintf("/products/%s/interest-tiers", productCode), &tiers); err != nil {
		return nil, err
	}
	c.tiers.Add(productCode, tiers)
	return tiers, nil
}

// Invalidate drops every cached entry for productCode. Call this from
// the bus consumer handling a product-catalog change-notification
// message; the hot path itself never calls this.
func (c *Client) Invalidate(productCode string) {
	c.rules.Remove(productCode)
	c.tiers.Remove(productCode)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.ExternalDependencyUnavailableError{Dependency: "ProductCatalog", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.ExternalDependencyUnavailableError{
			Dependency: "ProductCatalog",
			Cause:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
