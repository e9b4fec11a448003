package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/meridianledger/core/internal/domain"
	"github.com/meridianledger/core/internal/repository/memory"
	"github.com/meridianledger/core/internal/service"
)

func newTestHoldHandler(t *testing.T) (*HoldHandler, *memory.AccountRepository, *memory.HoldRepository) {
	t.Helper()
	accountRepo := memory.NewAccountRepository()
	holdRepo := memory.NewHoldRepository()
	auditRepo := memory.NewAuditRepository()
	audit := service.NewAuditService(auditRepo)
	balances := service.NewBalanceService(accountRepo, holdRepo, auditRepo, 0)
	holds := service.NewHoldService(holdRepo, accountRepo, balances, audit)
	return NewHoldHandler(holds), accountRepo, holdRepo
}

func TestPlaceHold_Success(t *testing.T) {
	e := echo.New()
	handler, accountRepo, _ := newTestHoldHandler(t)

	account, err := accountRepo.Create(context.Background(), &domain.Account{
		Variant:          domain.AccountVariantCurrent,
		Status:           domain.AccountStatusActive,
		Currency:         "USD",
		CurrentBalance:   decimal.NewFromInt(500),
		AvailableBalance: decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	body := `{"account_id":"` + account.ID.String() + `","amount":"100","hold_type":"UnclearedFunds",` +
		`"priority":"Standard","reason_id":"` + domain.NewEntityID().String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/holds", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	setupPersonContext(c, domain.NewEntityID().String())

	if err := handler.PlaceHold(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var hold domain.AccountHold
	if err := json.Unmarshal(rec.Body.Bytes(), &hold); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if hold.Status != domain.HoldStatusActive {
		t.Errorf("expected Active, got %s", hold.Status)
	}
}

func TestPlaceHold_InsufficientBalanceRejected(t *testing.T) {
	e := echo.New()
	handler, accountRepo, _ := newTestHoldHandler(t)

	account, err := accountRepo.Create(context.Background(), &domain.Account{
		Variant:          domain.AccountVariantCurrent,
		Status:           domain.AccountStatusActive,
		Currency:         "USD",
		CurrentBalance:   decimal.NewFromInt(50),
		AvailableBalance: decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	body := `{"account_id":"` + account.ID.String() + `","amount":"100","hold_type":"UnclearedFunds",` +
		`"priority":"Standard","reason_id":"` + domain.NewEntityID().String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/holds", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	setupPersonContext(c, domain.NewEntityID().String())

	if err := handler.PlaceHold(c); err != nil {
		t.Fatalf("expected a JSON error response, got error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetHold_NotFound(t *testing.T) {
	e := echo.New()
	handler, _, _ := newTestHoldHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/holds/"+domain.NewEntityID().String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(domain.NewEntityID().String())

	if err := handler.GetHold(c); err != nil {
		t.Fatalf("expected a JSON error response, got error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
