package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/meridianledger/core/internal/domain"
	"github.com/meridianledger/core/internal/repository/memory"
	"github.com/meridianledger/core/internal/service"
)

func newTestAccountHandler(t *testing.T) (*AccountHandler, *memory.AccountRepository) {
	t.Helper()
	accountRepo := memory.NewAccountRepository()
	audit := service.NewAuditService(memory.NewAuditRepository())
	accounts := service.NewAccountService(accountRepo, memory.NewHoldRepository(), newStubCatalog(), audit)
	return NewAccountHandler(accounts), accountRepo
}

func TestCreateAccount_Success(t *testing.T) {
	e := echo.New()
	handler, _ := newTestAccountHandler(t)

	branchID := domain.NewEntityID()
	body := `{"product_code":"CUR-001","variant":"Current","signing_condition":"Single","currency":"USD",` +
		`"domicile_branch_id":"` + branchID.String() + `","open_date":"2026-01-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	setupPersonContext(c, domain.NewEntityID().String())

	if err := handler.CreateAccount(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var account domain.Account
	if err := json.Unmarshal(rec.Body.Bytes(), &account); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if account.Status != domain.AccountStatusPendingApproval {
		t.Errorf("expected a new account to open PendingApproval, got %s", account.Status)
	}
}

func TestCreateAccount_InvalidBranchID(t *testing.T) {
	e := echo.New()
	handler, _ := newTestAccountHandler(t)

	body := `{"product_code":"CUR-001","variant":"Current","signing_condition":"Single","currency":"USD","domicile_branch_id":"not-a-uuid"}`
	req := httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	setupPersonContext(c, domain.NewEntityID().String())

	if err := handler.CreateAccount(c); err != nil {
		t.Fatalf("expected a JSON error response, got error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if problem.Type != ErrorTypeValidation {
		t.Errorf("expected a validation problem, got %s", problem.Type)
	}
}

func TestCreateAccount_NoResolvedCallerRejected(t *testing.T) {
	e := echo.New()
	handler, _ := newTestAccountHandler(t)

	body := `{"product_code":"CUR-001","variant":"Current","signing_condition":"Single","currency":"USD","domicile_branch_id":"` + domain.NewEntityID().String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	// No person context set: middleware.GetPersonID returns "".

	if err := handler.CreateAccount(c); err != nil {
		t.Fatalf("expected a JSON error response, got error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	e := echo.New()
	handler, _ := newTestAccountHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/accounts/"+domain.NewEntityID().String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(domain.NewEntityID().String())

	if err := handler.GetAccount(c); err != nil {
		t.Fatalf("expected a JSON error response, got error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateStatus_IllegalTransitionRejected(t *testing.T) {
	e := echo.New()
	handler, accountRepo := newTestAccountHandler(t)

	account, err := accountRepo.Create(context.Background(), &domain.Account{
		ProductCode: "CUR-001",
		Variant:     domain.AccountVariantCurrent,
		Status:      domain.AccountStatusClosed,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("setup: expected no error, got %v", err)
	}

	body := `{"new_status":"Active","reason_id":"` + domain.NewEntityID().String() + `"}`
	httpReq := httptest.NewRequest(http.MethodPatch, "/accounts/"+account.ID.String()+"/status", strings.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(httpReq, rec)
	c.SetParamNames("id")
	c.SetParamValues(account.ID.String())
	setupPersonContext(c, domain.NewEntityID().String())

	if err := handler.UpdateStatus(c); err != nil {
		t.Fatalf("expected a JSON error response, got error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a Closed->Active transition, got %d: %s", rec.Code, rec.Body.String())
	}
}
