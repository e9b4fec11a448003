package handler

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/meridianledger/core/internal/domain"
	"github.com/meridianledger/core/internal/middleware"
	"github.com/meridianledger/core/internal/service"
	"github.com/meridianledger/core/internal/storage"
)

// WorkflowHandler exposes the Workflow Engine over HTTP. documents is
// optional: a nil store disables the upload and presigned-URL routes,
// but AppendStep and every other operation still work on
// caller-supplied document references.
type WorkflowHandler struct {
	workflows *service.WorkflowService
	documents *storage.DocumentStore
}

// NewWorkflowHandler creates a new WorkflowHandler.
func NewWorkflowHandler(workflows *service.WorkflowService, documents *storage.DocumentStore) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, documents: documents}
}

// OpenWorkflowRequest is the wire shape for POST /workflows.
type OpenWorkflowRequest struct {
	WorkflowType string     `json:"workflow_type"`
	AccountID    *string    `json:"account_id"`
	FirstStep    string     `json:"first_step"`
	TimeoutAt    *time.Time `json:"timeout_at"`
}

// Open handles POST /workflows.
func (h *WorkflowHandler) Open(c echo.Context) error {
	var req OpenWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}

	var accountID *domain.EntityID
	if req.AccountID != nil {
		parsed, err := domain.ParseEntityID(*req.AccountID)
		if err != nil {
			return NewValidationError(c, "invalid account_id", nil)
		}
		accountID = &parsed
	}

	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	workflow, err := h.workflows.Open(c.Request().Context(), domain.WorkflowType(req.WorkflowType), accountID, req.FirstStep, personID, req.TimeoutAt)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, workflow)
}

// GetWorkflow handles GET /workflows/:id.
func (h *WorkflowHandler) GetWorkflow(c echo.Context) error {
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid workflow id", nil)
	}
	workflow, err := h.workflows.GetByID(c.Request().Context(), id)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, workflow)
}

// GetByTransaction handles GET /transactions/:id/workflow.
func (h *WorkflowHandler) GetByTransaction(c echo.Context) error {
	txID, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid transaction id", nil)
	}
	workflow, err := h.workflows.GetByTransactionID(c.Request().Context(), txID)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, workflow)
}

// FindByAccount handles GET /accounts/:id/workflows.
func (h *WorkflowHandler) FindByAccount(c echo.Context) error {
	accountID, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid account id", nil)
	}
	workflows, err := h.workflows.FindByAccount(c.Request().Context(), accountID)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, workflows)
}

// Find handles GET /workflows.
func (h *WorkflowHandler) Find(c echo.Context) error {
	var status *domain.WorkflowStatus
	if raw := c.QueryParam("status"); raw != "" {
		s := domain.WorkflowStatus(raw)
		status = &s
	}
	var workflowType *domain.WorkflowType
	if raw := c.QueryParam("workflow_type"); raw != "" {
		t := domain.WorkflowType(raw)
		workflowType = &t
	}

	workflows, err := h.workflows.FindByStatusAndType(c.Request().Context(), status, workflowType)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, workflows)
}

// RecordApprovalRequest is the wire shape for POST /workflows/:id/approvals.
type RecordApprovalRequest struct {
	Action   string `json:"action"`
	Notes    string `json:"notes"`
	Method   string `json:"method"`
	Location string `json:"location"`
}

// RecordApproval handles POST /workflows/:id/approvals.
func (h *WorkflowHandler) RecordApproval(c echo.Context) error {
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid workflow id", nil)
	}
	var req RecordApprovalRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}
	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	workflow, err := h.workflows.RecordApproval(c.Request().Context(), id, personID, domain.ApprovalAction(req.Action), req.Notes, req.Method, req.Location)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, workflow)
}

// AppendStepRequest is the wire shape for POST /workflows/:id/steps.
type AppendStepRequest struct {
	Step                string   `json:"step"`
	Notes               string   `json:"notes"`
	SupportingDocuments []string `json:"supporting_documents"`
}

// AppendStep handles POST /workflows/:id/steps.
func (h *WorkflowHandler) AppendStep(c echo.Context) error {
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid workflow id", nil)
	}
	var req AppendStepRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}
	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	workflow, err := h.workflows.AppendStep(c.Request().Context(), id, req.Step, personID, req.Notes, req.SupportingDocuments)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, workflow)
}

// TransitionRequest is the wire shape for PATCH /workflows/:id/status.
type TransitionRequest struct {
	NewStatus  string `json:"new_status"`
	NextAction string `json:"next_action"`
}

// Transition handles PATCH /workflows/:id/status.
func (h *WorkflowHandler) Transition(c echo.Context) error {
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid workflow id", nil)
	}
	var req TransitionRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "invalid request body", nil)
	}
	personID, err := domain.ParseEntityID(middleware.GetPersonID(c))
	if err != nil {
		return NewUnauthorizedError(c, "caller identity not resolved")
	}

	workflow, err := h.workflows.Transition(c.Request().Context(), id, domain.WorkflowStatus(req.NewStatus), req.NextAction, personID)
	if err != nil {
		return MapDomainError(c, err)
	}
	return c.JSON(http.StatusOK, workflow)
}

// UploadDocumentResponse is the wire shape returned by UploadDocument.
type UploadDocumentResponse struct {
	ObjectKey string `json:"object_key"`
}

// UploadDocument handles POST /workflows/:id/documents: it uploads a
// multipart file as a workflow supporting document and returns the
// opaque object-store key a subsequent AppendStep call should include
// in supporting_documents. Uploading does not itself append a step —
// the caller still drives AppendStep once every document for that step
// has been uploaded.
func (h *WorkflowHandler) UploadDocument(c echo.Context) error {
	if h.documents == nil {
		return NewServiceUnavailableError(c, "document storage is not configured")
	}
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid workflow id", nil)
	}
	if _, err := h.workflows.GetByID(c.Request().Context(), id); err != nil {
		return MapDomainError(c, err)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewValidationError(c, "a file is required", nil)
	}
	src, err := file.Open()
	if err != nil {
		return NewInternalError(c, "failed to open uploaded file")
	}
	defer src.Close()

	var body io.Reader = src
	objectKey := fmt.Sprintf("workflows/%s/%d-%s", id.String(), time.Now().UTC().UnixNano(), file.Filename)
	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	storedKey, err := h.documents.Put(c.Request().Context(), objectKey, body, contentType, file.Size)
	if err != nil {
		return NewInternalError(c, "failed to upload document")
	}
	return c.JSON(http.StatusCreated, UploadDocumentResponse{ObjectKey: storedKey})
}

// PresignedDocumentURLResponse is the wire shape returned by
// GetDocumentURL.
type PresignedDocumentURLResponse struct {
	URL string `json:"url"`
}

// GetDocumentURL handles GET /workflows/:id/documents/url, returning a
// time-limited GET URL for a document referenced by one of the
// workflow's own steps. The object_key query parameter must match a
// SupportingDocuments entry already recorded on the workflow, which
// prevents a caller from using this route to read an arbitrary key out
// of the shared bucket.
func (h *WorkflowHandler) GetDocumentURL(c echo.Context) error {
	if h.documents == nil {
		return NewServiceUnavailableError(c, "document storage is not configured")
	}
	id, err := domain.ParseEntityID(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid workflow id", nil)
	}
	objectKey := c.QueryParam("object_key")
	if objectKey == "" {
		return NewValidationError(c, "object_key is required", nil)
	}

	workflow, err := h.workflows.GetByID(c.Request().Context(), id)
	if err != nil {
		return MapDomainError(c, err)
	}
	found := false
	for _, step := range workflow.Steps {
		for _, doc := range step.SupportingDocuments {
			if doc == objectKey {
				found = true
			}
		}
	}
	if !found {
		return NewNotFoundError(c, "document not found on this workflow")
	}

	url, err := h.documents.PresignedURL(c.Request().Context(), objectKey, 15*time.Minute)
	if err != nil {
		return NewInternalError(c, "failed to generate a presigned URL")
	}
	return c.JSON(http.StatusOK, PresignedDocumentURLResponse{URL: url})
}
