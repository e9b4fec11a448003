package service

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianledger/core/internal/domain"
	"github.com/meridianledger/core/internal/websocket"
)

// WorkflowService drives multi-step, multi-approver processes but never
// posts a transaction or changes an account's status itself —
// completion of a workflow is a signal the caller (the HTTP handler
// layer, wiring PostingService and AccountService together) acts on,
// which keeps this service free of a dependency cycle back onto them.
type WorkflowService struct {
	repo           domain.WorkflowRepository
	audit          *AuditService
	eventPublisher websocket.EventPublisher
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(repo domain.WorkflowRepository, audit *AuditService) *WorkflowService {
	return &WorkflowService{repo: repo, audit: audit}
}

// SetEventPublisher wires a WebSocket publisher for workflow lifecycle
// events. Optional: a nil publisher (the default) means no broadcast.
func (s *WorkflowService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// publishEvent broadcasts on the workflow's own topic, which exists
// regardless of whether the workflow is tied to an account, and also
// mirrors onto the account topic when one applies, so a caller watching
// an account sees its workflows complete without subscribing twice.
func (s *WorkflowService) publishEvent(workflow *domain.Workflow, event websocket.Event) {
	if s.eventPublisher == nil {
		return
	}
	s.eventPublisher.Publish(websocket.WorkflowTopic(workflow.ID.String()), event)
	if workflow.AccountID != nil {
		s.eventPublisher.Publish(websocket.AccountTopic(workflow.AccountID.String()), event)
	}
}

// Open starts a new workflow of any type other than TransactionApproval.
// accountID is optional for workflow types not tied to a single account
// (e.g. ComplianceCheck run against a customer).
func (s *WorkflowService) Open(ctx context.Context, workflowType domain.WorkflowType, accountID *domain.EntityID, firstStep string, initiatedBy domain.PersonID, timeoutAt *time.Time) (*domain.Workflow, error) {
	now := time.Now().UTC()
	workflow := &domain.Workflow{
		ID:            domain.NewEntityID(),
		AccountID:     accountID,
		WorkflowType:  workflowType,
		CurrentStep:   firstStep,
		Status:        domain.WorkflowStatusInProgress,
		InitiatedBy:   initiatedBy,
		InitiatedAt:   now,
		TimeoutAt:     timeoutAt,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	created, err := s.repo.Create(ctx, workflow)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		if err := s.audit.RecordWorkflow(ctx, created, initiatedBy); err != nil {
			return nil, err
		}
	}
	return created, nil
}

// OpenTransactionApproval starts a TransactionApproval workflow gating
// a single Transaction.
func (s *WorkflowService) OpenTransactionApproval(ctx context.Context, transactionID, accountID domain.EntityID, minimumApprovals int, initiatedBy domain.PersonID) (*domain.Workflow, error) {
	now := time.Now().UTC()
	workflow := &domain.Workflow{
		ID:                 domain.NewEntityID(),
		AccountID:          &accountID,
		WorkflowType:       domain.WorkflowTypeTransactionApproval,
		CurrentStep:        "awaiting-approval",
		Status:             domain.WorkflowStatusPendingAction,
		InitiatedBy:        initiatedBy,
		InitiatedAt:        now,
		NextActionRequired: fmt.Sprintf("obtain %d approval(s)", minimumApprovals),
		CreatedAt:          now,
		LastUpdatedAt:      now,
		MinimumApprovals:   minimumApprovals,
		TransactionID:      &transactionID,
	}
	created, err := s.repo.Create(ctx, workflow)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		if err := s.audit.RecordWorkflow(ctx, created, initiatedBy); err != nil {
			return nil, err
		}
	}
	return created, nil
}

// RecordApproval appends one approver's decision. After the append the
// workflow transitions to Failed if any approver has rejected, otherwise
// to Completed once MeetsApprovalCriterion is true.
func (s *WorkflowService) RecordApproval(ctx context.Context, workflowID domain.EntityID, approverID domain.PersonID, action domain.ApprovalAction, notes, method, location string) (*domain.Workflow, error) {
	workflow, err := s.repo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if workflow.Status.IsTerminal() {
		return nil, &domain.WorkflowViolationError{WorkflowID: workflowID, Reason: "workflow is already " + string(workflow.Status)}
	}

	approval := &domain.Approval{
		ID:            domain.NewEntityID(),
		WorkflowID:    workflowID,
		ApproverID:    approverID,
		Action:        action,
		ApprovedAt:    time.Now().UTC(),
		Notes:         notes,
		Method:        method,
		Location:      location,
	}
	if workflow.TransactionID != nil {
		approval.TransactionID = *workflow.TransactionID
	}

	updated, err := s.repo.AppendApproval(ctx, workflowID, approval, workflow.Version)
	if err != nil {
		return nil, err
	}

	var nextStatus domain.WorkflowStatus
	switch {
	case updated.HasRejection():
		nextStatus = domain.WorkflowStatusFailed
	case updated.MeetsApprovalCriterion():
		nextStatus = domain.WorkflowStatusCompleted
	default:
		return updated, nil
	}

	final, err := s.transition(ctx, updated, nextStatus, "")
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		if err := s.audit.RecordWorkflow(ctx, final, approverID); err != nil {
			return nil, err
		}
	}
	if final.Status == domain.WorkflowStatusCompleted {
		s.publishEvent(final, websocket.WorkflowCompleted(final))
	}
	return final, nil
}

// AppendStep records completion of one step of a non-approval workflow,
// optionally attaching supporting document references (object store
// keys resolved through internal/storage).
func (s *WorkflowService) AppendStep(ctx context.Context, workflowID domain.EntityID, step string, completedBy domain.PersonID, notes string, supportingDocuments []string) (*domain.Workflow, error) {
	workflow, err := s.repo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	record := &domain.WorkflowStepRecord{
		ID:                  domain.NewEntityID(),
		WorkflowID:          workflowID,
		Step:                step,
		CompletedAt:         time.Now().UTC(),
		CompletedBy:         completedBy,
		Notes:               notes,
		SupportingDocuments: supportingDocuments,
	}
	updated, err := s.repo.AppendStep(ctx, workflowID, record, workflow.Version)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		if err := s.audit.RecordWorkflow(ctx, updated, completedBy); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// Transition moves a workflow to a new status, enforcing the
// graph. nextAction may be cleared by passing an empty string.
func (s *WorkflowService) Transition(ctx context.Context, workflowID domain.EntityID, newStatus domain.WorkflowStatus, nextAction string, by domain.PersonID) (*domain.Workflow, error) {
	workflow, err := s.repo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	updated, err := s.transition(ctx, workflow, newStatus, nextAction)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		if err := s.audit.RecordWorkflow(ctx, updated, by); err != nil {
			return nil, err
		}
	}
	if updated.Status == domain.WorkflowStatusCompleted {
		s.publishEvent(updated, websocket.WorkflowCompleted(updated))
	}
	return updated, nil
}

func (s *WorkflowService) transition(ctx context.Context, workflow *domain.Workflow, newStatus domain.WorkflowStatus, nextAction string) (*domain.Workflow, error) {
	if len([]rune(nextAction)) > domain.MaxWorkflowNextActionLength {
		return nil, domain.NewValidationError("next_action_required", "exceeds maximum length")
	}
	if !domain.ValidWorkflowTransition(workflow.Status, newStatus) {
		return nil, domain.NewValidationError("status", "illegal transition from "+string(workflow.Status)+" to "+string(newStatus))
	}
	return s.repo.UpdateStatus(ctx, workflow.ID, newStatus, nextAction, workflow.Version)
}

// ProcessTimeouts transitions every workflow past its TimeoutAt to
// TimedOut in one atomic batch.
func (s *WorkflowService) ProcessTimeouts(ctx context.Context, asOf time.Time) ([]*domain.Workflow, error) {
	expired, err := s.repo.FindExpired(ctx, asOf)
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}
	ids := make([]domain.EntityID, 0, len(expired))
	for _, w := range expired {
		ids = append(ids, w.ID)
	}
	timedOut, err := s.repo.BulkTimeout(ctx, ids, asOf)
	if err != nil {
		return nil, err
	}
	for _, w := range timedOut {
		s.publishEvent(w, websocket.WorkflowTimedOut(w))
	}
	return timedOut, nil
}

// GetByID returns a workflow by id.
func (s *WorkflowService) GetByID(ctx context.Context, id domain.EntityID) (*domain.Workflow, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByTransactionID returns the TransactionApproval workflow gating a
// transaction, if any.
func (s *WorkflowService) GetByTransactionID(ctx context.Context, transactionID domain.EntityID) (*domain.Workflow, error) {
	return s.repo.GetByTransactionID(ctx, transactionID)
}

// FindByStatusAndType narrows workflows by either or both dimensions.
func (s *WorkflowService) FindByStatusAndType(ctx context.Context, status *domain.WorkflowStatus, workflowType *domain.WorkflowType) ([]*domain.Workflow, error) {
	return s.repo.FindByStatusAndType(ctx, status, workflowType)
}

// FindByAccount returns every workflow ever opened against an account.
func (s *WorkflowService) FindByAccount(ctx context.Context, accountID domain.EntityID) ([]*domain.Workflow, error) {
	return s.repo.FindByAccount(ctx, accountID)
}
