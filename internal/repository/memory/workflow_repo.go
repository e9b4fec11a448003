package memory

import (
	"context"
	"sync"
	"time"

	"github.com/meridianledger/core/internal/domain"
)

// WorkflowRepository is an in-memory domain.WorkflowRepository.
type WorkflowRepository struct {
	mu        sync.Mutex
	workflows map[domain.EntityID]*domain.Workflow
	byTxID    map[domain.EntityID]domain.EntityID
}

// NewWorkflowRepository creates a new in-memory WorkflowRepository.
func NewWorkflowRepository() *WorkflowRepository {
	return &WorkflowRepository{
		workflows: make(map[domain.EntityID]*domain.Workflow),
		byTxID:    make(map[domain.EntityID]domain.EntityID),
	}
}

func cloneWorkflow(w *domain.Workflow) *domain.Workflow {
	cp := *w
	cp.Steps = append([]*domain.WorkflowStepRecord(nil), w.Steps...)
	cp.Approvals = append([]*domain.Approval(nil), w.Approvals...)
	return &cp
}

// Create stores a new workflow with Version 1.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *domain.Workflow) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if workflow.ID.IsNil() {
		workflow.ID = domain.NewEntityID()
	}
	workflow.Version = 1
	stored := cloneWorkflow(workflow)
	r.workflows[workflow.ID] = stored
	if workflow.TransactionID != nil {
		r.byTxID[*workflow.TransactionID] = workflow.ID
	}
	return cloneWorkflow(stored), nil
}

// GetByID returns the workflow for id.
func (r *WorkflowRepository) GetByID(ctx context.Context, id domain.EntityID) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workflows[id]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return cloneWorkflow(w), nil
}

// GetByTransactionID returns the workflow gating a transaction, if any.
func (r *WorkflowRepository) GetByTransactionID(ctx context.Context, transactionID domain.EntityID) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byTxID[transactionID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return cloneWorkflow(r.workflows[id]), nil
}

// FindByStatusAndType narrows workflows by either or both dimensions.
func (r *WorkflowRepository) FindByStatusAndType(ctx context.Context, status *domain.WorkflowStatus, workflowType *domain.WorkflowType) ([]*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Workflow
	for _, w := range r.workflows {
		if status != nil && w.Status != *status {
			continue
		}
		if workflowType != nil && w.WorkflowType != *workflowType {
			continue
		}
		out = append(out, cloneWorkflow(w))
	}
	return out, nil
}

// FindByAccount returns every workflow ever opened against an account.
func (r *WorkflowRepository) FindByAccount(ctx context.Context, accountID domain.EntityID) ([]*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Workflow
	for _, w := range r.workflows {
		if w.AccountID != nil && *w.AccountID == accountID {
			out = append(out, cloneWorkflow(w))
		}
	}
	return out, nil
}

// FindExpired returns every non-terminal workflow whose TimeoutAt has
// passed as of now.
func (r *WorkflowRepository) FindExpired(ctx context.Context, now time.Time) ([]*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Workflow
	for _, w := range r.workflows {
		if w.Status.IsTerminal() || w.TimeoutAt == nil || w.TimeoutAt.After(now) {
			continue
		}
		out = append(out, cloneWorkflow(w))
	}
	return out, nil
}

// AppendStep persists a new step record and updates current_step,
// enforcing the optimistic-concurrency check.
func (r *WorkflowRepository) AppendStep(ctx context.Context, workflowID domain.EntityID, step *domain.WorkflowStepRecord, expectedVersion int64) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workflows[workflowID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	if w.Version != expectedVersion {
		return nil, &domain.ConcurrentModificationError{Entity: "Workflow", ID: workflowID}
	}
	w.Steps = append(w.Steps, step)
	w.CurrentStep = step.Step
	w.Version++
	w.LastUpdatedAt = time.Now().UTC()
	return cloneWorkflow(w), nil
}

// AppendApproval persists a new approval against the workflow,
// enforcing the optimistic-concurrency check.
func (r *WorkflowRepository) AppendApproval(ctx context.Context, workflowID domain.EntityID, approval *domain.Approval, expectedVersion int64) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workflows[workflowID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	if w.Version != expectedVersion {
		return nil, &domain.ConcurrentModificationError{Entity: "Workflow", ID: workflowID}
	}
	w.Approvals = append(w.Approvals, approval)
	w.Version++
	w.LastUpdatedAt = time.Now().UTC()
	return cloneWorkflow(w), nil
}

// UpdateStatus persists a status transition, enforcing the
// optimistic-concurrency check.
func (r *WorkflowRepository) UpdateStatus(ctx context.Context, workflowID domain.EntityID, status domain.WorkflowStatus, nextAction string, expectedVersion int64) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workflows[workflowID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	if w.Version != expectedVersion {
		return nil, &domain.ConcurrentModificationError{Entity: "Workflow", ID: workflowID}
	}
	w.Status = status
	w.NextActionRequired = nextAction
	w.Version++
	now := time.Now().UTC()
	w.LastUpdatedAt = now
	if status.IsTerminal() {
		w.CompletedAt = &now
	}
	return cloneWorkflow(w), nil
}

// BulkTimeout transitions every workflow id to TimedOut in one batch.
func (r *WorkflowRepository) BulkTimeout(ctx context.Context, workflowIDs []domain.EntityID, now time.Time) ([]*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Workflow, 0, len(workflowIDs))
	for _, id := range workflowIDs {
		w, ok := r.workflows[id]
		if !ok {
			continue
		}
		w.Status = domain.WorkflowStatusTimedOut
		w.Version++
		w.LastUpdatedAt = now
		w.CompletedAt = &now
		out = append(out, cloneWorkflow(w))
	}
	return out, nil
}
