package domain

import (
	"context"
	"time"
)

// WorkflowType enumerates the multi-step processes a Workflow drives.
type WorkflowType string

const (
	WorkflowTypeAccountOpening      WorkflowType = "AccountOpening"
	WorkflowTypeAccountClosure      WorkflowType = "AccountClosure"
	WorkflowTypeKycUpdate           WorkflowType = "KycUpdate"
	WorkflowTypeTransactionApproval WorkflowType = "TransactionApproval"
	WorkflowTypeComplianceCheck     WorkflowType = "ComplianceCheck"
)

// WorkflowStatus is the workflow lifecycle state.
type WorkflowStatus string

const (
	WorkflowStatusInProgress    WorkflowStatus = "InProgress"
	WorkflowStatusPendingAction WorkflowStatus = "PendingAction"
	WorkflowStatusCompleted     WorkflowStatus = "Completed"
	WorkflowStatusFailed        WorkflowStatus = "Failed"
	WorkflowStatusCancelled     WorkflowStatus = "Cancelled"
	WorkflowStatusTimedOut      WorkflowStatus = "TimedOut"
)

// workflowStatusGraph enumerates every legal workflow status transition.
var workflowStatusGraph = map[WorkflowStatus]map[WorkflowStatus]bool{
	WorkflowStatusInProgress: {
		WorkflowStatusPendingAction: true,
		WorkflowStatusCompleted:     true,
		WorkflowStatusFailed:        true,
		WorkflowStatusCancelled:     true,
		WorkflowStatusTimedOut:      true,
	},
	WorkflowStatusPendingAction: {
		WorkflowStatusInProgress: true,
		WorkflowStatusCompleted:  true,
		WorkflowStatusFailed:     true,
		WorkflowStatusCancelled:  true,
		WorkflowStatusTimedOut:   true,
	},
	WorkflowStatusCompleted: {},
	WorkflowStatusFailed:    {},
	WorkflowStatusCancelled: {},
	WorkflowStatusTimedOut:  {},
}

// ValidWorkflowTransition reports whether moving from "from" to "to" is
// legal under workflowStatusGraph.
func ValidWorkflowTransition(from, to WorkflowStatus) bool {
	next, ok := workflowStatusGraph[from]
	if !ok {
		return false
	}
	return next[to]
}

func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled, WorkflowStatusTimedOut:
		return true
	default:
		return false
	}
}

// ApprovalAction is the decision an approver records against a
// TransactionApproval workflow.
type ApprovalAction string

const (
	ApprovalActionApproved ApprovalAction = "Approved"
	ApprovalActionRejected ApprovalAction = "Rejected"
	ApprovalActionAbstain  ApprovalAction = "Abstain"
)

// WorkflowStepRecord is one completed step of a workflow.
type WorkflowStepRecord struct {
	ID                  EntityID
	WorkflowID           EntityID
	Step                 string
	CompletedAt          time.Time
	CompletedBy          PersonID
	Notes                string
	SupportingDocuments  []string // opaque document references, e.g. object-store keys
}

// Approval is one approver's decision against a TransactionApproval
// workflow.
type Approval struct {
	ID            EntityID
	WorkflowID    EntityID
	TransactionID EntityID
	ApproverID    PersonID
	Action        ApprovalAction
	ApprovedAt    time.Time
	Notes         string
	Method        string
	Location      string
}

// MaxWorkflowNextActionLength bounds Workflow.NextActionRequired.
const MaxWorkflowNextActionLength = 300

// Workflow is a multi-step, multi-approver state machine gating a
// sensitive mutation.
type Workflow struct {
	ID                  EntityID
	AccountID           *EntityID
	WorkflowType        WorkflowType
	CurrentStep         string
	Status              WorkflowStatus
	InitiatedBy         PersonID
	InitiatedAt         time.Time
	CompletedAt         *time.Time
	NextActionRequired  string
	TimeoutAt           *time.Time
	CreatedAt           time.Time
	LastUpdatedAt       time.Time

	Steps     []*WorkflowStepRecord
	Approvals []*Approval

	// MinimumApprovals is set for TransactionApproval workflows.
	MinimumApprovals int
	// TransactionID is set for TransactionApproval workflows.
	TransactionID *EntityID

	Version     int64
	ContentHash uint64
}

// ApprovedCount returns the number of Approved actions recorded.
func (w *Workflow) ApprovedCount() int {
	n := 0
	for _, a := range w.Approvals {
		if a.Action == ApprovalActionApproved {
			n++
		}
	}
	return n
}

// HasRejection reports whether any approver rejected.
func (w *Workflow) HasRejection() bool {
	for _, a := range w.Approvals {
		if a.Action == ApprovalActionRejected {
			return true
		}
	}
	return false
}

// MeetsApprovalCriterion implements the approval-count rule: the
// workflow completes the instant it accumulates MinimumApprovals
// Approved actions with zero Rejected.
func (w *Workflow) MeetsApprovalCriterion() bool {
	return !w.HasRejection() && w.ApprovedCount() >= w.MinimumApprovals
}

// WorkflowRepository is the persistence contract WorkflowService
// depends on.
type WorkflowRepository interface {
	Create(ctx context.Context, workflow *Workflow) (*Workflow, error)
	GetByID(ctx context.Context, id EntityID) (*Workflow, error)
	GetByTransactionID(ctx context.Context, transactionID EntityID) (*Workflow, error)
	FindByStatusAndType(ctx context.Context, status *WorkflowStatus, workflowType *WorkflowType) ([]*Workflow, error)
	FindByAccount(ctx context.Context, accountID EntityID) ([]*Workflow, error)
	FindExpired(ctx context.Context, now time.Time) ([]*Workflow, error)

	// AppendStep persists a new WorkflowStepRecord and updates
	// current_step, guarded by expectedVersion.
	AppendStep(ctx context.Context, workflowID EntityID, step *WorkflowStepRecord, expectedVersion int64) (*Workflow, error)

	// AppendApproval persists a new Approval row against the workflow,
	// guarded by expectedVersion.
	AppendApproval(ctx context.Context, workflowID EntityID, approval *Approval, expectedVersion int64) (*Workflow, error)

	// UpdateStatus persists a status transition, guarded by
	// expectedVersion.
	UpdateStatus(ctx context.Context, workflowID EntityID, status WorkflowStatus, nextAction string, expectedVersion int64) (*Workflow, error)

	// BulkTimeout transitions every workflow id given to TimedOut in one
	// atomic batch.
	BulkTimeout(ctx context.Context, workflowIDs []EntityID, now time.Time) ([]*Workflow, error)
}
