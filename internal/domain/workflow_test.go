package domain

import "testing"

func TestValidWorkflowTransition(t *testing.T) {
	tests := []struct {
		name string
		from WorkflowStatus
		to   WorkflowStatus
		want bool
	}{
		{"in progress to pending action", WorkflowStatusInProgress, WorkflowStatusPendingAction, true},
		{"in progress to completed", WorkflowStatusInProgress, WorkflowStatusCompleted, true},
		{"pending action to completed", WorkflowStatusPendingAction, WorkflowStatusCompleted, true},
		{"pending action to in progress", WorkflowStatusPendingAction, WorkflowStatusInProgress, true},
		{"completed to anything", WorkflowStatusCompleted, WorkflowStatusInProgress, false},
		{"failed to anything", WorkflowStatusFailed, WorkflowStatusCompleted, false},
		{"timed out to anything", WorkflowStatusTimedOut, WorkflowStatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidWorkflowTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("ValidWorkflowTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestWorkflowStatusIsTerminal(t *testing.T) {
	terminal := []WorkflowStatus{WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled, WorkflowStatusTimedOut}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []WorkflowStatus{WorkflowStatusInProgress, WorkflowStatusPendingAction}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestWorkflowApprovedCount(t *testing.T) {
	w := &Workflow{Approvals: []*Approval{
		{Action: ApprovalActionApproved},
		{Action: ApprovalActionApproved},
		{Action: ApprovalActionAbstain},
		{Action: ApprovalActionRejected},
	}}
	if got := w.ApprovedCount(); got != 2 {
		t.Errorf("ApprovedCount() = %d, want 2", got)
	}
}

func TestWorkflowHasRejection(t *testing.T) {
	w := &Workflow{Approvals: []*Approval{{Action: ApprovalActionApproved}}}
	if w.HasRejection() {
		t.Error("expected no rejection")
	}
	w.Approvals = append(w.Approvals, &Approval{Action: ApprovalActionRejected})
	if !w.HasRejection() {
		t.Error("expected a rejection to be detected")
	}
}

func TestWorkflowMeetsApprovalCriterion(t *testing.T) {
	w := &Workflow{MinimumApprovals: 2, Approvals: []*Approval{
		{Action: ApprovalActionApproved},
	}}
	if w.MeetsApprovalCriterion() {
		t.Error("one approval should not meet a threshold of two")
	}

	w.Approvals = append(w.Approvals, &Approval{Action: ApprovalActionApproved})
	if !w.MeetsApprovalCriterion() {
		t.Error("two approvals should meet a threshold of two")
	}

	w.Approvals = append(w.Approvals, &Approval{Action: ApprovalActionRejected})
	if w.MeetsApprovalCriterion() {
		t.Error("any rejection should prevent the criterion from being met, regardless of approval count")
	}
}
