package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianledger/core/internal/domain"
)

// WorkflowRepository implements domain.WorkflowRepository directly
// against pgx.
type WorkflowRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(pool *pgxpool.Pool) *WorkflowRepository {
	return &WorkflowRepository{pool: pool}
}

const workflowColumns = `id, account_id, workflow_type, current_step, status, initiated_by, initiated_at,
	completed_at, next_action_required, timeout_at, created_at, last_updated_at,
	minimum_approvals, transaction_id, version, content_hash`

func scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var w domain.Workflow
	err := row.Scan(
		&w.ID, &w.AccountID, &w.WorkflowType, &w.CurrentStep, &w.Status, &w.InitiatedBy, &w.InitiatedAt,
		&w.CompletedAt, &w.NextActionRequired, &w.TimeoutAt, &w.CreatedAt, &w.LastUpdatedAt,
		&w.MinimumApprovals, &w.TransactionID, &w.Version, &w.ContentHash,
	)
	return &w, err
}

func (r *WorkflowRepository) loadSteps(ctx context.Context, workflowID domain.EntityID) ([]*domain.WorkflowStepRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, workflow_id, step, completed_at, completed_by, notes, supporting_documents
		FROM workflow_steps WHERE workflow_id = $1 ORDER BY completed_at ASC`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.WorkflowStepRecord, error) {
		var s domain.WorkflowStepRecord
		err := row.Scan(&s.ID, &s.WorkflowID, &s.Step, &s.CompletedAt, &s.CompletedBy, &s.Notes, &s.SupportingDocuments)
		return &s, err
	})
}

func (r *WorkflowRepository) loadApprovals(ctx context.Context, workflowID domain.EntityID) ([]*domain.Approval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, workflow_id, transaction_id, approver_id, action, approved_at, notes, method, location
		FROM workflow_approvals WHERE workflow_id = $1 ORDER BY approved_at ASC`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Approval, error) {
		var a domain.Approval
		err := row.Scan(&a.ID, &a.WorkflowID, &a.TransactionID, &a.ApproverID, &a.Action, &a.ApprovedAt, &a.Notes, &a.Method, &a.Location)
		return &a, err
	})
}

func (r *WorkflowRepository) hydrate(ctx context.Context, w *domain.Workflow) (*domain.Workflow, error) {
	steps, err := r.loadSteps(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	approvals, err := r.loadApprovals(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	w.Steps = steps
	w.Approvals = approvals
	return w, nil
}

// Create inserts a new workflow row with version 1.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *domain.Workflow) (*domain.Workflow, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO workflows (id, account_id, workflow_type, current_step, status, initiated_by, initiated_at,
			next_action_required, timeout_at, created_at, last_updated_at, minimum_approvals, transaction_id, version, content_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,1,$14)
		RETURNING `+workflowColumns,
		workflow.ID, workflow.AccountID, workflow.WorkflowType, workflow.CurrentStep, workflow.Status, workflow.InitiatedBy, workflow.InitiatedAt,
		workflow.NextActionRequired, workflow.TimeoutAt, workflow.CreatedAt, workflow.LastUpdatedAt, workflow.MinimumApprovals, workflow.TransactionID, workflow.ContentHash,
	)
	w, err := scanWorkflow(row)
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, w)
}

// GetByID returns the workflow for id, with its steps and approvals.
func (r *WorkflowRepository) GetByID(ctx context.Context, id domain.EntityID) (*domain.Workflow, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)
	w, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, w)
}

// GetByTransactionID returns the TransactionApproval workflow tied to a
// transaction, if one exists.
func (r *WorkflowRepository) GetByTransactionID(ctx context.Context, transactionID domain.EntityID) (*domain.Workflow, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE transaction_id = $1`, transactionID)
	w, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, w)
}

func (r *WorkflowRepository) queryWorkflows(ctx context.Context, query string, args ...interface{}) ([]*domain.Workflow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var shells []*domain.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		shells = append(shells, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*domain.Workflow, 0, len(shells))
	for _, w := range shells {
		hydrated, err := r.hydrate(ctx, w)
		if err != nil {
			return nil, err
		}
		out = append(out, hydrated)
	}
	return out, nil
}

// FindByStatusAndType filters workflows by optional status and type.
func (r *WorkflowRepository) FindByStatusAndType(ctx context.Context, status *domain.WorkflowStatus, workflowType *domain.WorkflowType) ([]*domain.Workflow, error) {
	return r.queryWorkflows(ctx, `
		SELECT `+workflowColumns+` FROM workflows
		WHERE ($1::text IS NULL OR status = $1) AND ($2::text IS NULL OR workflow_type = $2)`,
		status, workflowType)
}

// FindByAccount returns every workflow opened against accountID.
func (r *WorkflowRepository) FindByAccount(ctx context.Context, accountID domain.EntityID) ([]*domain.Workflow, error) {
	return r.queryWorkflows(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE account_id = $1`, accountID)
}

// FindExpired returns non-terminal workflows whose timeout has passed.
func (r *WorkflowRepository) FindExpired(ctx context.Context, now time.Time) ([]*domain.Workflow, error) {
	return r.queryWorkflows(ctx, `
		SELECT `+workflowColumns+` FROM workflows
		WHERE timeout_at IS NOT NULL AND timeout_at <= $1
		  AND status NOT IN ('Completed', 'Failed', 'Cancelled', 'TimedOut')`, now)
}

// AppendStep persists a new step record and updates current_step,
// guarded by expectedVersion.
func (r *WorkflowRepository) AppendStep(ctx context.Context, workflowID domain.EntityID, step *domain.WorkflowStepRecord, expectedVersion int64) (*domain.Workflow, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE workflows SET current_step = $1, last_updated_at = now(), version = version + 1
		WHERE id = $2 AND version = $3`, step.Step, workflowID, expectedVersion)
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		return nil, &domain.ConcurrentModificationError{Entity: "Workflow", ID: workflowID}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO workflow_steps (id, workflow_id, step, completed_at, completed_by, notes, supporting_documents)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		step.ID, workflowID, step.Step, step.CompletedAt, step.CompletedBy, step.Notes, step.SupportingDocuments); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, workflowID)
}

// AppendApproval persists a new approval row, guarded by
// expectedVersion.
func (r *WorkflowRepository) AppendApproval(ctx context.Context, workflowID domain.EntityID, approval *domain.Approval, expectedVersion int64) (*domain.Workflow, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE workflows SET last_updated_at = now(), version = version + 1
		WHERE id = $1 AND version = $2`, workflowID, expectedVersion)
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		return nil, &domain.ConcurrentModificationError{Entity: "Workflow", ID: workflowID}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO workflow_approvals (id, workflow_id, transaction_id, approver_id, action, approved_at, notes, method, location)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		approval.ID, workflowID, approval.TransactionID, approval.ApproverID, approval.Action,
		approval.ApprovedAt, approval.Notes, approval.Method, approval.Location); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, workflowID)
}

// UpdateStatus persists a status transition, guarded by expectedVersion.
func (r *WorkflowRepository) UpdateStatus(ctx context.Context, workflowID domain.EntityID, status domain.WorkflowStatus, nextAction string, expectedVersion int64) (*domain.Workflow, error) {
	var completedAt *time.Time
	if status.IsTerminal() {
		now := time.Now()
		completedAt = &now
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE workflows
		SET status = $1, next_action_required = $2, completed_at = $3, last_updated_at = now(), version = version + 1
		WHERE id = $4 AND version = $5
		RETURNING `+workflowColumns,
		status, nextAction, completedAt, workflowID, expectedVersion)
	w, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ConcurrentModificationError{Entity: "Workflow", ID: workflowID}
	}
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, w)
}

// BulkTimeout transitions every workflow id given to TimedOut in one
// atomic batch.
func (r *WorkflowRepository) BulkTimeout(ctx context.Context, workflowIDs []domain.EntityID, now time.Time) ([]*domain.Workflow, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	out := make([]*domain.Workflow, 0, len(workflowIDs))
	for _, id := range workflowIDs {
		row := tx.QueryRow(ctx, `
			UPDATE workflows
			SET status = 'TimedOut', completed_at = $1, last_updated_at = now(), version = version + 1
			WHERE id = $2
			RETURNING `+workflowColumns, now, id)
		w, err := scanWorkflow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	hydrated := make([]*domain.Workflow, 0, len(out))
	for _, w := range out {
		h, err := r.hydrate(ctx, w)
		if err != nil {
			return nil, err
		}
		hydrated = append(hydrated, h)
	}
	return hydrated, nil
}
