package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianledger/core/internal/domain"
)

// HoldRepository implements domain.HoldRepository directly against pgx.
type HoldRepository struct {
	pool *pgxpool.Pool
}

// NewHoldRepository creates a new HoldRepository.
func NewHoldRepository(pool *pgxpool.Pool) *HoldRepository {
	return &HoldRepository{pool: pool}
}

const holdColumns = `id, account_id, amount, hold_type, priority, reason_id, additional_details,
	placed_by_person, placed_at, expires_at, status, released_at, released_by_person,
	source_reference, automatic_release, version, content_hash`

func scanHold(row pgx.Row) (*domain.AccountHold, error) {
	var h domain.AccountHold
	var releasedBy *domain.PersonID
	err := row.Scan(
		&h.ID, &h.AccountID, &h.Amount, &h.HoldType, &h.Priority, &h.ReasonID, &h.AdditionalDetails,
		&h.PlacedByPerson, &h.PlacedAt, &h.ExpiresAt, &h.Status, &h.ReleasedAt, &releasedBy,
		&h.SourceReference, &h.AutomaticRelease, &h.Version, &h.ContentHash,
	)
	if err != nil {
		return nil, err
	}
	h.ReleasedByPerson = releasedBy
	return &h, nil
}

// Create inserts a new hold row with version 1.
func (r *HoldRepository) Create(ctx context.Context, hold *domain.AccountHold) (*domain.AccountHold, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO account_holds (id, account_id, amount, hold_type, priority, reason_id, additional_details,
			placed_by_person, placed_at, expires_at, status, source_reference, automatic_release, version, content_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,1,$14)
		RETURNING `+holdColumns,
		hold.ID, hold.AccountID, hold.Amount, hold.HoldType, hold.Priority, hold.ReasonID, hold.AdditionalDetails,
		hold.PlacedByPerson, hold.PlacedAt, hold.ExpiresAt, hold.Status, hold.SourceReference, hold.AutomaticRelease, hold.ContentHash,
	)
	return scanHold(row)
}

// GetByID returns the hold for id.
func (r *HoldRepository) GetByID(ctx context.Context, id domain.EntityID) (*domain.AccountHold, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+holdColumns+` FROM account_holds WHERE id = $1`, id)
	h, err := scanHold(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrHoldNotFound
	}
	return h, err
}

// Update persists a hold whose status/amount/expiry/reason changed,
// guarded by expectedVersion.
func (r *HoldRepository) Update(ctx context.Context, hold *domain.AccountHold, expectedVersion int64) (*domain.AccountHold, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE account_holds
		SET amount = $1, status = $2, expires_at = $3, released_at = $4, released_by_person = $5,
		    additional_details = $6, version = version + 1
		WHERE id = $7 AND version = $8
		RETURNING `+holdColumns,
		hold.Amount, hold.Status, hold.ExpiresAt, hold.ReleasedAt, hold.ReleasedByPerson,
		hold.AdditionalDetails, hold.ID, expectedVersion)
	h, err := scanHold(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ConcurrentModificationError{Entity: "AccountHold", ID: hold.ID}
	}
	return h, err
}

func (r *HoldRepository) queryHolds(ctx context.Context, query string, args ...interface{}) ([]*domain.AccountHold, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AccountHold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetActiveHolds returns every Active hold on accountID, optionally
// filtered by type.
func (r *HoldRepository) GetActiveHolds(ctx context.Context, accountID domain.EntityID, types []domain.HoldType) ([]*domain.AccountHold, error) {
	if len(types) == 0 {
		return r.queryHolds(ctx, `SELECT `+holdColumns+` FROM account_holds WHERE account_id = $1 AND status = 'Active'`, accountID)
	}
	return r.queryHolds(ctx, `SELECT `+holdColumns+` FROM account_holds WHERE account_id = $1 AND status = 'Active' AND hold_type = ANY($2)`, accountID, types)
}

// GetByStatus returns holds in a given status, optionally scoped to one
// account and a time window.
func (r *HoldRepository) GetByStatus(ctx context.Context, accountID *domain.EntityID, status domain.HoldStatus, from, to *time.Time) ([]*domain.AccountHold, error) {
	return r.queryHolds(ctx, `
		SELECT `+holdColumns+` FROM account_holds
		WHERE status = $1
		  AND ($2::uuid IS NULL OR account_id = $2)
		  AND ($3::timestamptz IS NULL OR placed_at >= $3)
		  AND ($4::timestamptz IS NULL OR placed_at <= $4)`,
		status, accountID, from, to)
}

// GetByType returns holds of a given type, optionally filtered by
// status and restricted to a set of accounts.
func (r *HoldRepository) GetByType(ctx context.Context, holdType domain.HoldType, status *domain.HoldStatus, accountIDs []domain.EntityID) ([]*domain.AccountHold, error) {
	return r.queryHolds(ctx, `
		SELECT `+holdColumns+` FROM account_holds
		WHERE hold_type = $1
		  AND ($2::text IS NULL OR status = $2)
		  AND (array_length($3::uuid[], 1) IS NULL OR account_id = ANY($3))`,
		holdType, status, accountIDs)
}

// GetHistory returns every hold ever placed on accountID within the
// optional time window.
func (r *HoldRepository) GetHistory(ctx context.Context, accountID domain.EntityID, from, to *time.Time) ([]*domain.AccountHold, error) {
	return r.queryHolds(ctx, `
		SELECT `+holdColumns+` FROM account_holds
		WHERE account_id = $1
		  AND ($2::timestamptz IS NULL OR placed_at >= $2)
		  AND ($3::timestamptz IS NULL OR placed_at <= $3)
		ORDER BY placed_at ASC`, accountID, from, to)
}

// GetExpired returns Active holds whose expiry is at or before asOf.
func (r *HoldRepository) GetExpired(ctx context.Context, asOf time.Time, types []domain.HoldType) ([]*domain.AccountHold, error) {
	if len(types) == 0 {
		return r.queryHolds(ctx, `SELECT `+holdColumns+` FROM account_holds WHERE status = 'Active' AND expires_at IS NOT NULL AND expires_at <= $1`, asOf)
	}
	return r.queryHolds(ctx, `
		SELECT `+holdColumns+` FROM account_holds
		WHERE status = 'Active' AND expires_at IS NOT NULL AND expires_at <= $1 AND hold_type = ANY($2)`, asOf, types)
}

// AppendRelease persists a release record.
func (r *HoldRepository) AppendRelease(ctx context.Context, record *domain.HoldReleaseRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO hold_release_records (id, hold_id, amount, reason_id, released_by, released_at, result_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		record.ID, record.HoldID, record.Amount, record.ReasonID, record.ReleasedBy, record.ReleasedAt, record.ResultStatus)
	return err
}

// GetReleaseRecords returns every release record for holdID.
func (r *HoldRepository) GetReleaseRecords(ctx context.Context, holdID domain.EntityID) ([]*domain.HoldReleaseRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, hold_id, amount, reason_id, released_by, released_at, result_status
		FROM hold_release_records WHERE hold_id = $1 ORDER BY released_at ASC`, holdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.HoldReleaseRecord, error) {
		var rec domain.HoldReleaseRecord
		err := row.Scan(&rec.ID, &rec.HoldID, &rec.Amount, &rec.ReasonID, &rec.ReleasedBy, &rec.ReleasedAt, &rec.ResultStatus)
		return &rec, err
	})
}

// CreateOverride persists an override decision.
func (r *HoldRepository) CreateOverride(ctx context.Context, record *domain.HoldOverrideRecord) (*domain.HoldOverrideRecord, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO hold_override_records (id, account_id, transaction_id, hold_ids, required_amount, override_priority, authorized_by, reason_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		record.ID, record.AccountID, record.TransactionID, record.HoldIDs, record.RequiredAmount,
		record.OverridePriority, record.AuthorizedBy, record.ReasonID, record.CreatedAt)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetOverridesForTransaction returns every override recorded against a
// transaction.
func (r *HoldRepository) GetOverridesForTransaction(ctx context.Context, transactionID domain.EntityID) ([]*domain.HoldOverrideRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, transaction_id, hold_ids, required_amount, override_priority, authorized_by, reason_id, created_at
		FROM hold_override_records WHERE transaction_id = $1 ORDER BY created_at ASC`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.HoldOverrideRecord, error) {
		var rec domain.HoldOverrideRecord
		err := row.Scan(&rec.ID, &rec.AccountID, &rec.TransactionID, &rec.HoldIDs, &rec.RequiredAmount,
			&rec.OverridePriority, &rec.AuthorizedBy, &rec.ReasonID, &rec.CreatedAt)
		return &rec, err
	})
}

// BulkCreate inserts every hold in one all-or-nothing batch transaction.
func (r *HoldRepository) BulkCreate(ctx context.Context, holds []*domain.AccountHold) ([]*domain.AccountHold, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	out := make([]*domain.AccountHold, 0, len(holds))
	for _, h := range holds {
		row := tx.QueryRow(ctx, `
			INSERT INTO account_holds (id, account_id, amount, hold_type, priority, reason_id, additional_details,
				placed_by_person, placed_at, expires_at, status, source_reference, automatic_release, version, content_hash)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,1,$14)
			RETURNING `+holdColumns,
			h.ID, h.AccountID, h.Amount, h.HoldType, h.Priority, h.ReasonID, h.AdditionalDetails,
			h.PlacedByPerson, h.PlacedAt, h.ExpiresAt, h.Status, h.SourceReference, h.AutomaticRelease, h.ContentHash,
		)
		created, err := scanHold(row)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// BulkUpdate updates every hold in one all-or-nothing batch
// transaction, each guarded by its own Version field.
func (r *HoldRepository) BulkUpdate(ctx context.Context, holds []*domain.AccountHold) ([]*domain.AccountHold, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	out := make([]*domain.AccountHold, 0, len(holds))
	for _, h := range holds {
		row := tx.QueryRow(ctx, `
			UPDATE account_holds
			SET amount = $1, status = $2, expires_at = $3, released_at = $4, released_by_person = $5,
			    additional_details = $6, version = version + 1
			WHERE id = $7 AND version = $8
			RETURNING `+holdColumns,
			h.Amount, h.Status, h.ExpiresAt, h.ReleasedAt, h.ReleasedByPerson, h.AdditionalDetails, h.ID, h.Version)
		updated, err := scanHold(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &domain.ConcurrentModificationError{Entity: "AccountHold", ID: h.ID}
			}
			return nil, err
		}
		out = append(out, updated)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByCourtReference returns every judicial-lien hold whose source
// reference matches a court docket reference.
func (r *HoldRepository) GetByCourtReference(ctx context.Context, courtReference string) ([]*domain.AccountHold, error) {
	return r.queryHolds(ctx, `
		SELECT `+holdColumns+` FROM account_holds
		WHERE hold_type = 'JudicialLien' AND source_reference = $1`, courtReference)
}
