package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianledger/core/internal/domain"
)

// AuditRepository implements domain.AuditRepository directly against
// pgx. AllocateID draws from a Postgres sequence rather than an
// in-process counter, so ids stay monotonic across every API replica.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Append writes one audit row as its own statement on the pool. It does
// not join the database transaction of the entity write it describes;
// the services call it after that write has committed.
func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) (*domain.AuditLogEntry, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log_entries (id, entity_type, entity_id, version, content_hash, updated_at, updated_by_person)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID, entry.EntityType, entry.EntityID, entry.Version, entry.ContentHash, entry.UpdatedAt, entry.UpdatedByPerson)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// GetLatest returns the most recent audit entry for an entity, or nil
// if none exists.
func (r *AuditRepository) GetLatest(ctx context.Context, entityType domain.AuditedEntityType, entityID domain.EntityID) (*domain.AuditLogEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, entity_type, entity_id, version, content_hash, updated_at, updated_by_person
		FROM audit_log_entries WHERE entity_type = $1 AND entity_id = $2
		ORDER BY version DESC LIMIT 1`, entityType, entityID)

	var e domain.AuditLogEntry
	err := row.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Version, &e.ContentHash, &e.UpdatedAt, &e.UpdatedByPerson)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetHistory returns every audit entry recorded for an entity, oldest
// first.
func (r *AuditRepository) GetHistory(ctx context.Context, entityType domain.AuditedEntityType, entityID domain.EntityID) ([]*domain.AuditLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, version, content_hash, updated_at, updated_by_person
		FROM audit_log_entries WHERE entity_type = $1 AND entity_id = $2
		ORDER BY version ASC`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.AuditLogEntry, error) {
		var e domain.AuditLogEntry
		err := row.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Version, &e.ContentHash, &e.UpdatedAt, &e.UpdatedByPerson)
		return &e, err
	})
}

// AllocateID hands out the next value of the audit_log_id_seq sequence.
func (r *AuditRepository) AllocateID(ctx context.Context) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT nextval('audit_log_id_seq')`).Scan(&id)
	return id, err
}
