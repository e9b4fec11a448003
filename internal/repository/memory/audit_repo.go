package memory

import (
	"context"
	"sync"

	"github.com/meridianledger/core/internal/domain"
)

// AuditRepository is an in-memory domain.AuditRepository.
type AuditRepository struct {
	mu      sync.Mutex
	nextID  int64
	entries map[domain.AuditedEntityType]map[domain.EntityID][]*domain.AuditLogEntry
}

// NewAuditRepository creates a new in-memory AuditRepository.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{
		entries: make(map[domain.AuditedEntityType]map[domain.EntityID][]*domain.AuditLogEntry),
	}
}

// Append writes one audit row.
func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) (*domain.AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byEntity, ok := r.entries[entry.EntityType]
	if !ok {
		byEntity = make(map[domain.EntityID][]*domain.AuditLogEntry)
		r.entries[entry.EntityType] = byEntity
	}
	cp := *entry
	byEntity[entry.EntityID] = append(byEntity[entry.EntityID], &cp)
	return &cp, nil
}

// GetLatest returns the most recent audit entry for an entity.
func (r *AuditRepository) GetLatest(ctx context.Context, entityType domain.AuditedEntityType, entityID domain.EntityID) (*domain.AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.entries[entityType][entityID]
	if len(rows) == 0 {
		return nil, nil
	}
	latest := *rows[len(rows)-1]
	return &latest, nil
}

// GetHistory returns every audit entry recorded for an entity, oldest
// first.
func (r *AuditRepository) GetHistory(ctx context.Context, entityType domain.AuditedEntityType, entityID domain.EntityID) ([]*domain.AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.entries[entityType][entityID]
	out := make([]*domain.AuditLogEntry, len(rows))
	for i, row := range rows {
		cp := *row
		out[i] = &cp
	}
	return out, nil
}

// AllocateID hands out the next monotonic audit log id.
func (r *AuditRepository) AllocateID(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID, nil
}
