package memory

import (
	"context"
	"sync"
	"time"

	"github.com/meridianledger/core/internal/domain"
)

// HoldRepository is an in-memory domain.HoldRepository.
type HoldRepository struct {
	mu        sync.Mutex
	holds     map[domain.EntityID]*domain.AccountHold
	releases  map[domain.EntityID][]*domain.HoldReleaseRecord
	overrides map[domain.EntityID][]*domain.HoldOverrideRecord
}

// NewHoldRepository creates a new in-memory HoldRepository.
func NewHoldRepository() *HoldRepository {
	return &HoldRepository{
		holds:     make(map[domain.EntityID]*domain.AccountHold),
		releases:  make(map[domain.EntityID][]*domain.HoldReleaseRecord),
		overrides: make(map[domain.EntityID][]*domain.HoldOverrideRecord),
	}
}

func cloneHold(h *domain.AccountHold) *domain.AccountHold {
	cp := *h
	return &cp
}

// Create stores a new hold with Version 1.
func (r *HoldRepository) Create(ctx context.Context, hold *domain.AccountHold) (*domain.AccountHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hold.ID.IsNil() {
		hold.ID = domain.NewEntityID()
	}
	hold.Version = 1
	r.holds[hold.ID] = cloneHold(hold)
	return cloneHold(r.holds[hold.ID]), nil
}

// GetByID returns the hold for id.
func (r *HoldRepository) GetByID(ctx context.Context, id domain.EntityID) (*domain.AccountHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.holds[id]
	if !ok {
		return nil, domain.ErrHoldNotFound
	}
	return cloneHold(h), nil
}

// Update persists a hold with a changed status/amount, enforcing the
// optimistic-concurrency check.
func (r *HoldRepository) Update(ctx context.Context, hold *domain.AccountHold, expectedVersion int64) (*domain.AccountHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.holds[hold.ID]
	if !ok {
		return nil, domain.ErrHoldNotFound
	}
	if existing.Version != expectedVersion {
		return nil, &domain.ConcurrentModificationError{Entity: "AccountHold", ID: hold.ID}
	}
	updated := cloneHold(hold)
	updated.Version = existing.Version + 1
	r.holds[hold.ID] = updated
	return cloneHold(updated), nil
}

// GetActiveHolds returns every Active hold on accountID, optionally
// filtered by type.
func (r *HoldRepository) GetActiveHolds(ctx context.Context, accountID domain.EntityID, types []domain.HoldType) ([]*domain.AccountHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	allow := make(map[domain.HoldType]bool, len(types))
	for _, t := range types {
		allow[t] = true
	}
	var out []*domain.AccountHold
	for _, h := range r.holds {
		if h.AccountID != accountID || h.Status != domain.HoldStatusActive {
			continue
		}
		if len(types) > 0 && !allow[h.HoldType] {
			continue
		}
		out = append(out, cloneHold(h))
	}
	return out, nil
}

// GetByStatus returns holds in a given status, optionally scoped to one
// account and a time window.
func (r *HoldRepository) GetByStatus(ctx context.Context, accountID *domain.EntityID, status domain.HoldStatus, from, to *time.Time) ([]*domain.AccountHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AccountHold
	for _, h := range r.holds {
		if h.Status != status {
			continue
		}
		if accountID != nil && h.AccountID != *accountID {
			continue
		}
		if from != nil && h.PlacedAt.Before(*from) {
			continue
		}
		if to != nil && h.PlacedAt.After(*to) {
			continue
		}
		out = append(out, cloneHold(h))
	}
	return out, nil
}

// GetByType returns holds of a given type, optionally filtered by
// status and restricted to a set of accounts.
func (r *HoldRepository) GetByType(ctx context.Context, holdType domain.HoldType, status *domain.HoldStatus, accountIDs []domain.EntityID) ([]*domain.AccountHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	allow := make(map[domain.EntityID]bool, len(accountIDs))
	for _, id := range accountIDs {
		allow[id] = true
	}
	var out []*domain.AccountHold
	for _, h := range r.holds {
		if h.HoldType != holdType {
			continue
		}
		if status != nil && h.Status != *status {
			continue
		}
		if len(accountIDs) > 0 && !allow[h.AccountID] {
			continue
		}
		out = append(out, cloneHold(h))
	}
	return out, nil
}

// GetHistory returns every hold ever placed on accountID within the
// optional time window, regardless of status.
func (r *HoldRepository) GetHistory(ctx context.Context, accountID domain.EntityID, from, to *time.Time) ([]*domain.AccountHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AccountHold
	for _, h := range r.holds {
		if h.AccountID != accountID {
			continue
		}
		if from != nil && h.PlacedAt.Before(*from) {
			continue
		}
		if to != nil && h.PlacedAt.After(*to) {
			continue
		}
		out = append(out, cloneHold(h))
	}
	return out, nil
}

// GetExpired returns Active holds whose expiry is at or before asOf.
func (r *HoldRepository) GetExpired(ctx context.Context, asOf time.Time, types []domain.HoldType) ([]*domain.AccountHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	allow := make(map[domain.HoldType]bool, len(types))
	for _, t := range types {
		allow[t] = true
	}
	var out []*domain.AccountHold
	for _, h := range r.holds {
		if h.Status != domain.HoldStatusActive || h.ExpiresAt == nil || h.ExpiresAt.After(asOf) {
			continue
		}
		if len(types) > 0 && !allow[h.HoldType] {
			continue
		}
		out = append(out, cloneHold(h))
	}
	return out, nil
}

// AppendRelease persists a release record.
func (r *HoldRepository) AppendRelease(ctx context.Context, record *domain.HoldReleaseRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases[record.HoldID] = append(r.releases[record.HoldID], record)
	return nil
}

// GetReleaseRecords returns every release record for holdID.
func (r *HoldRepository) GetReleaseRecords(ctx context.Context, holdID domain.EntityID) ([]*domain.HoldReleaseRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.HoldReleaseRecord(nil), r.releases[holdID]...), nil
}

// CreateOverride persists an override decision.
func (r *HoldRepository) CreateOverride(ctx context.Context, record *domain.HoldOverrideRecord) (*domain.HoldOverrideRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record.ID.IsNil() {
		record.ID = domain.NewEntityID()
	}
	r.overrides[record.TransactionID] = append(r.overrides[record.TransactionID], record)
	return record, nil
}

// GetOverridesForTransaction returns every override recorded against a
// transaction.
func (r *HoldRepository) GetOverridesForTransaction(ctx context.Context, transactionID domain.EntityID) ([]*domain.HoldOverrideRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.HoldOverrideRecord(nil), r.overrides[transactionID]...), nil
}

// BulkCreate inserts every hold in one all-or-nothing batch.
func (r *HoldRepository) BulkCreate(ctx context.Context, holds []*domain.AccountHold) ([]*domain.AccountHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.AccountHold, 0, len(holds))
	for _, h := range holds {
		if h.ID.IsNil() {
			h.ID = domain.NewEntityID()
		}
		h.Version = 1
		stored := cloneHold(h)
		r.holds[h.ID] = stored
		out = append(out, cloneHold(stored))
	}
	return out, nil
}

// BulkUpdate updates every hold in one all-or-nothing batch, each
// guarded by its own Version field as the expected version.
func (r *HoldRepository) BulkUpdate(ctx context.Context, holds []*domain.AccountHold) ([]*domain.AccountHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range holds {
		existing, ok := r.holds[h.ID]
		if !ok {
			return nil, domain.ErrHoldNotFound
		}
		if existing.Version != h.Version {
			return nil, &domain.ConcurrentModificationError{Entity: "AccountHold", ID: h.ID}
		}
	}
	out := make([]*domain.AccountHold, 0, len(holds))
	for _, h := range holds {
		updated := cloneHold(h)
		updated.Version++
		r.holds[h.ID] = updated
		out = append(out, cloneHold(updated))
	}
	return out, nil
}

// GetByCourtReference returns every hold whose SourceReference matches
// a court docket reference.
func (r *HoldRepository) GetByCourtReference(ctx context.Context, courtReference string) ([]*domain.AccountHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AccountHold
	for _, h := range r.holds {
		if h.HoldType == domain.HoldTypeJudicialLien && h.SourceReference == courtReference {
			out = append(out, cloneHold(h))
		}
	}
	return out, nil
}
