// Package memory is an in-process StatusStore used by tests and by
// STORE_DRIVER=memory. It honours the same ordering and pagination contract
// as the PostgreSQL repository.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/domain"
)

// StatusRepository keeps statuses in a map guarded by a RWMutex. Listings
// snapshot the map under one read lock, so count and items always agree.
type StatusRepository struct {
	mu       sync.RWMutex
	statuses map[uuid.UUID]domain.Status
	seq      int64

	now   func() time.Time
	newID func() uuid.UUID
}

func NewStatusRepository() *StatusRepository {
	return &StatusRepository{
		statuses: make(map[uuid.UUID]domain.Status),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.New,
	}
}

func (r *StatusRepository) Create(ctx context.Context, in domain.CreateStatusInput) (domain.Status, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return domain.Status{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Status{}, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	s := domain.Status{
		ID:         r.newID(),
		CreatedAt:  r.now(),
		Email:      in.Email,
		SendID:     in.SendID,
		ListID:     in.ListID,
		BounceType: in.BounceType,
		BounceText: in.BounceText,
		Timestamp:  in.Clone().Timestamp,
		Seq:        r.seq,
	}
	if _, exists := r.statuses[s.ID]; exists {
		return domain.Status{}, fmt.Errorf("%w: duplicate id %s", domain.ErrStorage, s.ID)
	}
	r.statuses[s.ID] = s
	return s.Clone(), nil
}

func (r *StatusRepository) FindByID(_ context.Context, id uuid.UUID) (domain.Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.statuses[id]
	if !ok {
		return domain.Status{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return s.Clone(), nil
}

func (r *StatusRepository) FindMany(_ context.Context, q domain.PageQuery) (domain.Page, error) {
	q = q.Normalize()

	r.mu.RLock()
	all := make([]domain.Status, 0, len(r.statuses))
	for _, s := range r.statuses {
		all = append(all, s.Clone())
	}
	r.mu.RUnlock()

	domain.SortStatuses(all)

	total := int64(len(all))
	start := q.Offset()
	if start >= len(all) {
		return domain.NewPage(q, nil, total), nil
	}
	end := start + q.PerPage
	if end > len(all) || end < start {
		end = len(all)
	}
	return domain.NewPage(q, all[start:end:end], total), nil
}

func (r *StatusRepository) Update(_ context.Context, id uuid.UUID, in domain.UpdateStatusInput) (domain.Status, error) {
	if err := in.Validate(); err != nil {
		return domain.Status{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.statuses[id]
	if !ok {
		return domain.Status{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	s = in.Apply(s)
	r.statuses[id] = s
	return s.Clone(), nil
}

func (r *StatusRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.statuses[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	delete(r.statuses, id)
	return nil
}

// Len returns the number of stored statuses.
func (r *StatusRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.statuses)
}
