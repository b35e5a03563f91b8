package repository

import (
	"context"
	"sort"
	"sync"

	"device-session-gate/internal/device/domain"
)

// MemoryRepository is a process-local Repository. It is used when no DATABASE_URL is configured
// and by tests. Records are copied on the way in and out so callers never share state with the store.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*domain.Device
}

// NewMemoryRepository returns an empty in-memory device repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*domain.Device)}
}

func (r *MemoryRepository) GetByDeviceAndAccount(ctx context.Context, deviceID, accountID string) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.records {
		if d.DeviceID == deviceID && d.AccountID == accountID {
			return d.Clone(), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.records {
		if d.APIKey == apiKey {
			return d.Clone(), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Device
	for _, d := range r.records {
		if d.AccountID == accountID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) InsertIfAbsent(ctx context.Context, d *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[d.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range r.records {
		if existing.DeviceID == d.DeviceID && existing.AccountID == d.AccountID {
			return ErrDuplicate
		}
		if existing.APIKey == d.APIKey {
			return ErrDuplicate
		}
	}
	d.Version = 1
	r.records[d.ID] = d.Clone()
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, d *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.records[d.ID]
	if !ok || stored.Version != d.Version {
		return ErrConflict
	}
	for id, other := range r.records {
		if id != d.ID && other.APIKey == d.APIKey {
			return ErrDuplicate
		}
	}
	d.Version++
	r.records[d.ID] = d.Clone()
	return nil
}

func (r *MemoryRepository) LogoutMany(ctx context.Context, f LogoutFilter, p LogoutPatch) (int, error) {
	if err := f.validate(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.records {
		if !f.matches(d) {
			continue
		}
		at := p.At
		d.IsLoggedOut = true
		d.LoggedOutAt = &at
		d.SupersededBy = nil
		if p.SupersededBy != nil {
			s := *p.SupersededBy
			d.SupersededBy = &s
		}
		d.UpdatedAt = at
		d.Version++
		n++
	}
	return n, nil
}
