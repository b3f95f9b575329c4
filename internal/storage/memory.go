package storage

import (
	"context"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// MemoryStore is an in-process RideStore with the same conditional-update
// semantics as the postgres implementation. Used by tests and redis-less
// local runs.
type MemoryStore struct {
	mu      sync.Mutex
	rides   map[string]*models.Ride
	drivers map[string]*models.Driver
	byConn  map[string]string // conn id -> driver id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:   make(map[string]*models.Ride),
		drivers: make(map[string]*models.Driver),
		byConn:  make(map[string]string),
	}
}

func (m *MemoryStore) CreateRide(_ context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRide(_ context.Context, id string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) AcceptRide(_ context.Context, id, driverID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != models.StatusRequested {
		return false, nil
	}
	r.Status = models.StatusAccepted
	r.DriverID = driverID
	r.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) TimeoutRide(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != models.StatusRequested {
		return false, nil
	}
	r.Status = models.StatusTimeout
	r.DriverID = ""
	r.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, status models.RideStatus) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !r.Status.Terminal() {
		r.Status = status
		if status == models.StatusCancelled || status == models.StatusTimeout {
			r.DriverID = ""
		}
		r.UpdatedAt = time.Now()
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) CompleteRide(_ context.Context, id, paymentMethod string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !r.Status.Terminal() {
		r.Status = models.StatusCompleted
		r.PaymentMethod = paymentMethod
		r.UpdatedAt = time.Now()
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) RateRide(_ context.Context, id string, stars int, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return ErrNotFound
	}
	r.Rating = stars
	r.Feedback = comment
	r.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ActiveRideForDriver(_ context.Context, driverID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rides {
		if r.DriverID == driverID && r.Status.Busy() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) RidesInStatuses(_ context.Context, statuses ...models.RideStatus) ([]*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[models.RideStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []*models.Ride
	for _, r := range m.rides {
		if want[r.Status] {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpsertDriver(_ context.Context, d *models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	cp.Updated = time.Now()
	if prev, ok := m.drivers[d.ID]; ok && prev.ConnID != "" && prev.ConnID != cp.ConnID {
		delete(m.byConn, prev.ConnID)
	}
	m.drivers[d.ID] = &cp
	if cp.ConnID != "" {
		m.byConn[cp.ConnID] = cp.ID
	}
	return nil
}

func (m *MemoryStore) GetDriver(_ context.Context, id string) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) SetDriverOffline(_ context.Context, connID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byConn[connID]
	if !ok {
		return "", nil
	}
	delete(m.byConn, connID)
	if d, ok := m.drivers[id]; ok {
		d.Online = false
		d.ConnID = ""
		d.Updated = time.Now()
	}
	return id, nil
}
