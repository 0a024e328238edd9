package deviceflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/device-auth/internal/models"
)

// MemoryStore is an in-process Store used for single-instance deployments
// and unit tests.
type MemoryStore struct {
	mu          sync.RWMutex
	pending     map[string]models.PendingDeviceFlow
	completions map[string]models.DeviceFlowCompletion
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending:     make(map[string]models.PendingDeviceFlow),
		completions: make(map[string]models.DeviceFlowCompletion),
		now:         time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, f *models.PendingDeviceFlow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[f.DeviceCode]; ok {
		return ErrFlowExists
	}
	m.pending[f.DeviceCode] = *f
	return nil
}

// ListAll returns flows ordered by creation time.
func (m *MemoryStore) ListAll(_ context.Context) ([]models.PendingDeviceFlow, error) {
	m.mu.RLock()
	out := make([]models.PendingDeviceFlow, 0, len(m.pending))
	for _, f := range m.pending {
		out = append(out, f)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, deviceCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, deviceCode)
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, deviceCode string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pending[deviceCode]
	return ok, nil
}

func (m *MemoryStore) SaveCompletion(_ context.Context, c *models.DeviceFlowCompletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions[c.DeviceCode] = *c
	m.pruneLocked()
	return nil
}

func (m *MemoryStore) ConsumeCompletion(_ context.Context, deviceCode string) (*models.DeviceFlowCompletion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.completions[deviceCode]
	if !ok {
		return nil, nil
	}
	delete(m.completions, deviceCode)
	if !c.ExpiresAt.IsZero() && m.now().After(c.ExpiresAt) {
		return nil, nil
	}
	return &c, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// pruneLocked drops completions nobody picked up in time.
func (m *MemoryStore) pruneLocked() {
	now := m.now()
	for k, c := range m.completions {
		if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
			delete(m.completions, k)
		}
	}
}
