package ledger

import (
	"context"
	"sync"

	"khqrgw/internal/domain"
)

// Memory is the default process-lifetime ledger.
type Memory struct {
	mu       sync.Mutex
	payments map[string]domain.Payment
	byShort  map[string]string
	order    []string // md5s, insertion order
}

func NewMemory() *Memory {
	return &Memory{
		payments: make(map[string]domain.Payment),
		byShort:  make(map[string]string),
	}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Save(_ context.Context, p domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.payments[p.MD5]; exists {
		return domain.ErrDuplicateBill
	}
	m.payments[p.MD5] = p
	// First registration wins on short-hash collisions.
	if _, taken := m.byShort[p.ShortHash]; !taken {
		m.byShort[p.ShortHash] = p.MD5
	}
	m.order = append(m.order, p.MD5)
	return nil
}

func (m *Memory) Get(_ context.Context, md5 string) (domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[md5]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *Memory) GetByShortHash(_ context.Context, shortHash string) (domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	md5, ok := m.byShort[shortHash]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return m.payments[md5], nil
}

func (m *Memory) List(_ context.Context, limit int) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.order) {
		limit = len(m.order)
	}
	out := make([]domain.Payment, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.payments[m.order[i]])
	}
	return out, nil
}

func (m *Memory) SetStatus(_ context.Context, md5 string, status domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[md5]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status.Terminal() {
		return domain.ErrTerminalStatus
	}
	p.Status = status
	m.payments[md5] = p
	return nil
}

func (m *Memory) MarkCompleted(_ context.Context, md5 string, s domain.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[md5]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status.Terminal() {
		return domain.ErrTerminalStatus
	}
	p.Status = domain.StatusCompleted
	p.TransactionHash = s.TransactionHash
	p.FromAccount = s.FromAccount
	p.CompletedAt = s.SettledAt
	m.payments[md5] = p
	return nil
}

func (m *Memory) SetDeeplink(_ context.Context, md5 string, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[md5]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status.Terminal() {
		return domain.ErrTerminalStatus
	}
	p.DeeplinkURL = url
	m.payments[md5] = p
	return nil
}

func (m *Memory) Pending(_ context.Context) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Payment
	for _, md5 := range m.order {
		p := m.payments[md5]
		if p.Status == domain.StatusPending || p.Status == domain.StatusError {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) Purge(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = make(map[string]domain.Payment)
	m.byShort = make(map[string]string)
	m.order = nil
	return nil
}
