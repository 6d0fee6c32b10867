package queue

import "sync"

// Manager owns one queue per printer id. It replaces process-wide queue
// globals: construct it once and pass it to whoever needs queue access.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*Queue
	order  []string
	cfg    Config
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		queues: make(map[string]*Queue),
		cfg:    cfg,
	}
}

// GetOrCreate returns the queue for a printer, creating it with the given
// handler on first use. The handler of an existing queue is not replaced.
func (m *Manager) GetOrCreate(printerID string, handler PrintHandler) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[printerID]; ok {
		return q
	}
	q := New(printerID, handler, m.cfg)
	m.queues[printerID] = q
	m.order = append(m.order, printerID)
	return q
}

func (m *Manager) Get(printerID string) (*Queue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[printerID]
	return q, ok
}

// All returns every queue in creation order.
func (m *Manager) All() []*Queue {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Queue, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.queues[id])
	}
	return out
}
