package printer

import (
	"context"
	"sync"
)

// Registry holds every configured printer adapter, keyed by printer id.
type Registry struct {
	mu       sync.RWMutex
	printers map[string]Printer
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{printers: make(map[string]Printer)}
}

func (r *Registry) Register(p Printer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.printers[p.ID()]; !exists {
		r.order = append(r.order, p.ID())
	}
	r.printers[p.ID()] = p
}

func (r *Registry) Get(id string) (Printer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.printers[id]
	return p, ok
}

// List returns printers in registration order.
func (r *Registry) List() []Printer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Printer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.printers[id])
	}
	return out
}

func (r *Registry) AllStatus(ctx context.Context) map[string]Status {
	statuses := make(map[string]Status)
	for _, p := range r.List() {
		statuses[p.ID()] = p.GetStatus(ctx)
	}
	return statuses
}
