// Package routing maps semantic print intents (what the caller wants
// printed) onto physical printer ids, so web clients never hard-code
// printer names.
package routing

import (
	"strings"
	"sync"
)

// Route binds one intent to a printer.
type Route struct {
	PrinterID   string `json:"printer_id" yaml:"printer"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Config is the yaml shape of the routing section.
type Config struct {
	Intents                map[string]Route `yaml:"intents"`
	DefaultLabelPrinter    string           `yaml:"default_label_printer"`
	DefaultDocumentPrinter string           `yaml:"default_document_printer"`
}

// Router resolves intents to printer ids with content-type fallbacks.
type Router struct {
	mu              sync.RWMutex
	routes          map[string]Route
	defaultLabel    string
	defaultDocument string
}

func New(cfg Config) *Router {
	r := &Router{
		routes:          make(map[string]Route),
		defaultLabel:    cfg.DefaultLabelPrinter,
		defaultDocument: cfg.DefaultDocumentPrinter,
	}
	if r.defaultLabel == "" {
		r.defaultLabel = "label"
	}
	if r.defaultDocument == "" {
		r.defaultDocument = "document"
	}
	for intent, route := range cfg.Intents {
		r.routes[intent] = route
	}
	return r
}

// Resolve returns the printer id for an intent, or "" when unknown.
func (r *Router) Resolve(intent string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routes[intent].PrinterID
}

// ResolveOrDefault falls back to the content-type default when the intent
// is unknown or empty.
func (r *Router) ResolveOrDefault(intent, contentType string) string {
	if id := r.Resolve(intent); id != "" {
		return id
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return r.defaultLabel
	case contentType == "application/pdf":
		return r.defaultDocument
	default:
		return r.defaultLabel
	}
}

// Intents lists configured routes for API discovery.
func (r *Router) Intents() map[string]Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Route, len(r.routes))
	for intent, route := range r.routes {
		out[intent] = route
	}
	return out
}

// AddRoute registers a route at runtime. Mostly useful in tests.
func (r *Router) AddRoute(intent, printerID, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[intent] = Route{PrinterID: printerID, Description: description}
}
