package venue

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/domain"
)

// Handle is a resolved venue.
type Handle struct {
	Name   string
	Kind   domain.VenueKind
	Router Router
}

// ConstantProduct returns the router as a constant-product router.
func (h Handle) ConstantProduct() (ConstantProductRouter, bool) {
	r, ok := h.Router.(ConstantProductRouter)
	return r, ok && h.Kind == domain.VenueConstantProduct
}

// Tiered returns the router as a tiered router.
func (h Handle) Tiered() (TieredRouter, bool) {
	r, ok := h.Router.(TieredRouter)
	return r, ok && h.Kind == domain.VenueTiered
}

// Registry maps symbolic venue names to routers.
type Registry struct {
	mu     sync.RWMutex
	venues map[string]Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{venues: make(map[string]Handle)}
}

// Register adds a router under name. The kind is derived from the router's
// interface; a router implementing both is treated as tiered.
func (r *Registry) Register(name string, router Router) error {
	if name == "" || router == nil {
		return fmt.Errorf("%w: empty name or router", ErrUnsupportedRouter)
	}

	var kind domain.VenueKind
	switch router.(type) {
	case TieredRouter:
		kind = domain.VenueTiered
	case ConstantProductRouter:
		kind = domain.VenueConstantProduct
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedRouter, router)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.venues[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateVenue, name)
	}
	r.venues[name] = Handle{Name: name, Kind: kind, Router: router}
	return nil
}

// Resolve returns the venue registered under name.
func (r *Registry) Resolve(name string) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.venues[name]
	if !ok {
		return Handle{}, fmt.Errorf("%w: %q", ErrUnknownVenue, name)
	}
	return h, nil
}

// ByAddress returns the venue whose router lives at addr.
func (r *Registry) ByAddress(addr common.Address) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.venues {
		if h.Router.Address() == addr {
			return h, true
		}
	}
	return Handle{}, false
}

// List returns all venues ordered by name.
func (r *Registry) List() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(r.venues))
	for _, h := range r.venues {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
