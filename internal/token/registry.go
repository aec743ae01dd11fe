package token

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownToken is returned when no metadata is registered for an asset.
var ErrUnknownToken = errors.New("unknown token")

// Metadata describes an asset.
type Metadata struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Registry holds asset metadata keyed by address.
type Registry struct {
	mu     sync.RWMutex
	tokens map[common.Address]Metadata
}

// NewRegistry creates a registry pre-populated with the given tokens.
func NewRegistry(tokens ...Metadata) *Registry {
	r := &Registry{tokens: make(map[common.Address]Metadata, len(tokens))}
	for _, t := range tokens {
		r.tokens[t.Address] = t
	}
	return r
}

// Register adds or replaces metadata for an asset.
func (r *Registry) Register(m Metadata) error {
	if m.Symbol == "" {
		return fmt.Errorf("token %s: empty symbol", m.Address.Hex())
	}
	if m.Decimals > 36 {
		return fmt.Errorf("token %s: %d decimals out of range", m.Symbol, m.Decimals)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[m.Address] = m
	return nil
}

// Get returns metadata for asset.
func (r *Registry) Get(asset common.Address) (Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.tokens[asset]
	if !ok {
		return Metadata{}, fmt.Errorf("%w: %s", ErrUnknownToken, asset.Hex())
	}
	return m, nil
}

// Decimals returns the decimal scale of asset.
func (r *Registry) Decimals(asset common.Address) (uint8, error) {
	m, err := r.Get(asset)
	if err != nil {
		return 0, err
	}
	return m.Decimals, nil
}

// BySymbol looks an asset up by its case-insensitive symbol.
func (r *Registry) BySymbol(symbol string) (Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.tokens {
		if strings.EqualFold(m.Symbol, symbol) {
			return m, nil
		}
	}
	return Metadata{}, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
}

// List returns all registered tokens ordered by symbol.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Metadata, 0, len(r.tokens))
	for _, m := range r.tokens {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
