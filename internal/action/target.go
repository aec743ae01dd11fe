package action

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownTarget is returned when no target is registered at an address.
var ErrUnknownTarget = errors.New("unknown call target")

// Call is one generic call against a target.
type Call struct {
	Caller common.Address // identity the call is made from
	Value  *big.Int       // native amount already moved to the target
	Data   []byte
}

// Target is anything a lend/borrow/stake/wrap/custom action can call.
// A returned error means the call reverted.
type Target interface {
	Call(ctx context.Context, call Call) ([]byte, error)
}

// TargetFunc adapts a function to Target.
type TargetFunc func(ctx context.Context, call Call) ([]byte, error)

// Call calls f.
func (f TargetFunc) Call(ctx context.Context, call Call) ([]byte, error) {
	return f(ctx, call)
}

// Targets maps addresses to callable targets.
type Targets struct {
	mu      sync.RWMutex
	targets map[common.Address]Target
}

// NewTargets creates an empty target table.
func NewTargets() *Targets {
	return &Targets{targets: make(map[common.Address]Target)}
}

// Register binds t to addr.
func (t *Targets) Register(addr common.Address, target Target) error {
	if addr == (common.Address{}) || target == nil {
		return fmt.Errorf("register target: zero address or nil target")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.targets[addr]; exists {
		return fmt.Errorf("register target: %s already bound", addr.Hex())
	}
	t.targets[addr] = target
	return nil
}

// Resolve returns the target bound to addr.
func (t *Targets) Resolve(addr common.Address) (Target, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	target, ok := t.targets[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, addr.Hex())
	}
	return target, nil
}
