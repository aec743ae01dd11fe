// Package safety holds the process-wide guard rails: emergency stop,
// gas price ceiling, slippage and the executor allow-list.
package safety

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/observability"
)

// Governor errors.
var (
	ErrNotOwner          = errors.New("caller is not the owner")
	ErrEmergencyStop     = errors.New("emergency stop engaged")
	ErrGasPriceTooHigh   = errors.New("gas price above limit")
	ErrUnknownGasPrice   = errors.New("gas price unknown")
	ErrInvalidParams     = errors.New("invalid safety params")
	ErrZeroAddress       = errors.New("zero address")
	ErrEmergencyRequired = errors.New("operation requires emergency stop")
)

// Governor is the single writer of SafetyParams and the executor allow-list.
// Mutations are owner-only and visible to the next check without delay.
type Governor struct {
	mu        sync.RWMutex
	owner     common.Address
	params    domain.SafetyParams
	executors map[common.Address]struct{}
	logger    *zap.Logger
}

// NewGovernor creates a governor owned by owner.
func NewGovernor(owner common.Address, params domain.SafetyParams, logger *zap.Logger) (*Governor, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("owner: %w", ErrZeroAddress)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	observability.SetEmergencyStop(params.EmergencyStop)
	return &Governor{
		owner:     owner,
		params:    params.Clone(),
		executors: make(map[common.Address]struct{}),
		logger:    logger,
	}, nil
}

// Owner returns the privileged identity.
func (g *Governor) Owner() common.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.owner
}

// IsOwner reports whether identity is the owner.
func (g *Governor) IsOwner(identity common.Address) bool {
	return g.Owner() == identity
}

// RequireOwner returns ErrNotOwner unless caller is the owner.
func (g *Governor) RequireOwner(caller common.Address) error {
	if !g.IsOwner(caller) {
		return ErrNotOwner
	}
	return nil
}

// Params returns a copy of the current parameters.
func (g *Governor) Params() domain.SafetyParams {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.params.Clone()
}

// IsEmergencyStopped reports whether the emergency stop is engaged.
func (g *Governor) IsEmergencyStopped() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.params.EmergencyStop
}

// CheckGasPrice fails when current exceeds the configured maximum.
func (g *Governor) CheckGasPrice(current *big.Int) error {
	if current == nil {
		return ErrUnknownGasPrice
	}

	g.mu.RLock()
	limit := g.params.MaxGasPrice
	g.mu.RUnlock()

	if current.Cmp(limit) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrGasPriceTooHigh, current, limit)
	}
	return nil
}

// IsExecutor reports whether identity is on the allow-list.
func (g *Governor) IsExecutor(identity common.Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.executors[identity]
	return ok
}

// IsAuthorized reports whether identity may execute a strategy owned by creator.
func (g *Governor) IsAuthorized(identity, creator common.Address) bool {
	if identity == (common.Address{}) {
		return false
	}
	if identity == creator {
		return true
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if identity == g.owner {
		return true
	}
	_, ok := g.executors[identity]
	return ok
}

// Executors returns the allow-list in address order.
func (g *Governor) Executors() []common.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]common.Address, 0, len(g.executors))
	for a := range g.executors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// SetEmergencyStop engages or clears the emergency stop.
func (g *Governor) SetEmergencyStop(caller common.Address, stopped bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if caller != g.owner {
		return ErrNotOwner
	}
	g.params.EmergencyStop = stopped
	observability.SetEmergencyStop(stopped)
	g.logger.Warn("emergency stop changed", zap.Bool("stopped", stopped), zap.String("caller", caller.Hex()))
	return nil
}

// SetExecutor adds or removes identity from the allow-list.
func (g *Governor) SetExecutor(caller, identity common.Address, allowed bool) error {
	if identity == (common.Address{}) {
		return fmt.Errorf("executor: %w", ErrZeroAddress)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if caller != g.owner {
		return ErrNotOwner
	}
	if allowed {
		g.executors[identity] = struct{}{}
	} else {
		delete(g.executors, identity)
	}
	g.logger.Info("executor allow-list changed",
		zap.String("executor", identity.Hex()),
		zap.Bool("allowed", allowed),
	)
	return nil
}

// UpdateParams replaces the thresholds. The emergency stop flag is kept;
// it only changes through SetEmergencyStop.
func (g *Governor) UpdateParams(caller common.Address, params domain.SafetyParams) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if caller != g.owner {
		return ErrNotOwner
	}
	stopped := g.params.EmergencyStop
	g.params = params.Clone()
	g.params.EmergencyStop = stopped

	g.logger.Info("safety params updated",
		zap.Uint32("max_slippage_bps", params.MaxSlippageBps),
		zap.Uint32("min_profit_bps", params.MinProfitBps),
		zap.String("max_gas_price", params.MaxGasPrice.String()),
		zap.Int64("deadline_buffer", params.DeadlineBuffer),
		zap.Int64("max_execution_time", params.MaxExecutionTime),
	)
	return nil
}

// TransferOwnership hands the owner role to next.
func (g *Governor) TransferOwnership(caller, next common.Address) error {
	if next == (common.Address{}) {
		return fmt.Errorf("new owner: %w", ErrZeroAddress)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if caller != g.owner {
		return ErrNotOwner
	}
	g.owner = next
	g.logger.Warn("ownership transferred", zap.String("from", caller.Hex()), zap.String("to", next.Hex()))
	return nil
}
