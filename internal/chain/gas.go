package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"flashloan-executor/internal/observability"
)

// ErrNoGasPrice is returned before the first gas price observation.
var ErrNoGasPrice = errors.New("no gas price observed yet")

// DefaultPriorityFee is added to a head's base fee when deriving a price.
var DefaultPriorityFee = big.NewInt(1_000_000_000)

// GasPriceSource provides the current gas price in wei.
type GasPriceSource interface {
	CurrentGasPrice(ctx context.Context) (*big.Int, error)
}

// GasTracker caches the latest gas price. It is fed by polling the node
// (Refresh) and by new heads (Observe).
type GasTracker struct {
	rpc         RPCClient
	priorityFee *big.Int
	now         func() time.Time
	logger      *zap.Logger

	mu      sync.RWMutex
	price   *big.Int
	head    uint64
	updated time.Time
}

// NewGasTracker creates a tracker polling rpc. rpc may be nil when only
// heads feed the tracker.
func NewGasTracker(rpc RPCClient, logger *zap.Logger) *GasTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GasTracker{
		rpc:         rpc,
		priorityFee: new(big.Int).Set(DefaultPriorityFee),
		now:         time.Now,
		logger:      logger,
	}
}

var _ GasPriceSource = (*GasTracker)(nil)

// CurrentGasPrice returns the latest observed price.
func (t *GasTracker) CurrentGasPrice(_ context.Context) (*big.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.price == nil {
		return nil, ErrNoGasPrice
	}
	return new(big.Int).Set(t.price), nil
}

// Snapshot returns the latest price, head and update time.
func (t *GasTracker) Snapshot() (price *big.Int, head uint64, updated time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.price != nil {
		price = new(big.Int).Set(t.price)
	}
	return price, t.head, t.updated
}

// Set overrides the current price.
func (t *GasTracker) Set(price *big.Int) {
	t.mu.Lock()
	t.price = new(big.Int).Set(price)
	t.updated = t.now()
	t.mu.Unlock()

	wei, _ := new(big.Float).SetInt(price).Float64()
	observability.UpdateGasPrice(wei)
}

// Refresh polls the node for the gas price and block number.
func (t *GasTracker) Refresh(ctx context.Context) error {
	if t.rpc == nil {
		return errors.New("gas tracker has no rpc client")
	}
	price, err := t.rpc.GasPrice(ctx)
	if err != nil {
		return err
	}
	t.Set(price)

	block, err := t.rpc.BlockNumber(ctx)
	if err != nil {
		t.logger.Debug("block number unavailable", zap.Error(err))
		return nil
	}
	t.setHead(block)
	return nil
}

// Observe updates the tracker from a new head.
func (t *GasTracker) Observe(h Head) {
	t.setHead(h.Number)
	if h.BaseFee != nil {
		t.Set(new(big.Int).Add(h.BaseFee, t.priorityFee))
	}
}

// Follow feeds heads into the tracker until ctx is done or heads closes.
func (t *GasTracker) Follow(ctx context.Context, heads <-chan Head) {
	for {
		select {
		case <-ctx.Done():
			return
		case h, ok := <-heads:
			if !ok {
				return
			}
			t.Observe(h)
		}
	}
}

func (t *GasTracker) setHead(n uint64) {
	t.mu.Lock()
	if n > t.head {
		t.head = n
	}
	t.mu.Unlock()
	observability.UpdateChainHead(n)
}
