package stub

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/chain"
)

// ErrNoContract is returned when a call targets an address with no handler.
var ErrNoContract = errors.New("no contract at address")

// CallHandler answers eth_call for one address.
type CallHandler func(data []byte) ([]byte, error)

// RPCClient implements chain.RPCClient for testing and in-process runs.
type RPCClient struct {
	mu       sync.RWMutex
	gasPrice *big.Int
	block    uint64
	handlers map[common.Address]CallHandler
}

// NewRPCClient creates a stub returning gasPrice.
func NewRPCClient(gasPrice *big.Int) *RPCClient {
	return &RPCClient{
		gasPrice: new(big.Int).Set(gasPrice),
		handlers: make(map[common.Address]CallHandler),
	}
}

var _ chain.RPCClient = (*RPCClient)(nil)

// SetGasPrice changes the returned gas price.
func (c *RPCClient) SetGasPrice(p *big.Int) {
	c.mu.Lock()
	c.gasPrice = new(big.Int).Set(p)
	c.mu.Unlock()
}

// SetBlock changes the returned block number.
func (c *RPCClient) SetBlock(n uint64) {
	c.mu.Lock()
	c.block = n
	c.mu.Unlock()
}

// Handle registers h for calls to addr.
func (c *RPCClient) Handle(addr common.Address, h CallHandler) {
	c.mu.Lock()
	c.handlers[addr] = h
	c.mu.Unlock()
}

// GasPrice returns the configured gas price.
func (c *RPCClient) GasPrice(_ context.Context) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return new(big.Int).Set(c.gasPrice), nil
}

// BlockNumber returns the configured block number.
func (c *RPCClient) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.block, nil
}

// Call dispatches to the handler registered for to.
func (c *RPCClient) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	c.mu.RLock()
	h, ok := c.handlers[to]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrNoContract
	}
	return h(data)
}
