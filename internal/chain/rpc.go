// Package chain talks to an EVM node over JSON-RPC and tracks the gas price.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RPCClient defines the node calls the engine needs.
type RPCClient interface {
	// GasPrice returns the node's suggested gas price in wei.
	GasPrice(ctx context.Context) (*big.Int, error)

	// BlockNumber returns the latest block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// Call executes a read-only call against the latest block.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// WSClient defines the subscription interface.
type WSClient interface {
	// SubscribeNewHeads streams new block headers.
	SubscribeNewHeads(ctx context.Context) (<-chan Head, error)

	// Close closes the connection and every subscription channel.
	Close() error
}

// Head is a new block header notification.
type Head struct {
	Number    uint64
	BaseFee   *big.Int // nil before London
	Timestamp int64
}
