// Package oracle provides asset prices used for profit valuation. Prices
// are USD with PriceDecimals decimals.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/chain"
)

// PriceDecimals is the fixed-point scale of every price.
const PriceDecimals = 8

// ErrNoPrice is returned when an asset has no positive price.
var ErrNoPrice = errors.New("no price for asset")

// PriceSource returns the USD price of one whole unit of asset.
type PriceSource interface {
	AssetPrice(ctx context.Context, asset common.Address) (*big.Int, error)
}

// Static serves configured prices.
type Static struct {
	mu     sync.RWMutex
	prices map[common.Address]*big.Int
}

// NewStatic creates a static source.
func NewStatic(prices map[common.Address]*big.Int) *Static {
	s := &Static{prices: make(map[common.Address]*big.Int, len(prices))}
	for a, p := range prices {
		s.prices[a] = new(big.Int).Set(p)
	}
	return s
}

var _ PriceSource = (*Static)(nil)

// Set changes the price of asset.
func (s *Static) Set(asset common.Address, price *big.Int) {
	s.mu.Lock()
	s.prices[asset] = new(big.Int).Set(price)
	s.mu.Unlock()
}

// AssetPrice implements PriceSource.
func (s *Static) AssetPrice(_ context.Context, asset common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[asset]
	if !ok || p.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, asset.Hex())
	}
	return new(big.Int).Set(p), nil
}

// PriceOracleABI is the Aave-style oracle read interface.
const PriceOracleABI = `[
	{"name":"getAssetPrice","type":"function","stateMutability":"view","inputs":[{"name":"asset","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var oracleABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(PriceOracleABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// RPCOracle reads prices from an on-chain oracle contract via eth_call.
type RPCOracle struct {
	rpc     chain.RPCClient
	address common.Address
}

// NewRPCOracle creates an oracle reading from the contract at address.
func NewRPCOracle(rpc chain.RPCClient, address common.Address) *RPCOracle {
	return &RPCOracle{rpc: rpc, address: address}
}

var _ PriceSource = (*RPCOracle)(nil)

// AssetPrice implements PriceSource.
func (o *RPCOracle) AssetPrice(ctx context.Context, asset common.Address) (*big.Int, error) {
	data, err := oracleABI.Pack("getAssetPrice", asset)
	if err != nil {
		return nil, fmt.Errorf("pack getAssetPrice: %w", err)
	}
	out, err := o.rpc.Call(ctx, o.address, data)
	if err != nil {
		return nil, fmt.Errorf("getAssetPrice %s: %w", asset.Hex(), err)
	}
	values, err := oracleABI.Unpack("getAssetPrice", out)
	if err != nil {
		return nil, fmt.Errorf("unpack getAssetPrice: %w", err)
	}
	price, ok := values[0].(*big.Int)
	if !ok || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, asset.Hex())
	}
	return price, nil
}

// ServeStatic answers getAssetPrice calls from s. It lets an in-process
// chain stub host an oracle contract.
func ServeStatic(s *Static) func(data []byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		if len(data) < 4 {
			return nil, errors.New("calldata too short")
		}
		m, err := oracleABI.MethodById(data[:4])
		if err != nil {
			return nil, err
		}
		args, err := m.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		asset, _ := args[0].(common.Address)
		price, err := s.AssetPrice(context.Background(), asset)
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(price)
	}
}
