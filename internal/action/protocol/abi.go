// Package protocol provides in-process call targets that speak the ABI of
// common on-chain protocols. All state lives in a token.Book so that the
// action executor's snapshots cover it.
package protocol

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"flashloan-executor/internal/token"
)

// Call errors.
var (
	ErrUnknownMethod = errors.New("unknown method")
	ErrBadArguments  = errors.New("bad arguments")
	ErrNotPermitted  = errors.New("not permitted")
)

// ABI fragments understood by the targets.
const (
	ERC20ABI = `[
		{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`

	WrapperABI = `[
		{"name":"deposit","type":"function","stateMutability":"payable","inputs":[],"outputs":[]},
		{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"wad","type":"uint256"}],"outputs":[]}
	]`

	LendingPoolABI = `[
		{"name":"supply","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"onBehalfOf","type":"address"},{"name":"referralCode","type":"uint16"}],"outputs":[]},
		{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"borrow","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"interestRateMode","type":"uint256"},{"name":"referralCode","type":"uint16"},{"name":"onBehalfOf","type":"address"}],"outputs":[]},
		{"name":"repay","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"interestRateMode","type":"uint256"},{"name":"onBehalfOf","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`

	StakingPoolABI = `[
		{"name":"stake","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"getReward","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
	]`
)

var (
	erc20ABI   = mustParse(ERC20ABI)
	wrapperABI = mustParse(WrapperABI)
	lendingABI = mustParse(LendingPoolABI)
	stakingABI = mustParse(StakingPoolABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// PackERC20 builds calldata for an ERC20 method.
func PackERC20(method string, args ...interface{}) ([]byte, error) {
	return erc20ABI.Pack(method, args...)
}

// PackWrapper builds calldata for a wrapped-native method.
func PackWrapper(method string, args ...interface{}) ([]byte, error) {
	return wrapperABI.Pack(method, args...)
}

// PackLending builds calldata for a lending pool method.
func PackLending(method string, args ...interface{}) ([]byte, error) {
	return lendingABI.Pack(method, args...)
}

// PackStaking builds calldata for a staking pool method.
func PackStaking(method string, args ...interface{}) ([]byte, error) {
	return stakingABI.Pack(method, args...)
}

// decodeCall splits calldata into its method and unpacked arguments.
func decodeCall(a abi.ABI, data []byte) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("%w: calldata too short", ErrUnknownMethod)
	}
	m, err := a.MethodById(data[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %x", ErrUnknownMethod, data[:4])
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrBadArguments, m.Name, err)
	}
	return m, args, nil
}

func argAddress(args []interface{}, i int) (common.Address, error) {
	if i >= len(args) {
		return common.Address{}, fmt.Errorf("%w: missing argument %d", ErrBadArguments, i)
	}
	v, ok := args[i].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: argument %d is not an address", ErrBadArguments, i)
	}
	return v, nil
}

func argUint(args []interface{}, i int) (*big.Int, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("%w: missing argument %d", ErrBadArguments, i)
	}
	v, ok := args[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: argument %d is not an integer", ErrBadArguments, i)
	}
	return v, nil
}

// isMax reports whether v is the uint256 "everything" sentinel.
func isMax(v *big.Int) bool {
	return v.Cmp(math.MaxBig256) == 0
}

// syntheticAsset derives a deterministic asset address for protocol-owned
// bookkeeping tokens such as deposit receipts and debt.
func syntheticAsset(owner common.Address, tag string, asset common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(owner.Bytes(), []byte(tag), asset.Bytes()))
}

// atomically runs fn so that a failed call leaves no partial state.
func atomically(book *token.Book, fn func() ([]byte, error)) ([]byte, error) {
	snap := book.Snapshot()
	out, err := fn()
	if err != nil {
		_ = book.RevertToSnapshot(snap)
		return nil, err
	}
	_ = book.Commit(snap)
	return out, nil
}
