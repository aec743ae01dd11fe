package action

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/domain"
)

// ErrDecodePayload is returned when an action payload cannot be decoded.
var ErrDecodePayload = errors.New("decode payload")

// swapPayloadArgs is the ABI layout of a swap action payload:
// (string venue, address tokenIn, address tokenOut, uint256 amountIn,
// uint256 minAmountOut, address[] path, uint24 fee, address recipient,
// uint256 deadline, bytes extra)
var swapPayloadArgs = mustArguments(
	"string", "address", "address", "uint256", "uint256",
	"address[]", "uint24", "address", "uint256", "bytes",
)

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("abi type %s: %v", t, err))
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

// EncodeSwapPayload ABI-encodes swap parameters into an action payload.
// A zero AmountIn means "the whole balance of TokenIn at execution time".
func EncodeSwapPayload(p domain.SwapParams) ([]byte, error) {
	if p.Deadline < 0 {
		return nil, fmt.Errorf("negative deadline %d", p.Deadline)
	}
	path := p.Path
	if path == nil {
		path = []common.Address{}
	}
	extra := p.Extra
	if extra == nil {
		extra = []byte{}
	}
	return swapPayloadArgs.Pack(
		p.Venue,
		p.TokenIn,
		p.TokenOut,
		orZero(p.AmountIn),
		orZero(p.MinAmountOut),
		path,
		new(big.Int).SetUint64(uint64(p.Fee)),
		p.Recipient,
		big.NewInt(p.Deadline),
		extra,
	)
}

// DecodeSwapPayload reverses EncodeSwapPayload.
func DecodeSwapPayload(data []byte) (domain.SwapParams, error) {
	values, err := swapPayloadArgs.Unpack(data)
	if err != nil {
		return domain.SwapParams{}, fmt.Errorf("%w: %v", ErrDecodePayload, err)
	}
	if len(values) != len(swapPayloadArgs) {
		return domain.SwapParams{}, fmt.Errorf("%w: %d fields", ErrDecodePayload, len(values))
	}

	var (
		p  domain.SwapParams
		ok = true
		v  bool
	)
	p.Venue, v = values[0].(string)
	ok = ok && v
	p.TokenIn, v = values[1].(common.Address)
	ok = ok && v
	p.TokenOut, v = values[2].(common.Address)
	ok = ok && v
	p.AmountIn, v = values[3].(*big.Int)
	ok = ok && v
	p.MinAmountOut, v = values[4].(*big.Int)
	ok = ok && v
	p.Path, v = values[5].([]common.Address)
	ok = ok && v
	fee, v := values[6].(*big.Int)
	ok = ok && v
	p.Recipient, v = values[7].(common.Address)
	ok = ok && v
	deadline, v := values[8].(*big.Int)
	ok = ok && v
	p.Extra, v = values[9].([]byte)
	ok = ok && v
	if !ok {
		return domain.SwapParams{}, fmt.Errorf("%w: unexpected field types", ErrDecodePayload)
	}

	if !fee.IsUint64() || !deadline.IsInt64() {
		return domain.SwapParams{}, fmt.Errorf("%w: fee or deadline out of range", ErrDecodePayload)
	}
	p.Fee = uint32(fee.Uint64())
	p.Deadline = deadline.Int64()
	if len(p.Path) == 0 {
		p.Path = nil
	}
	if len(p.Extra) == 0 {
		p.Extra = nil
	}
	return p, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
