package orchestrator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var loanParamsArgs = func() abi.Arguments {
	u256, _ := abi.NewType("uint256", "", nil)
	addr, _ := abi.NewType("address", "", nil)
	bytesT, _ := abi.NewType("bytes", "", nil)
	return abi.Arguments{{Type: u256}, {Type: addr}, {Type: bytesT}}
}()

// LoanParams travel through the loan provider untouched and identify the
// attempt on callback.
type LoanParams struct {
	StrategyID uint64
	Executor   common.Address
	Payload    []byte
}

// EncodeParams ABI-encodes p as (uint256, address, bytes).
func EncodeParams(p LoanParams) ([]byte, error) {
	payload := p.Payload
	if payload == nil {
		payload = []byte{}
	}
	return loanParamsArgs.Pack(new(big.Int).SetUint64(p.StrategyID), p.Executor, payload)
}

// DecodeParams reverses EncodeParams.
func DecodeParams(data []byte) (LoanParams, error) {
	values, err := loanParamsArgs.Unpack(data)
	if err != nil {
		return LoanParams{}, fmt.Errorf("decode loan params: %w", err)
	}
	if len(values) != 3 {
		return LoanParams{}, fmt.Errorf("decode loan params: got %d values", len(values))
	}
	id, ok1 := values[0].(*big.Int)
	executor, ok2 := values[1].(common.Address)
	payload, ok3 := values[2].([]byte)
	if !ok1 || !ok2 || !ok3 || !id.IsUint64() {
		return LoanParams{}, fmt.Errorf("decode loan params: unexpected types")
	}
	return LoanParams{StrategyID: id.Uint64(), Executor: executor, Payload: payload}, nil
}
