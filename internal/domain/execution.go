package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ExecutionStatus is the terminal status of an execution attempt.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "SUCCESS"
	ExecutionFailed  ExecutionStatus = "FAILED"
)

// ExecutionPhase is a state of the flash loan state machine.
type ExecutionPhase string

const (
	PhaseIdle           ExecutionPhase = "IDLE"
	PhaseLoanRequested  ExecutionPhase = "LOAN_REQUESTED"
	PhaseLoanReceived   ExecutionPhase = "LOAN_RECEIVED"
	PhaseActionsRunning ExecutionPhase = "ACTIONS_RUNNING"
	PhaseProfitComputed ExecutionPhase = "PROFIT_COMPUTED"
	PhaseRepaid         ExecutionPhase = "REPAID"
	PhaseRecorded       ExecutionPhase = "RECORDED"
)

// AssetProfit is the realized profit of one borrowed asset in raw units.
type AssetProfit struct {
	Asset  common.Address
	Amount *big.Int
}

// ExecutionResult is the append-only record of one completed attempt.
type ExecutionResult struct {
	ID         string // provenance hash (hex)
	StrategyID uint64
	Executor   common.Address
	Nonce      uint64 // attempt sequence number

	Status      ExecutionStatus
	FailureKind ErrorKind // empty on success
	Error       string

	GasUsed      uint64
	ProfitUSD    decimal.Decimal
	AssetProfits []AssetProfit

	Timestamp int64 // unix seconds
}

// Succeeded reports whether the attempt completed successfully.
func (r *ExecutionResult) Succeeded() bool {
	return r.Status == ExecutionSuccess
}

// Clone returns a deep copy of the result.
func (r *ExecutionResult) Clone() *ExecutionResult {
	if r == nil {
		return nil
	}
	c := *r
	c.AssetProfits = make([]AssetProfit, len(r.AssetProfits))
	for i, p := range r.AssetProfits {
		c.AssetProfits[i] = AssetProfit{Asset: p.Asset}
		if p.Amount != nil {
			c.AssetProfits[i].Amount = new(big.Int).Set(p.Amount)
		}
	}
	return &c
}
