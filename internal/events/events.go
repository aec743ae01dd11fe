// Package events emits execution outcomes to downstream consumers.
package events

import (
	"context"
	"sync"

	"flashloan-executor/internal/domain"
)

// AssetProfit is one per-asset profit line of an Outcome.
type AssetProfit struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"` // raw units, decimal string
}

// Outcome is the published form of an ExecutionResult.
type Outcome struct {
	ExecutionID  string        `json:"execution_id"`
	StrategyID   uint64        `json:"strategy_id"`
	Executor     string        `json:"executor"`
	Nonce        uint64        `json:"nonce"`
	Status       string        `json:"status"`
	FailureKind  string        `json:"failure_kind,omitempty"`
	Error        string        `json:"error,omitempty"`
	GasUsed      uint64        `json:"gas_used"`
	ProfitUSD    string        `json:"profit_usd"`
	AssetProfits []AssetProfit `json:"asset_profits,omitempty"`
	Timestamp    int64         `json:"timestamp"`
}

// FromResult converts r into an Outcome.
func FromResult(r *domain.ExecutionResult) Outcome {
	o := Outcome{
		ExecutionID: r.ID,
		StrategyID:  r.StrategyID,
		Executor:    r.Executor.Hex(),
		Nonce:       r.Nonce,
		Status:      string(r.Status),
		FailureKind: string(r.FailureKind),
		Error:       r.Error,
		GasUsed:     r.GasUsed,
		ProfitUSD:   r.ProfitUSD.String(),
		Timestamp:   r.Timestamp,
	}
	for _, p := range r.AssetProfits {
		amount := "0"
		if p.Amount != nil {
			amount = p.Amount.String()
		}
		o.AssetProfits = append(o.AssetProfits, AssetProfit{Asset: p.Asset.Hex(), Amount: amount})
	}
	return o
}

// Publisher delivers outcomes. Publishing is best effort: callers log
// failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, o Outcome) error
}

// Nop discards every outcome.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Outcome) error { return nil }

// Recorder keeps outcomes in memory.
type Recorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, o Outcome) error {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
	return nil
}

// Outcomes returns a copy of everything published so far.
func (r *Recorder) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}
