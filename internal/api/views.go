package api

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"flashloan-executor/internal/domain"
)

// JSON views. Raw token amounts and wei values are rendered as base-10
// strings so clients never lose precision.

type actionView struct {
	Index       int    `json:"index"`
	Kind        string `json:"kind"`
	Target      string `json:"target"`
	Payload     string `json:"payload"`
	Value       string `json:"value,omitempty"`
	Critical    bool   `json:"critical"`
	Description string `json:"description"`
}

type strategyView struct {
	ID             uint64       `json:"id"`
	Creator        string       `json:"creator"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	Type           string       `json:"type"`
	Active         bool         `json:"active"`
	Live           bool         `json:"live"`
	MinProfitBps   uint32       `json:"min_profit_bps"`
	MaxGasPrice    string       `json:"max_gas_price,omitempty"`
	Deadline       int64        `json:"deadline"`
	ExecutionCount uint64       `json:"execution_count"`
	TotalProfitUSD string       `json:"total_profit_usd"`
	CreatedAt      int64        `json:"created_at"`
	UpdatedAt      int64        `json:"updated_at"`
	Actions        []actionView `json:"actions,omitempty"`
}

type assetProfitView struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type executionView struct {
	ID           string            `json:"id"`
	StrategyID   uint64            `json:"strategy_id"`
	Executor     string            `json:"executor"`
	Nonce        uint64            `json:"nonce"`
	Status       string            `json:"status"`
	FailureKind  string            `json:"failure_kind,omitempty"`
	Error        string            `json:"error,omitempty"`
	GasUsed      uint64            `json:"gas_used"`
	ProfitUSD    string            `json:"profit_usd"`
	AssetProfits []assetProfitView `json:"asset_profits,omitempty"`
	Timestamp    int64             `json:"timestamp"`
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func viewActions(actions []domain.Action) []actionView {
	out := make([]actionView, len(actions))
	for i, a := range actions {
		out[i] = actionView{
			Index:       i,
			Kind:        a.Kind.String(),
			Target:      a.Target.Hex(),
			Payload:     hexutil.Encode(a.Payload),
			Value:       bigString(a.Value),
			Critical:    a.Critical,
			Description: a.Description,
		}
	}
	return out
}

func viewStrategy(s *domain.Strategy, now int64, withActions bool) strategyView {
	v := strategyView{
		ID:             s.ID,
		Creator:        s.Creator.Hex(),
		Name:           s.Name,
		Description:    s.Description,
		Type:           string(s.Type),
		Active:         s.Active,
		Live:           s.IsLive(now),
		MinProfitBps:   s.MinProfitBps,
		MaxGasPrice:    bigString(s.MaxGasPrice),
		Deadline:       s.Deadline,
		ExecutionCount: s.ExecutionCount,
		TotalProfitUSD: s.TotalProfitUSD.String(),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if withActions {
		v.Actions = viewActions(s.Actions)
	}
	return v
}

func viewExecution(r *domain.ExecutionResult) executionView {
	v := executionView{
		ID:          r.ID,
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
		v.AssetProfits = append(v.AssetProfits, assetProfitView{Asset: p.Asset.Hex(), Amount: bigString(p.Amount)})
	}
	return v
}
