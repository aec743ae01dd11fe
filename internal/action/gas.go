package action

import "flashloan-executor/internal/domain"

// Gas estimates. Executions are not metered, so gas used is the sum of
// per-step estimates.
const (
	TxBaseGas         = 21_000
	FlashLoanGas      = 120_000
	FlashLoanAssetGas = 40_000
	defaultActionGas  = 100_000
)

// GasModel estimates gas per action kind.
type GasModel map[domain.ActionKind]uint64

// DefaultGasModel returns estimates in line with common mainnet costs.
func DefaultGasModel() GasModel {
	return GasModel{
		domain.ActionSwap:    150_000,
		domain.ActionLend:    200_000,
		domain.ActionBorrow:  250_000,
		domain.ActionStake:   120_000,
		domain.ActionUnstake: 120_000,
		domain.ActionHarvest: 100_000,
		domain.ActionWrap:    45_000,
		domain.ActionUnwrap:  40_000,
		domain.ActionCustom:  defaultActionGas,
	}
}

// Action returns the estimate for one action kind.
func (m GasModel) Action(kind domain.ActionKind) uint64 {
	if g, ok := m[kind]; ok {
		return g
	}
	return defaultActionGas
}

// Overhead returns the fixed cost of a flash loan over n assets.
func (m GasModel) Overhead(assets int) uint64 {
	return TxBaseGas + FlashLoanGas + uint64(assets)*FlashLoanAssetGas
}

// EstimateStrategy returns the estimated gas of running actions under a
// flash loan of n assets.
func (m GasModel) EstimateStrategy(actions []domain.Action, assets int) uint64 {
	total := m.Overhead(assets)
	for _, a := range actions {
		total += m.Action(a.Kind)
	}
	return total
}
