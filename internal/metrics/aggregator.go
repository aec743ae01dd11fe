package metrics

import (
	"context"
	"errors"
	"fmt"

	"flashloan-executor/internal/storage"
)

// ErrNoExecutions is returned when a strategy has no recorded attempts.
var ErrNoExecutions = errors.New("no executions available for aggregation")

// Aggregator computes execution statistics from stored history.
type Aggregator struct {
	executions storage.ExecutionStore
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(executions storage.ExecutionStore) *Aggregator {
	return &Aggregator{executions: executions}
}

// Compute loads the history of strategyID and summarizes it.
// Returns ErrNoExecutions if the strategy was never executed.
func (a *Aggregator) Compute(ctx context.Context, strategyID uint64) (*ExecutionStats, error) {
	results, err := a.executions.GetByStrategyID(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("load executions of strategy %d: %w", strategyID, err)
	}
	if len(results) == 0 {
		return nil, ErrNoExecutions
	}
	return computeFromResults(strategyID, results), nil
}

// ComputeMany summarizes several strategies, skipping those never executed.
func (a *Aggregator) ComputeMany(ctx context.Context, strategyIDs []uint64) ([]*ExecutionStats, error) {
	out := make([]*ExecutionStats, 0, len(strategyIDs))
	for _, id := range strategyIDs {
		stats, err := a.Compute(ctx, id)
		if errors.Is(err, ErrNoExecutions) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, stats)
	}
	return out, nil
}
