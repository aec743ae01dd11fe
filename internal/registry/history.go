package registry

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"flashloan-executor/internal/domain"
)

// RecordExecution appends res to the history and updates the strategy's
// bookkeeping. The execution count always grows; profit is added only for
// successful attempts. Only the orchestrator calls this.
func (r *Registry) RecordExecution(ctx context.Context, res *domain.ExecutionResult) error {
	const op = "record execution"
	if res == nil || res.ID == "" {
		return domain.NewError(domain.KindInternal, op, fmt.Errorf("empty result"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.load(ctx, op, res.StrategyID)
	if err != nil {
		return err
	}

	if err := r.executions.Insert(ctx, res); err != nil {
		return domain.NewError(domain.KindInternal, op, err)
	}

	s.ExecutionCount++
	if res.Succeeded() {
		s.TotalProfitUSD = s.TotalProfitUSD.Add(res.ProfitUSD)
	}
	if err := r.strategies.Update(ctx, s); err != nil {
		return domain.NewError(domain.KindInternal, op, err)
	}

	if r.mirror != nil {
		if err := r.mirror.Insert(ctx, res); err != nil {
			r.logger.Warn("execution mirror write failed",
				zap.String("execution_id", res.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// ExecutionHistory returns a strategy's results in (timestamp, nonce) order.
func (r *Registry) ExecutionHistory(ctx context.Context, strategyID uint64) ([]*domain.ExecutionResult, error) {
	if _, err := r.Get(ctx, strategyID); err != nil {
		return nil, err
	}
	results, err := r.executions.GetByStrategyID(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("execution history: %w", err)
	}
	return results, nil
}

// ExecutionsByExecutor returns every result submitted by executor.
func (r *Registry) ExecutionsByExecutor(ctx context.Context, executor common.Address) ([]*domain.ExecutionResult, error) {
	results, err := r.executions.GetByExecutor(ctx, executor)
	if err != nil {
		return nil, fmt.Errorf("executions by executor: %w", err)
	}
	return results, nil
}

// Execution returns one result by id.
func (r *Registry) Execution(ctx context.Context, id string) (*domain.ExecutionResult, error) {
	return r.executions.GetByID(ctx, id)
}
