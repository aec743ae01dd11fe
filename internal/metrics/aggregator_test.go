package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashloan-executor/internal/storage/memory"
)

func TestAggregator_Compute(t *testing.T) {
	ctx := context.Background()
	store := memory.NewExecutionStore()
	require.NoError(t, store.Insert(ctx, makeResult(1, 100, "1.5")))
	require.NoError(t, store.Insert(ctx, makeResult(2, 200, "0.5")))

	stats, err := NewAggregator(store).Compute(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Attempts)
	assert.Equal(t, 1.0, stats.SuccessRate)
	assert.Equal(t, "2", stats.TotalProfitUSD.String())
	assert.InDelta(t, 1.0, stats.ProfitMedian, 1e-9)
}

func TestAggregator_NoExecutions(t *testing.T) {
	agg := NewAggregator(memory.NewExecutionStore())

	_, err := agg.Compute(context.Background(), 42)
	require.ErrorIs(t, err, ErrNoExecutions)

	many, err := agg.ComputeMany(context.Background(), []uint64{1, 2})
	require.NoError(t, err)
	assert.Empty(t, many)
}
