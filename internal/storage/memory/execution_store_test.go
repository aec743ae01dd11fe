package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/storage"
)

func newResult(id string, strategyID uint64, executor common.Address, ts int64, nonce uint64) *domain.ExecutionResult {
	return &domain.ExecutionResult{
		ID:         id,
		StrategyID: strategyID,
		Executor:   executor,
		Nonce:      nonce,
		Status:     domain.ExecutionSuccess,
		ProfitUSD:  decimal.RequireFromString("1.5"),
		AssetProfits: []domain.AssetProfit{
			{Asset: common.HexToAddress("0x01"), Amount: big.NewInt(10)},
		},
		Timestamp: ts,
	}
}

func TestExecutionStore_InsertAndGet(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	if err := store.Insert(ctx, newResult("r1", 1, creatorA, 100, 1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.ProfitUSD.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("ProfitUSD = %s, want 1.5", got.ProfitUSD)
	}

	got.AssetProfits[0].Amount.SetInt64(0)
	again, _ := store.GetByID(ctx, "r1")
	if again.AssetProfits[0].Amount.Int64() != 10 {
		t.Errorf("store was mutated through returned copy")
	}
}

func TestExecutionStore_AppendOnly(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	_ = store.Insert(ctx, newResult("r1", 1, creatorA, 100, 1))
	err := store.Insert(ctx, newResult("r1", 1, creatorA, 200, 2))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Insert(ctx, &domain.ExecutionResult{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestExecutionStore_Ordering(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	_ = store.Insert(ctx, newResult("c", 1, creatorA, 200, 3))
	_ = store.Insert(ctx, newResult("b", 1, creatorB, 100, 2))
	_ = store.Insert(ctx, newResult("a", 1, creatorA, 100, 1))
	_ = store.Insert(ctx, newResult("x", 2, creatorA, 50, 4))

	got, _ := store.GetByStrategyID(ctx, 1)
	if len(got) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		t.Errorf("wrong order: %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}

	byExec, _ := store.GetByExecutor(ctx, creatorA)
	if len(byExec) != 3 || byExec[0].ID != "x" {
		t.Errorf("GetByExecutor unexpected: %d results", len(byExec))
	}
}
