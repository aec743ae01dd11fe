package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/storage"
)

var (
	creatorA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	creatorB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func newStrategy(id uint64, creator common.Address) *domain.Strategy {
	return &domain.Strategy{
		ID:       id,
		Creator:  creator,
		Name:     "arb",
		Active:   true,
		Deadline: 2000,
		Actions:  []domain.Action{{Kind: domain.ActionSwap, Critical: true}},
	}
}

func TestStrategyStore_NextIDMonotonic(t *testing.T) {
	store := NewStrategyStore()
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		got, err := store.NextID(ctx)
		if err != nil {
			t.Fatalf("NextID failed: %v", err)
		}
		if got != want {
			t.Errorf("NextID = %d, want %d", got, want)
		}
	}

	peek, _ := store.PeekNextID(ctx)
	if peek != 4 {
		t.Errorf("PeekNextID = %d, want 4", peek)
	}
}

func TestStrategyStore_InsertAndGet(t *testing.T) {
	store := NewStrategyStore()
	ctx := context.Background()

	if err := store.Insert(ctx, newStrategy(1, creatorA)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, 1)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Creator != creatorA || len(got.Actions) != 1 {
		t.Errorf("unexpected strategy: %+v", got)
	}

	// mutation of the returned copy must not leak into the store
	got.Actions = nil
	again, _ := store.GetByID(ctx, 1)
	if len(again.Actions) != 1 {
		t.Errorf("store was mutated through returned copy")
	}

	if err := store.Insert(ctx, newStrategy(1, creatorA)); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetByID(ctx, 99); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStrategyStore_Update(t *testing.T) {
	store := NewStrategyStore()
	ctx := context.Background()

	if err := store.Update(ctx, newStrategy(1, creatorA)); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	s := newStrategy(1, creatorA)
	_ = store.Insert(ctx, s)
	s.Active = false
	if err := store.Update(ctx, s); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := store.GetByID(ctx, 1)
	if got.Active {
		t.Errorf("Active not updated")
	}
}

func TestStrategyStore_ListByCreator(t *testing.T) {
	store := NewStrategyStore()
	ctx := context.Background()

	_ = store.Insert(ctx, newStrategy(3, creatorA))
	_ = store.Insert(ctx, newStrategy(1, creatorA))
	_ = store.Insert(ctx, newStrategy(2, creatorB))
	_ = store.Insert(ctx, newStrategy(4, creatorA))

	ids, err := store.ListByCreator(ctx, creatorA, 2)
	if err != nil {
		t.Fatalf("ListByCreator failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("ListByCreator = %v, want [1 3]", ids)
	}

	n, _ := store.CountByCreator(ctx, creatorA)
	if n != 3 {
		t.Errorf("CountByCreator = %d, want 3", n)
	}

	all, _ := store.List(ctx)
	if len(all) != 4 || all[0].ID != 1 || all[3].ID != 4 {
		t.Errorf("List not ordered by id")
	}

	next, _ := store.NextID(ctx)
	if next != 5 {
		t.Errorf("NextID after explicit inserts = %d, want 5", next)
	}
}
