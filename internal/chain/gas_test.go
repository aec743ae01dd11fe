package chain_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashloan-executor/internal/chain"
	"flashloan-executor/internal/chain/stub"
)

func TestGasTracker_Refresh(t *testing.T) {
	rpc := stub.NewRPCClient(big.NewInt(30_000_000_000))
	rpc.SetBlock(42)
	tracker := chain.NewGasTracker(rpc, nil)

	_, err := tracker.CurrentGasPrice(context.Background())
	assert.ErrorIs(t, err, chain.ErrNoGasPrice)

	require.NoError(t, tracker.Refresh(context.Background()))
	price, err := tracker.CurrentGasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(30_000_000_000), price.Int64())

	_, head, updated := tracker.Snapshot()
	assert.Equal(t, uint64(42), head)
	assert.False(t, updated.IsZero())
}

func TestGasTracker_FollowHeads(t *testing.T) {
	tracker := chain.NewGasTracker(nil, nil)
	heads := make(chan chain.Head, 2)
	heads <- chain.Head{Number: 10, BaseFee: big.NewInt(5_000_000_000)}
	heads <- chain.Head{Number: 11} // pre-London head keeps the last price
	close(heads)

	done := make(chan struct{})
	go func() {
		tracker.Follow(context.Background(), heads)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Follow did not return after channel close")
	}

	price, err := tracker.CurrentGasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6_000_000_000), price.Int64())
	_, head, _ := tracker.Snapshot()
	assert.Equal(t, uint64(11), head)
}
