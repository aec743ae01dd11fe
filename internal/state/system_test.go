package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/ledger"
	"flashloan-executor/internal/safety"
	"flashloan-executor/internal/storage/memory"
	"flashloan-executor/internal/token"
	"flashloan-executor/internal/venue/sim"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	self   = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	stray  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	usdc   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	router = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func newSystem(t *testing.T) *System {
	t.Helper()
	gov, err := safety.NewGovernor(owner, domain.DefaultSafetyParams(), nil)
	require.NoError(t, err)
	sys, err := New(Config{
		Self:     self,
		Book:     token.NewBook(),
		Governor: gov,
		Ledger:   ledger.New(memory.NewProfitStore(), nil),
	})
	require.NoError(t, err)
	return sys
}

func TestNew_RequiresSelf(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, safety.ErrZeroAddress)
}

func TestRegisterVenue_OwnerOnly(t *testing.T) {
	sys := newSystem(t)
	r := sim.NewFixedRateRouter(router, sys.Book, nil)

	assert.ErrorIs(t, sys.RegisterVenue(stray, "fixed", r), safety.ErrNotOwner)
	require.NoError(t, sys.RegisterVenue(owner, "fixed", r))

	h, err := sys.Venues.Resolve("fixed")
	require.NoError(t, err)
	assert.Equal(t, router, h.Router.Address())
	assert.Error(t, sys.RegisterVenue(owner, "fixed", r), "duplicate names are rejected")
}

func TestRescueTokens(t *testing.T) {
	sys := newSystem(t)
	require.NoError(t, sys.Book.Mint(usdc, self, big.NewInt(1234)))

	_, err := sys.RescueTokens(owner, usdc, owner)
	assert.ErrorIs(t, err, safety.ErrEmergencyRequired)

	require.NoError(t, sys.Governor.SetEmergencyStop(owner, true))
	_, err = sys.RescueTokens(stray, usdc, stray)
	assert.ErrorIs(t, err, safety.ErrNotOwner)

	amount, err := sys.RescueTokens(owner, usdc, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), amount.Int64())
	assert.Equal(t, int64(0), sys.Book.BalanceOf(usdc, self).Int64())
	assert.Equal(t, int64(1234), sys.Book.BalanceOf(usdc, owner).Int64())

	_, err = sys.RescueTokens(owner, usdc, owner)
	assert.ErrorIs(t, err, ErrNothingToRescue)
}
