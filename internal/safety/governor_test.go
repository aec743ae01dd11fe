package safety

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashloan-executor/internal/domain"
)

var (
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	creator  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	executor = common.HexToAddress("0x0000000000000000000000000000000000000003")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000000004")
)

func newGovernor(t *testing.T) *Governor {
	t.Helper()
	g, err := NewGovernor(owner, domain.DefaultSafetyParams(), nil)
	require.NoError(t, err)
	return g
}

func TestNewGovernor_Validation(t *testing.T) {
	_, err := NewGovernor(common.Address{}, domain.DefaultSafetyParams(), nil)
	assert.ErrorIs(t, err, ErrZeroAddress)

	p := domain.DefaultSafetyParams()
	p.MinProfitBps = 20000
	_, err = NewGovernor(owner, p, nil)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestGovernor_IsAuthorized(t *testing.T) {
	g := newGovernor(t)

	assert.True(t, g.IsAuthorized(creator, creator))
	assert.True(t, g.IsAuthorized(owner, creator))
	assert.False(t, g.IsAuthorized(executor, creator))
	assert.False(t, g.IsAuthorized(common.Address{}, common.Address{}))

	require.NoError(t, g.SetExecutor(owner, executor, true))
	assert.True(t, g.IsAuthorized(executor, creator))
	assert.Equal(t, []common.Address{executor}, g.Executors())

	require.NoError(t, g.SetExecutor(owner, executor, false))
	assert.False(t, g.IsAuthorized(executor, creator))
}

func TestGovernor_OwnerOnlyMutations(t *testing.T) {
	g := newGovernor(t)

	assert.ErrorIs(t, g.SetEmergencyStop(stranger, true), ErrNotOwner)
	assert.ErrorIs(t, g.SetExecutor(stranger, executor, true), ErrNotOwner)
	assert.ErrorIs(t, g.UpdateParams(stranger, domain.DefaultSafetyParams()), ErrNotOwner)
	assert.ErrorIs(t, g.TransferOwnership(stranger, stranger), ErrNotOwner)

	assert.False(t, g.IsEmergencyStopped())
	assert.False(t, g.IsExecutor(executor))
}

func TestGovernor_EmergencyStopImmediate(t *testing.T) {
	g := newGovernor(t)

	require.NoError(t, g.SetEmergencyStop(owner, true))
	assert.True(t, g.IsEmergencyStopped())
	assert.True(t, g.Params().EmergencyStop)

	// threshold updates keep the stop flag
	require.NoError(t, g.UpdateParams(owner, domain.DefaultSafetyParams()))
	assert.True(t, g.IsEmergencyStopped())

	require.NoError(t, g.SetEmergencyStop(owner, false))
	assert.False(t, g.IsEmergencyStopped())
}

func TestGovernor_CheckGasPrice(t *testing.T) {
	g := newGovernor(t)
	limit := domain.DefaultMaxGasPrice

	assert.NoError(t, g.CheckGasPrice(limit))
	assert.ErrorIs(t, g.CheckGasPrice(new(big.Int).Add(limit, big.NewInt(1))), ErrGasPriceTooHigh)
	assert.ErrorIs(t, g.CheckGasPrice(nil), ErrUnknownGasPrice)

	p := domain.DefaultSafetyParams()
	p.MaxGasPrice = big.NewInt(1)
	require.NoError(t, g.UpdateParams(owner, p))
	assert.ErrorIs(t, g.CheckGasPrice(big.NewInt(2)), ErrGasPriceTooHigh)
}

func TestGovernor_ParamsReturnsCopy(t *testing.T) {
	g := newGovernor(t)

	p := g.Params()
	p.MaxGasPrice.SetInt64(1)

	assert.Equal(t, 0, g.Params().MaxGasPrice.Cmp(domain.DefaultMaxGasPrice))
}

func TestGovernor_TransferOwnership(t *testing.T) {
	g := newGovernor(t)

	require.NoError(t, g.TransferOwnership(owner, creator))
	assert.Equal(t, creator, g.Owner())
	assert.ErrorIs(t, g.SetEmergencyStop(owner, true), ErrNotOwner)
	assert.NoError(t, g.SetEmergencyStop(creator, true))
}
