package analysis

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/token"
	"flashloan-executor/internal/venue"
	"flashloan-executor/internal/venue/sim"
)

var (
	tokenA = common.HexToAddress("0x000000000000000000000000000000000000a000")
	tokenB = common.HexToAddress("0x000000000000000000000000000000000000b000")
	tokenC = common.HexToAddress("0x000000000000000000000000000000000000c000")
)

func gwei(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000)) }

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func bps(v uint32) *uint32 { return &v }

func TestCheckProfitability_Defaults(t *testing.T) {
	// 500000 gas at 20 gwei = 0.01 ether
	res, err := CheckProfitability(ProfitabilityRequest{
		ExpectedProfit: ether(2),
		Principal:      ether(100),
	})
	require.NoError(t, err)

	wantGas, _ := new(big.Int).SetString("10000000000000000", 10)
	assert.Equal(t, 0, res.GasCost.Cmp(wantGas))
	assert.Equal(t, 0, res.NetProfit.Cmp(new(big.Int).Sub(ether(2), wantGas)))
	assert.Equal(t, DefaultMinProfitBps, res.MinProfitBps)
	assert.True(t, res.Profitable)
	assert.Equal(t, "1.99", res.ProfitPercent.StringFixed(2))
}

func TestCheckProfitability_Threshold(t *testing.T) {
	tests := []struct {
		name       string
		profit     *big.Int
		principal  *big.Int
		minBps     uint32
		profitable bool
	}{
		// net = profit - 0 gas
		{name: "exactly at threshold", profit: big.NewInt(100), principal: big.NewInt(10_000), minBps: 100, profitable: true},
		{name: "one unit below", profit: big.NewInt(99), principal: big.NewInt(10_000), minBps: 100, profitable: false},
		{name: "zero min still needs positive net", profit: big.NewInt(0), principal: big.NewInt(10_000), minBps: 0, profitable: false},
		{name: "loss", profit: big.NewInt(-5), principal: big.NewInt(10_000), minBps: 0, profitable: false},
		{name: "zero principal", profit: big.NewInt(1), principal: big.NewInt(0), minBps: 100, profitable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := CheckProfitability(ProfitabilityRequest{
				ExpectedProfit: tt.profit,
				Principal:      tt.principal,
				GasEstimate:    1,
				GasPrice:       big.NewInt(0),
				MinProfitBps:   bps(tt.minBps),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.profitable, res.Profitable)
		})
	}
}

func TestCheckProfitability_GasEatsProfit(t *testing.T) {
	res, err := CheckProfitability(ProfitabilityRequest{
		ExpectedProfit: gwei(1_000_000), // 0.001 ether
		Principal:      ether(1),
		GasEstimate:    100_000,
		GasPrice:       gwei(20), // 0.002 ether
	})
	require.NoError(t, err)
	assert.Equal(t, -1, res.NetProfit.Sign())
	assert.False(t, res.Profitable)
	assert.True(t, res.ProfitPercent.IsNegative())
}

func TestCheckProfitability_Invalid(t *testing.T) {
	_, err := CheckProfitability(ProfitabilityRequest{Principal: big.NewInt(1)})
	require.ErrorIs(t, err, ErrInvalidProfitability)
	assert.Equal(t, domain.KindPrecondition, domain.KindOf(err))

	_, err = CheckProfitability(ProfitabilityRequest{
		ExpectedProfit: big.NewInt(1),
		Principal:      big.NewInt(1),
		MinProfitBps:   bps(domain.MaxBps + 1),
	})
	require.ErrorIs(t, err, ErrInvalidProfitability)
}

func newAdapter(t *testing.T) *venue.Adapter {
	t.Helper()
	now := func() time.Time { return time.Unix(1_700_000_000, 0) }
	book := token.NewBook()

	cp := sim.NewConstantProductRouter(common.HexToAddress("0x00000000000000000000000000000000000000c2"), book, sim.DefaultConstantProductFeeBps, now)
	_, err := cp.AddPair(tokenA, tokenB, ether(1000), ether(2000))
	require.NoError(t, err)

	tiered := sim.NewTieredRouter(common.HexToAddress("0x00000000000000000000000000000000000000c3"), book, now)
	_, err = tiered.AddPool(tokenA, tokenB, domain.FeeTierLow, ether(1000), ether(2100))
	require.NoError(t, err)

	reg := venue.NewRegistry()
	require.NoError(t, reg.Register("v2", cp))
	require.NoError(t, reg.Register("v3", tiered))

	return venue.NewAdapter(venue.Options{
		Registry: reg,
		Book:     book,
		Params:   staticParams{},
		Now:      now,
	})
}

type staticParams struct{}

func (staticParams) Params() domain.SafetyParams { return domain.DefaultSafetyParams() }

func TestCompareVenues_RanksByOutput(t *testing.T) {
	a := newAdapter(t)

	c, err := CompareVenues(context.Background(), a, tokenA, tokenB, ether(1), []string{"v2", "v3"})
	require.NoError(t, err)
	require.Len(t, c.Quotes, 2)

	assert.Equal(t, "v3", c.Best)
	assert.Equal(t, "v2", c.Worst)
	assert.Equal(t, domain.VenueTiered, c.Quotes[0].Kind)
	assert.Equal(t, domain.FeeTierLow, c.Quotes[0].Fee)
	assert.Equal(t, domain.VenueConstantProduct, c.Quotes[1].Kind)
	assert.Equal(t, 1, c.Quotes[0].AmountOut.Cmp(c.Quotes[1].AmountOut))
	assert.Positive(t, c.SpreadBps)
}

func TestCompareVenues_FailedVenueReported(t *testing.T) {
	a := newAdapter(t)

	c, err := CompareVenues(context.Background(), a, tokenA, tokenB, ether(1), []string{"missing", "v2"})
	require.NoError(t, err)
	require.Len(t, c.Quotes, 2)
	assert.Equal(t, "v2", c.Best)
	assert.Equal(t, int64(0), c.SpreadBps)
	assert.Equal(t, "missing", c.Quotes[1].Venue)
	assert.NotEmpty(t, c.Quotes[1].Err)
}

func TestCompareVenues_NoQuotes(t *testing.T) {
	a := newAdapter(t)

	_, err := CompareVenues(context.Background(), a, tokenA, tokenC, ether(1), []string{"v2", "v3"})
	require.ErrorIs(t, err, ErrNoQuotes)
	assert.Equal(t, domain.KindVenue, domain.KindOf(err))

	_, err = CompareVenues(context.Background(), a, tokenA, tokenB, ether(1), nil)
	assert.Equal(t, domain.KindPrecondition, domain.KindOf(err))
}
