package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// VenueKind identifies the swap interface a venue exposes.
type VenueKind string

const (
	VenueConstantProduct VenueKind = "CONSTANT_PRODUCT"
	VenueTiered          VenueKind = "TIERED"
)

// Fee tiers of concentrated-liquidity venues, in hundredths of a bip.
const (
	FeeTierLowest uint32 = 100
	FeeTierLow    uint32 = 500
	FeeTierMedium uint32 = 3000
	FeeTierHigh   uint32 = 10000

	// DefaultFeeTier wins ties during optimal tier selection.
	DefaultFeeTier = FeeTierMedium
)

// FeeTiers lists every tier probed during optimal tier selection.
var FeeTiers = []uint32{FeeTierLowest, FeeTierLow, FeeTierMedium, FeeTierHigh}

// NativeAsset marks the chain's native currency in balance books and actions.
var NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// SwapParams is a venue-agnostic swap request built per action execution.
type SwapParams struct {
	Venue        string // registered venue name
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int         // zero = derive from quote and max slippage
	Path         []common.Address // constant-product routing, defaults to [in, out]
	Fee          uint32           // tiered venues, zero = optimal tier
	Recipient    common.Address
	Deadline     int64 // unix seconds
	Extra        []byte
}

// RoutePath returns the explicit path or the direct [in, out] pair.
func (p SwapParams) RoutePath() []common.Address {
	if len(p.Path) >= 2 {
		return p.Path
	}
	return []common.Address{p.TokenIn, p.TokenOut}
}
