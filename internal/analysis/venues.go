package analysis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/venue"
)

var ErrNoQuotes = errors.New("no venue returned a quote")

// Quoter simulates swaps. *venue.Adapter satisfies it.
type Quoter interface {
	Quote(ctx context.Context, p domain.SwapParams) (venue.Quote, error)
}

// VenueQuote is one venue's answer for the compared pair.
type VenueQuote struct {
	Venue     string
	Kind      domain.VenueKind
	Fee       uint32
	AmountOut *big.Int
	Err       string // set when the venue could not quote
}

// Comparison ranks venues by output for one pair and size.
type Comparison struct {
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int

	Quotes []VenueQuote // successful quotes first, best output first
	Best   string
	Worst  string
	// SpreadBps is (best - worst) * 10000 / worst over successful quotes.
	SpreadBps int64
}

// CompareVenues quotes amountIn of tokenIn -> tokenOut on every named venue.
// Tiered venues are quoted at their optimal fee tier. A venue that fails to
// quote is reported with Err and excluded from the ranking; if every venue
// fails, ErrNoQuotes is returned.
func CompareVenues(ctx context.Context, q Quoter, tokenIn, tokenOut common.Address, amountIn *big.Int, venues []string) (*Comparison, error) {
	if len(venues) == 0 {
		return nil, domain.Precondition("compare venues", errors.New("no venues given"))
	}

	c := &Comparison{TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: amountIn}
	var failed []VenueQuote
	for _, name := range venues {
		quote, err := q.Quote(ctx, domain.SwapParams{
			Venue:    name,
			TokenIn:  tokenIn,
			TokenOut: tokenOut,
			AmountIn: amountIn,
		})
		if err != nil {
			failed = append(failed, VenueQuote{Venue: name, Err: err.Error()})
			continue
		}
		c.Quotes = append(c.Quotes, VenueQuote{
			Venue:     quote.Venue,
			Kind:      quote.Kind,
			Fee:       quote.Fee,
			AmountOut: quote.AmountOut,
		})
	}
	if len(c.Quotes) == 0 {
		return nil, domain.NewError(domain.KindVenue, "compare venues",
			fmt.Errorf("%w: %s -> %s", ErrNoQuotes, tokenIn.Hex(), tokenOut.Hex()))
	}

	sort.SliceStable(c.Quotes, func(i, j int) bool {
		return c.Quotes[i].AmountOut.Cmp(c.Quotes[j].AmountOut) > 0
	})
	best := c.Quotes[0]
	worst := c.Quotes[len(c.Quotes)-1]
	c.Best = best.Venue
	c.Worst = worst.Venue

	spread := new(big.Int).Sub(best.AmountOut, worst.AmountOut)
	spread.Mul(spread, big.NewInt(domain.MaxBps))
	spread.Quo(spread, worst.AmountOut)
	c.SpreadBps = spread.Int64()

	c.Quotes = append(c.Quotes, failed...)
	return c, nil
}
