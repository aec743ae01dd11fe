package venue

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/observability"
	"flashloan-executor/internal/token"
)

// ParamsSource provides the current safety parameters.
type ParamsSource interface {
	Params() domain.SafetyParams
}

// Options configures an Adapter.
type Options struct {
	Registry *Registry
	Book     *token.Book
	Params   ParamsSource
	Now      func() time.Time
	Logger   *zap.Logger
}

// Adapter executes venue-agnostic swaps.
type Adapter struct {
	registry *Registry
	book     *token.Book
	params   ParamsSource
	now      func() time.Time
	logger   *zap.Logger
}

// NewAdapter creates a new swap adapter.
func NewAdapter(opts Options) *Adapter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Adapter{
		registry: opts.Registry,
		book:     opts.Book,
		params:   opts.Params,
		now:      opts.Now,
		logger:   opts.Logger,
	}
}

// Quote is a simulated swap.
type Quote struct {
	Venue     string
	Kind      domain.VenueKind
	Fee       uint32 // tiered venues only
	AmountOut *big.Int
}

// Quote simulates p without moving funds.
func (a *Adapter) Quote(ctx context.Context, p domain.SwapParams) (Quote, error) {
	if err := a.validate(p); err != nil {
		return Quote{}, domain.NewError(domain.KindVenue, "quote", err)
	}
	h, err := a.registry.Resolve(p.Venue)
	if err != nil {
		return Quote{}, domain.NewError(domain.KindVenue, "quote", err)
	}
	q, err := a.quote(ctx, h, p)
	if err != nil {
		return Quote{}, domain.NewError(domain.KindVenue, "quote", err)
	}
	return q, nil
}

// Swap performs p on behalf of payer and returns the output amount actually
// received by the recipient. The venue is approved for exactly AmountIn and
// the approval is cleared afterwards.
func (a *Adapter) Swap(ctx context.Context, payer common.Address, p domain.SwapParams) (*big.Int, error) {
	out, kind, err := a.swap(ctx, payer, p)
	observability.RecordVenueSwap(string(kind), err == nil)
	if err != nil {
		a.logger.Debug("swap failed",
			zap.String("venue", p.Venue),
			zap.String("token_in", p.TokenIn.Hex()),
			zap.String("token_out", p.TokenOut.Hex()),
			zap.Error(err),
		)
		return nil, domain.NewError(domain.KindVenue, "swap", err)
	}
	return out, nil
}

func (a *Adapter) swap(ctx context.Context, payer common.Address, p domain.SwapParams) (*big.Int, domain.VenueKind, error) {
	if err := a.validate(p); err != nil {
		return nil, "", err
	}
	h, err := a.registry.Resolve(p.Venue)
	if err != nil {
		return nil, "", err
	}

	if p.Recipient == (common.Address{}) {
		p.Recipient = payer
	}
	if p.Deadline == 0 {
		p.Deadline = a.now().Unix() + a.params.Params().DeadlineBuffer
	}

	q, err := a.quote(ctx, h, p)
	if err != nil {
		return nil, h.Kind, err
	}
	minOut := p.MinAmountOut
	if minOut == nil || minOut.Sign() == 0 {
		minOut = applySlippage(q.AmountOut, a.params.Params().MaxSlippageBps)
	}

	spender := h.Router.Address()
	if err := a.book.Approve(p.TokenIn, payer, spender, p.AmountIn); err != nil {
		return nil, h.Kind, fmt.Errorf("approve %s: %w", spender.Hex(), err)
	}
	defer func() {
		// clear leftovers; the approval must not outlive the swap
		_ = a.book.Approve(p.TokenIn, payer, spender, new(big.Int))
	}()

	before := a.book.BalanceOf(p.TokenOut, p.Recipient)

	var reported *big.Int
	switch h.Kind {
	case domain.VenueConstantProduct:
		r, _ := h.ConstantProduct()
		amounts, err := r.SwapExactTokensForTokens(ctx, payer, p.AmountIn, minOut, p.RoutePath(), p.Recipient, p.Deadline)
		if err != nil {
			return nil, h.Kind, fmt.Errorf("%s: %w", h.Name, err)
		}
		if len(amounts) > 0 {
			reported = amounts[len(amounts)-1]
		}
	case domain.VenueTiered:
		r, _ := h.Tiered()
		reported, err = r.ExactInputSingle(ctx, payer, ExactInputSingleParams{
			TokenIn:          p.TokenIn,
			TokenOut:         p.TokenOut,
			Fee:              q.Fee,
			Recipient:        p.Recipient,
			Deadline:         p.Deadline,
			AmountIn:         p.AmountIn,
			AmountOutMinimum: minOut,
		})
		if err != nil {
			return nil, h.Kind, fmt.Errorf("%s fee %d: %w", h.Name, q.Fee, err)
		}
	}

	received := new(big.Int).Sub(a.book.BalanceOf(p.TokenOut, p.Recipient), before)
	if reported != nil && reported.Cmp(received) != 0 {
		a.logger.Debug("venue reported output differs from balance delta",
			zap.String("venue", h.Name),
			zap.String("reported", reported.String()),
			zap.String("received", received.String()),
		)
	}
	if received.Cmp(minOut) < 0 {
		return nil, h.Kind, fmt.Errorf("%w: got %s, want >= %s", ErrInsufficientOutput, received, minOut)
	}
	return received, h.Kind, nil
}

func (a *Adapter) quote(ctx context.Context, h Handle, p domain.SwapParams) (Quote, error) {
	switch h.Kind {
	case domain.VenueConstantProduct:
		r, ok := h.ConstantProduct()
		if !ok {
			return Quote{}, fmt.Errorf("%w: %s", ErrUnsupportedRouter, h.Name)
		}
		path := p.RoutePath()
		if path[0] != p.TokenIn || path[len(path)-1] != p.TokenOut {
			return Quote{}, fmt.Errorf("%w: path does not connect %s to %s", ErrInvalidSwap, p.TokenIn.Hex(), p.TokenOut.Hex())
		}
		amounts, err := r.GetAmountsOut(ctx, p.AmountIn, path)
		if err != nil {
			return Quote{}, fmt.Errorf("%s: %w", h.Name, err)
		}
		if len(amounts) != len(path) {
			return Quote{}, fmt.Errorf("%s: %d amounts for %d-hop path", h.Name, len(amounts), len(path))
		}
		out := amounts[len(amounts)-1]
		if out == nil || out.Sign() <= 0 {
			return Quote{}, fmt.Errorf("%w: %s", ErrNoLiquidity, h.Name)
		}
		return Quote{Venue: h.Name, Kind: h.Kind, AmountOut: out}, nil

	case domain.VenueTiered:
		r, ok := h.Tiered()
		if !ok {
			return Quote{}, fmt.Errorf("%w: %s", ErrUnsupportedRouter, h.Name)
		}
		if p.Fee != 0 {
			out, err := r.QuoteExactInputSingle(ctx, p.TokenIn, p.TokenOut, p.Fee, p.AmountIn)
			if err != nil {
				return Quote{}, fmt.Errorf("%s fee %d: %w", h.Name, p.Fee, err)
			}
			if out == nil || out.Sign() <= 0 {
				return Quote{}, fmt.Errorf("%w: %s fee %d", ErrNoLiquidity, h.Name, p.Fee)
			}
			return Quote{Venue: h.Name, Kind: h.Kind, Fee: p.Fee, AmountOut: out}, nil
		}
		fee, out, err := OptimalFeeTier(ctx, r, p.TokenIn, p.TokenOut, p.AmountIn)
		if err != nil {
			return Quote{}, fmt.Errorf("%s: %w", h.Name, err)
		}
		observability.RecordFeeTier(strconv.FormatUint(uint64(fee), 10))
		return Quote{Venue: h.Name, Kind: h.Kind, Fee: fee, AmountOut: out}, nil
	}
	return Quote{}, fmt.Errorf("%w: %s", ErrUnsupportedRouter, h.Kind)
}

// OptimalFeeTier probes every known tier and returns the one with the highest
// quote. A probe error counts as a zero quote. Ties go to the default tier,
// otherwise to the lowest fee.
func OptimalFeeTier(ctx context.Context, r TieredRouter, tokenIn, tokenOut common.Address, amountIn *big.Int) (uint32, *big.Int, error) {
	var (
		bestFee uint32
		best    = new(big.Int)
	)
	for _, fee := range domain.FeeTiers {
		out, err := r.QuoteExactInputSingle(ctx, tokenIn, tokenOut, fee, amountIn)
		if err != nil || out == nil {
			continue
		}
		switch c := out.Cmp(best); {
		case c > 0:
			bestFee, best = fee, out
		case c == 0 && out.Sign() > 0 && fee == domain.DefaultFeeTier:
			bestFee = fee
		}
	}
	if best.Sign() <= 0 {
		return 0, nil, ErrNoLiquidity
	}
	return bestFee, new(big.Int).Set(best), nil
}

func (a *Adapter) validate(p domain.SwapParams) error {
	switch {
	case p.AmountIn == nil || p.AmountIn.Sign() <= 0:
		return fmt.Errorf("%w: amount in must be positive", ErrInvalidSwap)
	case p.TokenIn == (common.Address{}) || p.TokenOut == (common.Address{}):
		return fmt.Errorf("%w: zero token address", ErrInvalidSwap)
	case p.TokenIn == p.TokenOut:
		return fmt.Errorf("%w: token in equals token out", ErrInvalidSwap)
	case p.MinAmountOut != nil && p.MinAmountOut.Sign() < 0:
		return fmt.Errorf("%w: negative minimum output", ErrInvalidSwap)
	case p.Deadline != 0 && p.Deadline < a.now().Unix():
		return fmt.Errorf("%w: %d", ErrExpired, p.Deadline)
	}
	return nil
}

// applySlippage returns amount reduced by bps basis points.
func applySlippage(amount *big.Int, bps uint32) *big.Int {
	if bps >= domain.MaxBps {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(domain.MaxBps-bps)))
	return out.Div(out, big.NewInt(domain.MaxBps))
}
