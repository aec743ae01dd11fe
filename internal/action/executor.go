// Package action executes single strategy steps. Failures never escape as
// panics; every outcome is reported as a Result.
package action

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/observability"
	"flashloan-executor/internal/token"
	"flashloan-executor/internal/venue"
)

// Swapper performs venue-agnostic swaps.
type Swapper interface {
	Swap(ctx context.Context, payer common.Address, p domain.SwapParams) (*big.Int, error)
}

// VenueLookup resolves a venue by router address.
type VenueLookup interface {
	ByAddress(addr common.Address) (venue.Handle, bool)
}

// LoanContext describes the flash loan an action runs under.
type LoanContext struct {
	StrategyID uint64
	Executor   common.Address // identity that requested the execution
	Self       common.Address // holder of the borrowed funds
	Assets     []common.Address
	Amounts    []*big.Int
	Premiums   []*big.Int
}

// Result is the outcome of one action.
type Result struct {
	Index      int
	Kind       domain.ActionKind
	Success    bool
	AmountOut  *big.Int // swaps only
	ReturnData []byte
	GasUsed    uint64
	Err        error
}

// Options configures an Executor.
type Options struct {
	Swapper Swapper
	Venues  VenueLookup
	Targets *Targets
	Book    *token.Book
	Gas     GasModel
	Logger  *zap.Logger
}

// Executor runs one action at a time. Each action is isolated: a failed
// action's partial effects are rolled back before its Result is returned.
type Executor struct {
	swapper Swapper
	venues  VenueLookup
	targets *Targets
	book    *token.Book
	gas     GasModel
	logger  *zap.Logger
}

// NewExecutor creates a new action executor.
func NewExecutor(opts Options) *Executor {
	if opts.Gas == nil {
		opts.Gas = DefaultGasModel()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Targets == nil {
		opts.Targets = NewTargets()
	}
	return &Executor{
		swapper: opts.Swapper,
		venues:  opts.Venues,
		targets: opts.Targets,
		book:    opts.Book,
		gas:     opts.Gas,
		logger:  opts.Logger,
	}
}

// Gas returns the executor's gas model.
func (e *Executor) Gas() GasModel {
	return e.gas
}

// Execute runs a under lc and reports the outcome.
func (e *Executor) Execute(ctx context.Context, index int, a domain.Action, lc LoanContext) (res Result) {
	res = Result{Index: index, Kind: a.Kind, GasUsed: e.gas.Action(a.Kind)}
	op := fmt.Sprintf("action %d (%s)", index, a.Kind)

	snap := e.book.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Err = domain.NewError(domain.KindActionFailure, op, fmt.Errorf("panic: %v", r))
		}
		if res.Success {
			_ = e.book.Commit(snap)
		} else {
			_ = e.book.RevertToSnapshot(snap)
		}
		observability.RecordAction(a.Kind.String(), res.Success)
	}()

	var err error
	switch {
	case !a.Kind.IsValid():
		err = fmt.Errorf("unknown action kind %d", a.Kind)
	case a.Kind == domain.ActionSwap:
		res.AmountOut, err = e.swap(ctx, a, lc)
	default:
		if a.Kind.IsOpaque() {
			observability.RecordOpaqueCall(a.Target.Hex())
			e.logger.Info("opaque call",
				zap.String("event", "opaque_call"),
				zap.Uint64("strategy_id", lc.StrategyID),
				zap.Int("index", index),
				zap.String("target", a.Target.Hex()),
				zap.Int("payload_len", len(a.Payload)),
			)
		}
		res.ReturnData, err = e.call(ctx, a, lc)
	}

	if err != nil {
		res.Err = domain.NewError(domain.KindActionFailure, op, err)
		return res
	}
	res.Success = true
	return res
}

func (e *Executor) swap(ctx context.Context, a domain.Action, lc LoanContext) (*big.Int, error) {
	p, err := DecodeSwapPayload(a.Payload)
	if err != nil {
		return nil, err
	}
	if p.Venue == "" {
		if e.venues == nil {
			return nil, fmt.Errorf("swap: no venue name and no venue lookup")
		}
		h, ok := e.venues.ByAddress(a.Target)
		if !ok {
			return nil, fmt.Errorf("swap: %w at %s", venue.ErrUnknownVenue, a.Target.Hex())
		}
		p.Venue = h.Name
	}
	if p.AmountIn == nil || p.AmountIn.Sign() == 0 {
		p.AmountIn = e.book.BalanceOf(p.TokenIn, lc.Self)
	}
	if p.Recipient == (common.Address{}) {
		p.Recipient = lc.Self
	}
	return e.swapper.Swap(ctx, lc.Self, p)
}

func (e *Executor) call(ctx context.Context, a domain.Action, lc LoanContext) ([]byte, error) {
	target, err := e.targets.Resolve(a.Target)
	if err != nil {
		return nil, err
	}

	value := new(big.Int)
	if a.Value != nil && a.Value.Sign() > 0 {
		value.Set(a.Value)
		if err := e.book.Transfer(domain.NativeAsset, lc.Self, a.Target, value); err != nil {
			return nil, fmt.Errorf("send value: %w", err)
		}
	}
	return target.Call(ctx, Call{Caller: lc.Self, Value: value, Data: a.Payload})
}
