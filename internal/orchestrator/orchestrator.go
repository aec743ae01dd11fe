// Package orchestrator runs strategies under flash loans.
// Flow: precondition gate → loan request → callback (actions, profit,
// repayment approval) → ledger credit → execution record → outcome event.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"flashloan-executor/internal/action"
	"flashloan-executor/internal/chain"
	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/events"
	"flashloan-executor/internal/idhash"
	"flashloan-executor/internal/ledger"
	"flashloan-executor/internal/loan"
	"flashloan-executor/internal/observability"
	"flashloan-executor/internal/oracle"
	"flashloan-executor/internal/safety"
	"flashloan-executor/internal/state"
)

// Strategies is the registry view the orchestrator needs.
type Strategies interface {
	Get(ctx context.Context, id uint64) (*domain.Strategy, error)
	RecordExecution(ctx context.Context, res *domain.ExecutionResult) error
}

// liquidity is implemented by providers that can answer availability
// before a loan is requested.
type liquidity interface {
	Available(asset common.Address, amount *big.Int) bool
}

// Options configures an Orchestrator.
type Options struct {
	System     *state.System
	Strategies Strategies
	Executor   *action.Executor
	Provider   loan.Provider
	Prices     oracle.PriceSource
	Gas        chain.GasPriceSource
	Publisher  events.Publisher
	Now        func() time.Time
	Logger     *zap.Logger
}

// Orchestrator is the flash loan execution engine. It runs one attempt at
// a time and never waits: a call arriving while an attempt is in flight is
// reentry and fails immediately.
type Orchestrator struct {
	sys        *state.System
	strategies Strategies
	executor   *action.Executor
	provider   loan.Provider
	prices     oracle.PriceSource
	gas        chain.GasPriceSource
	publisher  events.Publisher
	now        func() time.Time
	logger     *zap.Logger

	mu     sync.Mutex
	active atomic.Pointer[attempt]
	phase  atomic.Value // domain.ExecutionPhase
	nonce  atomic.Uint64

	resultsMu sync.Mutex
	results   []*domain.ExecutionResult
}

// New creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.System == nil:
		return nil, errors.New("orchestrator: system is required")
	case opts.Strategies == nil, opts.Executor == nil, opts.Provider == nil:
		return nil, errors.New("orchestrator: strategies, executor and provider are required")
	case opts.Prices == nil, opts.Gas == nil:
		return nil, errors.New("orchestrator: price and gas sources are required")
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	o := &Orchestrator{
		sys:        opts.System,
		strategies: opts.Strategies,
		executor:   opts.Executor,
		provider:   opts.Provider,
		prices:     opts.Prices,
		gas:        opts.Gas,
		publisher:  opts.Publisher,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	o.phase.Store(domain.PhaseIdle)
	return o, nil
}

var _ loan.Receiver = (*Orchestrator)(nil)

// Phase returns the state of the attempt in flight, or PhaseIdle.
func (o *Orchestrator) Phase() domain.ExecutionPhase {
	return o.phase.Load().(domain.ExecutionPhase)
}

// Results returns every result recorded by this instance, oldest first.
func (o *Orchestrator) Results() []*domain.ExecutionResult {
	o.resultsMu.Lock()
	defer o.resultsMu.Unlock()
	out := make([]*domain.ExecutionResult, len(o.results))
	for i, r := range o.results {
		out[i] = r.Clone()
	}
	return out
}

// attempt is the in-flight state of one execution.
type attempt struct {
	strategy *domain.Strategy
	executor common.Address
	nonce    uint64
	started  time.Time

	assets   []common.Address
	amounts  []*big.Int
	pre      []*big.Int
	prices   []*big.Int
	decimals []uint8
	payload  []byte

	inCallback atomic.Bool
	violation  atomic.Pointer[error] // first integrity violation seen while in flight

	// written by the callback, read after the loan returns
	failure  error
	actions  []action.Result
	gasUsed  uint64
	profits  []domain.AssetProfit
	profit   decimal.Decimal
	credits  []ledger.Credit
	borrowed decimal.Decimal
}

func (a *attempt) flag(err error) {
	a.violation.CompareAndSwap(nil, &err)
}

func (a *attempt) violated() error {
	if p := a.violation.Load(); p != nil {
		return *p
	}
	return nil
}

// ExecuteStrategy runs strategy id under a flash loan of amounts of assets,
// on behalf of caller. Precondition violations return a nil result and
// leave no trace. Every other outcome is recorded and returned; a failed
// attempt also returns its classified error.
func (o *Orchestrator) ExecuteStrategy(
	ctx context.Context,
	caller common.Address,
	id uint64,
	assets []common.Address,
	amounts []*big.Int,
	payload []byte,
) (*domain.ExecutionResult, error) {
	const op = "execute strategy"

	if !o.mu.TryLock() {
		err := domain.Integrity(op, ErrReentrancy)
		if at := o.active.Load(); at != nil {
			at.flag(err)
		}
		o.integrityViolation("reentrancy", id, caller, err)
		return nil, err
	}
	defer o.mu.Unlock()

	at, err := o.admit(ctx, caller, id, assets, amounts)
	if err != nil {
		o.logger.Info("execution rejected",
			zap.Uint64("strategy_id", id),
			zap.String("caller", caller.Hex()),
			zap.Error(err),
		)
		return nil, err
	}
	at.payload = append([]byte(nil), payload...)
	return o.run(ctx, at)
}

// admit checks every precondition and prepares the attempt.
func (o *Orchestrator) admit(ctx context.Context, caller common.Address, id uint64, assets []common.Address, amounts []*big.Int) (*attempt, error) {
	const op = "execute strategy"
	reject := func(reason string, err error) (*attempt, error) {
		observability.RecordPreconditionReject(reason)
		return nil, domain.Precondition(op, err)
	}

	gov := o.sys.Governor
	if gov.IsEmergencyStopped() {
		return reject("emergency_stop", safety.ErrEmergencyStop)
	}
	if len(assets) == 0 || len(amounts) == 0 {
		return reject("malformed_input", ErrEmptyRequest)
	}
	if len(assets) != len(amounts) {
		return reject("malformed_input", fmt.Errorf("%w: %d assets, %d amounts", ErrLengthMismatch, len(assets), len(amounts)))
	}
	seen := make(map[common.Address]struct{}, len(assets))
	for i, a := range assets {
		if _, dup := seen[a]; dup {
			return reject("malformed_input", fmt.Errorf("%w: %s", ErrDuplicateAsset, a.Hex()))
		}
		seen[a] = struct{}{}
		if amounts[i] == nil || amounts[i].Sign() <= 0 {
			return reject("malformed_input", fmt.Errorf("%w: index %d", ErrInvalidAmount, i))
		}
	}

	s, err := o.strategies.Get(ctx, id)
	if err != nil {
		if domain.IsKind(err, domain.KindPrecondition) {
			observability.RecordPreconditionReject("unknown_strategy")
			return nil, err
		}
		return nil, domain.NewError(domain.KindInternal, op, err)
	}
	if !s.IsLive(o.now().Unix()) {
		return reject("strategy_not_live", fmt.Errorf("%w: %d", ErrStrategyNotLive, id))
	}
	if !gov.IsAuthorized(caller, s.Creator) {
		return reject("unauthorized", fmt.Errorf("%w: %s", ErrNotAuthorized, caller.Hex()))
	}

	price, err := o.gas.CurrentGasPrice(ctx)
	if err != nil {
		return reject("gas_price", err)
	}
	if err := gov.CheckGasPrice(price); err != nil {
		return reject("gas_price", err)
	}
	if s.MaxGasPrice != nil && price.Cmp(s.MaxGasPrice) > 0 {
		return reject("gas_price", fmt.Errorf("%w: %s > %s", ErrStrategyGasCeiling, price, s.MaxGasPrice))
	}

	if l, ok := o.provider.(liquidity); ok {
		for i, a := range assets {
			if !l.Available(a, amounts[i]) {
				return reject("no_liquidity", fmt.Errorf("%w: %s of %s", ErrNoLiquidity, amounts[i], a.Hex()))
			}
		}
	}

	at := &attempt{
		strategy: s,
		executor: caller,
		assets:   append([]common.Address(nil), assets...),
		amounts:  make([]*big.Int, len(amounts)),
		pre:      make([]*big.Int, len(assets)),
		prices:   make([]*big.Int, len(assets)),
		decimals: make([]uint8, len(assets)),
	}
	for i, a := range assets {
		at.amounts[i] = new(big.Int).Set(amounts[i])
		dec, err := o.sys.Tokens.Decimals(a)
		if err != nil {
			return reject("unpriced_asset", fmt.Errorf("%w: %w", ErrUnpricedAsset, err))
		}
		p, err := o.prices.AssetPrice(ctx, a)
		if err != nil {
			return reject("unpriced_asset", fmt.Errorf("%w: %w", ErrUnpricedAsset, err))
		}
		at.decimals[i] = dec
		at.prices[i] = p
		at.borrowed = at.borrowed.Add(ValueUSD(amounts[i], dec, p))
	}
	return at, nil
}

// run requests the loan and settles the attempt.
func (o *Orchestrator) run(ctx context.Context, at *attempt) (*domain.ExecutionResult, error) {
	book := o.sys.Book
	self := o.sys.Self

	at.nonce = o.nonce.Add(1)
	at.started = o.now()
	for i, a := range at.assets {
		at.pre[i] = book.BalanceOf(a, self)
	}

	params, err := EncodeParams(LoanParams{StrategyID: at.strategy.ID, Executor: at.executor, Payload: at.payload})
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "encode loan params", err)
	}

	o.active.Store(at)
	defer func() {
		o.active.Store(nil)
		o.setPhase(domain.PhaseIdle)
	}()

	snap := book.Snapshot()
	o.setPhase(domain.PhaseLoanRequested)
	err = o.provider.FlashLoan(ctx, self, loan.Request{
		Assets:          at.assets,
		Amounts:         at.amounts,
		OnBehalfOf:      self,
		Params:          params,
		Receiver:        o,
		ReceiverAddress: self,
	})
	if err == nil {
		err = at.violated()
	}
	if err == nil {
		o.setPhase(domain.PhaseRepaid)
		if cerr := o.sys.Ledger.CreditAll(ctx, at.credits); cerr != nil {
			err = domain.NewError(domain.KindInternal, "credit ledger", cerr)
		}
	}

	if err != nil {
		_ = book.RevertToSnapshot(snap)
		return o.fail(ctx, at, o.classify(at, err))
	}
	_ = book.Commit(snap)
	return o.succeed(ctx, at)
}

// classify picks the root cause of a failed loan.
func (o *Orchestrator) classify(at *attempt, err error) error {
	if v := at.violated(); v != nil {
		return v
	}
	if at.failure != nil {
		return at.failure
	}
	if domain.KindOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, loan.ErrInsufficientLiquidity),
		errors.Is(err, loan.ErrInvalidRequest),
		errors.Is(err, loan.ErrUnsupportedMode):
		return domain.Precondition("flash loan", err)
	}
	return domain.NewError(domain.KindInternal, "flash loan", err)
}

// OnLoanGranted implements loan.Receiver. It is the only place borrowed
// funds are spent.
func (o *Orchestrator) OnLoanGranted(
	ctx context.Context,
	caller common.Address,
	assets []common.Address,
	amounts []*big.Int,
	premiums []*big.Int,
	initiator common.Address,
	params []byte,
) (bool, error) {
	const op = "loan callback"
	at := o.active.Load()

	violation := func(reason string, err error) (bool, error) {
		err = domain.Integrity(op, err)
		if at != nil {
			at.flag(err)
		}
		o.integrityViolation(reason, 0, caller, err)
		return false, err
	}

	if caller != o.provider.Address() {
		return violation("untrusted_caller", fmt.Errorf("%w: %s", ErrUntrustedCaller, caller.Hex()))
	}
	if initiator != o.sys.Self {
		return violation("initiator_mismatch", fmt.Errorf("%w: %s", ErrInitiatorMismatch, initiator.Hex()))
	}
	if at == nil {
		return violation("no_active_attempt", ErrNoActiveAttempt)
	}
	if !at.inCallback.CompareAndSwap(false, true) {
		return violation("reentrancy", ErrReentrancy)
	}
	lp, err := DecodeParams(params)
	if err != nil {
		return violation("params_mismatch", fmt.Errorf("%w: %w", ErrParamsMismatch, err))
	}
	if lp.StrategyID != at.strategy.ID || lp.Executor != at.executor || !sameLoan(at, assets, amounts) || len(premiums) != len(assets) {
		return violation("params_mismatch", ErrParamsMismatch)
	}

	o.setPhase(domain.PhaseLoanReceived)
	book := o.sys.Book
	self := o.sys.Self
	for i, a := range at.assets {
		want := new(big.Int).Add(at.pre[i], at.amounts[i])
		if book.BalanceOf(a, self).Cmp(want) < 0 {
			return violation("loan_not_received", fmt.Errorf("%w: %s", ErrLoanNotReceived, a.Hex()))
		}
	}

	fail := func(err error) (bool, error) {
		at.failure = err
		return false, err
	}

	// Guard rails may have changed since the gate.
	if o.sys.Governor.IsEmergencyStopped() {
		observability.RecordPreconditionReject("emergency_stop")
		return fail(domain.Precondition(op, safety.ErrEmergencyStop))
	}
	if !o.sys.Governor.IsAuthorized(at.executor, at.strategy.Creator) {
		observability.RecordPreconditionReject("unauthorized")
		return fail(domain.Precondition(op, fmt.Errorf("%w: %s", ErrNotAuthorized, at.executor.Hex())))
	}

	o.setPhase(domain.PhaseActionsRunning)
	lc := action.LoanContext{
		StrategyID: at.strategy.ID,
		Executor:   at.executor,
		Self:       self,
		Assets:     at.assets,
		Amounts:    at.amounts,
		Premiums:   premiums,
	}
	at.gasUsed = o.executor.Gas().Overhead(len(at.assets))
	for i, a := range at.strategy.Actions {
		res := o.executor.Execute(ctx, i, a, lc)
		at.actions = append(at.actions, res)
		at.gasUsed += res.GasUsed
		if v := at.violated(); v != nil {
			return false, v
		}
		if res.Success {
			continue
		}
		if a.Critical {
			return fail(res.Err)
		}
		o.logger.Warn("non-critical action failed",
			zap.Uint64("strategy_id", at.strategy.ID),
			zap.Int("index", i),
			zap.String("kind", a.Kind.String()),
			zap.Error(res.Err),
		)
	}

	o.setPhase(domain.PhaseProfitComputed)
	at.profits = make([]domain.AssetProfit, len(at.assets))
	var uncovered error
	for i, a := range at.assets {
		required := new(big.Int).Add(at.pre[i], at.amounts[i])
		required.Add(required, premiums[i])
		post := book.BalanceOf(a, self)
		gain := new(big.Int).Sub(post, required)
		if gain.Sign() < 0 {
			// Profit is clamped at zero; the missing repayment is reported separately.
			if uncovered == nil {
				uncovered = fmt.Errorf("%w: %s has %s, needs %s", ErrRepaymentShortfall, a.Hex(), post, required)
			}
			gain.SetInt64(0)
		}
		at.profits[i] = domain.AssetProfit{Asset: a, Amount: gain}
		at.profit = at.profit.Add(ValueUSD(gain, at.decimals[i], at.prices[i]))
	}
	if !MeetsMinProfit(at.profit, at.borrowed, at.strategy.MinProfitBps) {
		return fail(domain.NewError(domain.KindProfitShortfall, op,
			fmt.Errorf("%w: %s USD on %s USD borrowed, want %d bps", ErrBelowMinProfit,
				at.profit.StringFixed(6), at.borrowed.StringFixed(6), at.strategy.MinProfitBps)))
	}
	if uncovered != nil {
		return fail(domain.NewError(domain.KindActionFailure, op, uncovered))
	}

	pool := o.provider.Address()
	for i, a := range at.assets {
		owed := new(big.Int).Add(at.amounts[i], premiums[i])
		if err := book.Approve(a, self, pool, owed); err != nil {
			return fail(domain.NewError(domain.KindInternal, op, fmt.Errorf("approve repayment: %w", err)))
		}
		if at.profits[i].Amount.Sign() > 0 {
			at.credits = append(at.credits, ledger.Credit{
				StrategyID: at.strategy.ID,
				User:       at.executor,
				Asset:      a,
				Amount:     new(big.Int).Set(at.profits[i].Amount),
			})
		}
	}
	return true, nil
}

func sameLoan(at *attempt, assets []common.Address, amounts []*big.Int) bool {
	if len(assets) != len(at.assets) || len(amounts) != len(at.amounts) {
		return false
	}
	for i := range assets {
		if assets[i] != at.assets[i] || amounts[i] == nil || amounts[i].Cmp(at.amounts[i]) != 0 {
			return false
		}
	}
	return true
}

func (o *Orchestrator) succeed(ctx context.Context, at *attempt) (*domain.ExecutionResult, error) {
	res := o.newResult(at, domain.ExecutionSuccess)
	res.ProfitUSD = at.profit
	res.AssetProfits = at.profits

	o.record(ctx, at, res)
	profit, _ := at.profit.Float64()
	observability.RecordProfit(profit, res.Timestamp)
	o.logger.Info("execution succeeded",
		zap.String("execution_id", res.ID),
		zap.Uint64("strategy_id", res.StrategyID),
		zap.String("executor", res.Executor.Hex()),
		zap.String("profit_usd", res.ProfitUSD.String()),
		zap.Uint64("gas_used", res.GasUsed),
	)
	return res, nil
}

func (o *Orchestrator) fail(ctx context.Context, at *attempt, err error) (*domain.ExecutionResult, error) {
	kind := domain.KindOf(err)
	if kind == domain.KindPrecondition {
		return nil, err
	}

	res := o.newResult(at, domain.ExecutionFailed)
	res.FailureKind = kind
	res.Error = err.Error()
	o.record(ctx, at, res)

	if kind != domain.KindIntegrity {
		o.logger.Warn("execution failed",
			zap.String("event", "execution_failed"),
			zap.String("execution_id", res.ID),
			zap.Uint64("strategy_id", res.StrategyID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	return res, err
}

func (o *Orchestrator) newResult(at *attempt, status domain.ExecutionStatus) *domain.ExecutionResult {
	ts := o.now().Unix()
	return &domain.ExecutionResult{
		ID:         idhash.ComputeExecutionID(at.strategy.ID, at.executor, at.nonce, ts),
		StrategyID: at.strategy.ID,
		Executor:   at.executor,
		Nonce:      at.nonce,
		Status:     status,
		GasUsed:    at.gasUsed,
		ProfitUSD:  decimal.Zero,
		Timestamp:  ts,
	}
}

// record appends res to the registry, the local history and the event stream.
func (o *Orchestrator) record(ctx context.Context, at *attempt, res *domain.ExecutionResult) {
	o.setPhase(domain.PhaseRecorded)
	if err := o.strategies.RecordExecution(ctx, res); err != nil {
		o.logger.Error("record execution failed",
			zap.String("execution_id", res.ID),
			zap.Error(err),
		)
	}

	o.resultsMu.Lock()
	o.results = append(o.results, res.Clone())
	o.resultsMu.Unlock()

	observability.RecordExecution(string(res.Status), string(res.FailureKind),
		o.now().Sub(at.started).Seconds(), res.GasUsed)

	if err := o.publisher.Publish(ctx, events.FromResult(res)); err != nil {
		o.logger.Warn("publish outcome failed",
			zap.String("execution_id", res.ID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) integrityViolation(reason string, strategyID uint64, caller common.Address, err error) {
	observability.RecordIntegrityViolation(reason)
	o.logger.Error("integrity violation",
		zap.String("event", "integrity_violation"),
		zap.String("reason", reason),
		zap.Uint64("strategy_id", strategyID),
		zap.String("caller", caller.Hex()),
		zap.Error(err),
	)
}

func (o *Orchestrator) setPhase(p domain.ExecutionPhase) {
	o.phase.Store(p)
}
