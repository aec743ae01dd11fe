// Package sandbox assembles a complete in-process execution environment
// (token book, venues, lending protocols, loan pool, registry and
// orchestrator) from configuration.
package sandbox

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"flashloan-executor/internal/action"
	"flashloan-executor/internal/action/protocol"
	"flashloan-executor/internal/chain"
	"flashloan-executor/internal/config"
	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/events"
	"flashloan-executor/internal/ledger"
	"flashloan-executor/internal/loan"
	"flashloan-executor/internal/oracle"
	"flashloan-executor/internal/orchestrator"
	"flashloan-executor/internal/registry"
	"flashloan-executor/internal/safety"
	"flashloan-executor/internal/state"
	"flashloan-executor/internal/storage"
	"flashloan-executor/internal/storage/memory"
	"flashloan-executor/internal/token"
	"flashloan-executor/internal/venue"
	"flashloan-executor/internal/venue/sim"
)

var (
	ErrUnknownSymbol = errors.New("unknown token symbol")
	ErrBadAmount     = errors.New("invalid amount")
)

// Deps are the externally provided parts of an environment. Nil stores
// default to memory; nil Prices serve the configured token prices; nil Gas
// is a tracker fixed at the configured gas price.
type Deps struct {
	Strategies storage.StrategyStore
	Executions storage.ExecutionStore
	Mirror     storage.ExecutionStore
	Profits    storage.ProfitStore

	Prices    oracle.PriceSource
	Gas       *chain.GasTracker
	Publisher events.Publisher

	Now    func() time.Time
	Logger *zap.Logger
}

// Environment is an assembled execution environment.
type Environment struct {
	System       *state.System
	Registry     *registry.Registry
	Orchestrator *orchestrator.Orchestrator
	Sequencer    *orchestrator.Sequencer
	Adapter      *venue.Adapter
	Executor     *action.Executor
	Targets      *action.Targets
	Pool         *loan.Pool
	Prices       oracle.PriceSource
	Gas          *chain.GasTracker

	Lending *protocol.LendingPool // nil unless configured
	Wrapper *protocol.Wrapper
	Staking *protocol.StakingPool

	Executions storage.ExecutionStore
	Strategies storage.StrategyStore

	symbols map[string]common.Address
	now     func() time.Time
}

// Build assembles an environment from cfg.
func Build(cfg config.Config, deps Deps) (*Environment, error) {
	envCfg := cfg.Environment
	if err := envCfg.Validate(); err != nil {
		return nil, err
	}
	if envCfg.Owner == "" || envCfg.Self == "" {
		return nil, errors.New("environment owner and self are required")
	}
	if !common.IsHexAddress(cfg.Loan.Address) {
		return nil, fmt.Errorf("loan.address %q is not an address", cfg.Loan.Address)
	}
	deps = withDefaults(deps)
	logger := deps.Logger

	owner := common.HexToAddress(envCfg.Owner)
	gov, err := safety.NewGovernor(owner, safetyParams(cfg.Safety), logger.Named("safety"))
	if err != nil {
		return nil, err
	}
	for _, e := range cfg.Safety.Executors {
		if err := gov.SetExecutor(owner, common.HexToAddress(e), true); err != nil {
			return nil, err
		}
	}

	book := token.NewBook()
	env := &Environment{
		Targets:    action.NewTargets(),
		Executions: deps.Executions,
		Strategies: deps.Strategies,
		symbols:    make(map[string]common.Address, len(envCfg.Tokens)),
		now:        deps.Now,
	}

	tokens := token.NewRegistry()
	prices := make(map[common.Address]*big.Int)
	for _, t := range envCfg.Tokens {
		addr := common.HexToAddress(t.Address)
		if err := tokens.Register(token.Metadata{Address: addr, Symbol: t.Symbol, Decimals: t.Decimals}); err != nil {
			return nil, fmt.Errorf("token %s: %w", t.Symbol, err)
		}
		env.symbols[strings.ToUpper(t.Symbol)] = addr
		if err := env.Targets.Register(addr, protocol.NewToken(addr, book)); err != nil {
			return nil, fmt.Errorf("token %s: %w", t.Symbol, err)
		}
		if t.PriceUSD != "" {
			p, err := scale(t.PriceUSD, oracle.PriceDecimals)
			if err != nil {
				return nil, fmt.Errorf("token %s price: %w", t.Symbol, err)
			}
			prices[addr] = p
		}
	}

	sys, err := state.New(state.Config{
		Self:     common.HexToAddress(envCfg.Self),
		Book:     book,
		Tokens:   tokens,
		Governor: gov,
		Ledger:   ledger.New(deps.Profits, logger.Named("ledger")),
		Logger:   logger.Named("state"),
	})
	if err != nil {
		return nil, err
	}
	env.System = sys

	env.Prices = deps.Prices
	if env.Prices == nil {
		env.Prices = oracle.NewStatic(prices)
	}
	env.Gas = deps.Gas
	if env.Gas == nil {
		env.Gas = chain.NewGasTracker(nil, logger.Named("gas"))
		if envCfg.GasPriceGwei > 0 {
			env.Gas.Set(gwei(envCfg.GasPriceGwei))
		}
	}

	for _, v := range envCfg.Venues {
		router, err := env.buildVenue(v, book, deps.Now)
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", v.Name, err)
		}
		if err := sys.RegisterVenue(owner, v.Name, router); err != nil {
			return nil, fmt.Errorf("venue %s: %w", v.Name, err)
		}
	}

	if err := env.buildProtocols(envCfg, book, tokens); err != nil {
		return nil, err
	}

	env.Pool = loan.NewPool(common.HexToAddress(cfg.Loan.Address), book, cfg.Loan.PremiumBps, logger.Named("loan"))
	for _, l := range envCfg.LoanLiquidity {
		asset, amount, err := env.amount(l.Token, l.Amount)
		if err != nil {
			return nil, fmt.Errorf("loan liquidity: %w", err)
		}
		if err := env.Pool.Fund(asset, amount); err != nil {
			return nil, fmt.Errorf("loan liquidity: %w", err)
		}
	}

	env.Adapter = venue.NewAdapter(venue.Options{
		Registry: sys.Venues,
		Book:     book,
		Params:   gov,
		Now:      deps.Now,
		Logger:   logger.Named("venue"),
	})
	env.Executor = action.NewExecutor(action.Options{
		Swapper: env.Adapter,
		Venues:  sys.Venues,
		Targets: env.Targets,
		Book:    book,
		Logger:  logger.Named("action"),
	})
	env.Registry = registry.New(registry.Options{
		Strategies:           deps.Strategies,
		Executions:           deps.Executions,
		Mirror:               deps.Mirror,
		Policy:               gov,
		MaxStrategiesPerUser: cfg.Registry.MaxStrategiesPerUser,
		MaxActions:           cfg.Registry.MaxActions,
		Now:                  deps.Now,
		Logger:               logger.Named("registry"),
	})
	env.Orchestrator, err = orchestrator.New(orchestrator.Options{
		System:     sys,
		Strategies: env.Registry,
		Executor:   env.Executor,
		Provider:   env.Pool,
		Prices:     env.Prices,
		Gas:        env.Gas,
		Publisher:  deps.Publisher,
		Now:        deps.Now,
		Logger:     logger.Named("orchestrator"),
	})
	if err != nil {
		return nil, err
	}
	env.Sequencer = orchestrator.NewSequencer(env.Orchestrator, gov, deps.Now)
	return env, nil
}

func withDefaults(d Deps) Deps {
	if d.Strategies == nil {
		d.Strategies = memory.NewStrategyStore()
	}
	if d.Executions == nil {
		d.Executions = memory.NewExecutionStore()
	}
	if d.Profits == nil {
		d.Profits = memory.NewProfitStore()
	}
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

func safetyParams(c config.SafetyConfig) domain.SafetyParams {
	p := domain.DefaultSafetyParams()
	p.MaxSlippageBps = c.MaxSlippageBps
	p.DeadlineBuffer = c.DeadlineBuffer
	p.MinProfitBps = c.MinProfitBps
	if c.MaxGasPriceGwei > 0 {
		p.MaxGasPrice = gwei(c.MaxGasPriceGwei)
	}
	if c.MaxExecutionTime > 0 {
		p.MaxExecutionTime = c.MaxExecutionTime
	}
	return p
}

func (e *Environment) buildVenue(v config.VenueConfig, book *token.Book, now func() time.Time) (venue.Router, error) {
	addr := common.HexToAddress(v.Address)
	switch v.Kind {
	case config.VenueConstantProduct:
		fee := v.FeeBps
		if fee == 0 {
			fee = sim.DefaultConstantProductFeeBps
		}
		r := sim.NewConstantProductRouter(addr, book, fee, now)
		for _, p := range v.Pools {
			a, ra, b, rb, err := e.reserves(p)
			if err != nil {
				return nil, err
			}
			if _, err := r.AddPair(a, b, ra, rb); err != nil {
				return nil, err
			}
		}
		return r, nil

	case config.VenueTiered:
		r := sim.NewTieredRouter(addr, book, now)
		for _, p := range v.Pools {
			a, ra, b, rb, err := e.reserves(p)
			if err != nil {
				return nil, err
			}
			if _, err := r.AddPool(a, b, p.Fee, ra, rb); err != nil {
				return nil, err
			}
		}
		return r, nil

	case config.VenueFixedRate:
		r := sim.NewFixedRateRouter(addr, book, now)
		for _, p := range v.Pools {
			if err := e.fixedRate(r, p); err != nil {
				return nil, err
			}
		}
		return r, nil
	}
	return nil, fmt.Errorf("unknown venue kind %q", v.Kind)
}

func (e *Environment) reserves(p config.PoolConfig) (common.Address, *big.Int, common.Address, *big.Int, error) {
	a, ra, err := e.amount(p.TokenA, p.ReserveA)
	if err != nil {
		return common.Address{}, nil, common.Address{}, nil, err
	}
	b, rb, err := e.amount(p.TokenB, p.ReserveB)
	if err != nil {
		return common.Address{}, nil, common.Address{}, nil, err
	}
	return a, ra, b, rb, nil
}

// fixedRate converts a whole-unit rate into a raw-unit fraction.
func (e *Environment) fixedRate(r *sim.FixedRateRouter, p config.PoolConfig) error {
	in, err := e.Token(p.TokenA)
	if err != nil {
		return err
	}
	out, err := e.Token(p.TokenB)
	if err != nil {
		return err
	}
	rate, err := decimal.NewFromString(p.Rate)
	if err != nil || rate.IsNegative() {
		return fmt.Errorf("%w: rate %q", ErrBadAmount, p.Rate)
	}
	decIn, err := e.System.Tokens.Decimals(in)
	if err != nil {
		return err
	}
	decOut, err := e.System.Tokens.Decimals(out)
	if err != nil {
		return err
	}

	raw := rate.Shift(int32(decOut) - int32(decIn))
	num := new(big.Int).Set(raw.Coefficient())
	den := big.NewInt(1)
	if exp := raw.Exponent(); exp > 0 {
		num.Mul(num, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
	} else if exp < 0 {
		den.Exp(big.NewInt(10), big.NewInt(int64(-exp)), nil)
	}
	if err := r.SetRate(in, out, num, den); err != nil {
		return err
	}

	if p.Inventory != "" {
		_, amount, err := e.amount(p.TokenB, p.Inventory)
		if err != nil {
			return err
		}
		return r.Fund(out, amount)
	}
	return nil
}

func (e *Environment) buildProtocols(c config.EnvironmentConfig, book *token.Book, tokens *token.Registry) error {
	if c.Lending != nil {
		lp := protocol.NewLendingPool(common.HexToAddress(c.Lending.Address), book, tokens, e.Prices)
		for _, r := range c.Lending.Reserves {
			asset, err := e.Token(r.Token)
			if err != nil {
				return fmt.Errorf("lending: %w", err)
			}
			if err := lp.AddReserve(asset, r.LTVBps); err != nil {
				return fmt.Errorf("lending: %w", err)
			}
			if r.Liquidity == "" {
				continue
			}
			_, amount, err := e.amount(r.Token, r.Liquidity)
			if err != nil {
				return fmt.Errorf("lending: %w", err)
			}
			if err := lp.Fund(asset, amount); err != nil {
				return fmt.Errorf("lending: %w", err)
			}
		}
		if err := e.Targets.Register(lp.Address(), lp); err != nil {
			return fmt.Errorf("lending: %w", err)
		}
		e.Lending = lp
	}

	if c.Wrapper != nil {
		wrapped, err := e.Token(c.Wrapper.Wrapped)
		if err != nil {
			return fmt.Errorf("wrapper: %w", err)
		}
		w := protocol.NewWrapper(common.HexToAddress(c.Wrapper.Address), wrapped, book)
		if err := e.Targets.Register(w.Address(), w); err != nil {
			return fmt.Errorf("wrapper: %w", err)
		}
		e.Wrapper = w
	}

	if c.Staking != nil {
		stake, err := e.Token(c.Staking.StakeToken)
		if err != nil {
			return fmt.Errorf("staking: %w", err)
		}
		reward, err := e.Token(c.Staking.RewardToken)
		if err != nil {
			return fmt.Errorf("staking: %w", err)
		}
		s := protocol.NewStakingPool(common.HexToAddress(c.Staking.Address), stake, reward, book)
		if err := e.Targets.Register(s.Address(), s); err != nil {
			return fmt.Errorf("staking: %w", err)
		}
		e.Staking = s
	}
	return nil
}

// Token resolves a configured symbol.
func (e *Environment) Token(symbol string) (common.Address, error) {
	addr, ok := e.symbols[strings.ToUpper(symbol)]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}
	return addr, nil
}

// Units converts a whole-unit decimal amount of symbol to raw units.
func (e *Environment) Units(symbol, amount string) (*big.Int, error) {
	_, v, err := e.amount(symbol, amount)
	return v, err
}

func (e *Environment) amount(symbol, amount string) (common.Address, *big.Int, error) {
	addr, err := e.Token(symbol)
	if err != nil {
		return common.Address{}, nil, err
	}
	dec, err := e.decimals(addr)
	if err != nil {
		return common.Address{}, nil, err
	}
	v, err := scale(amount, int32(dec))
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("%s: %w", symbol, err)
	}
	return addr, v, nil
}

func (e *Environment) decimals(addr common.Address) (uint8, error) {
	if e.System != nil {
		return e.System.Tokens.Decimals(addr)
	}
	return 0, errors.New("environment not assembled")
}

// Fund mints amount (whole units) of symbol to holder.
func (e *Environment) Fund(symbol, amount string, holder common.Address) error {
	asset, v, err := e.amount(symbol, amount)
	if err != nil {
		return err
	}
	return e.System.Book.Mint(asset, holder, v)
}

func scale(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil || d.IsNegative() {
		return nil, fmt.Errorf("%w: %q", ErrBadAmount, amount)
	}
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrBadAmount, amount, decimals)
	}
	return shifted.BigInt(), nil
}

func gwei(n uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(n), big.NewInt(1_000_000_000))
}
