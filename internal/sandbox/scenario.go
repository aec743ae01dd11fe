package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"flashloan-executor/internal/action"
	"flashloan-executor/internal/config"
	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/orchestrator"
	"flashloan-executor/internal/registry"
)

// Scenario is a set of strategies and the runs that execute them.
type Scenario struct {
	Strategies []StrategySpec `mapstructure:"strategies"`
	Runs       []RunSpec      `mapstructure:"runs"`
}

// StrategySpec declares a strategy by key. Actions reference venues by
// name and tokens by symbol.
type StrategySpec struct {
	Key          string        `mapstructure:"key"`
	Name         string        `mapstructure:"name"`
	Description  string        `mapstructure:"description"`
	Type         string        `mapstructure:"type"`
	Creator      string        `mapstructure:"creator"`
	MinProfitBps uint32        `mapstructure:"min_profit_bps"`
	Lifetime     time.Duration `mapstructure:"lifetime"` // deadline = now + lifetime
	Actions      []ActionSpec  `mapstructure:"actions"`
}

// ActionSpec is one step. Swaps use Venue/TokenIn/TokenOut/AmountIn (empty
// amount = whole balance); other kinds call Target with hex Data.
type ActionSpec struct {
	Kind        string `mapstructure:"kind"`
	Venue       string `mapstructure:"venue"`
	TokenIn     string `mapstructure:"token_in"`
	TokenOut    string `mapstructure:"token_out"`
	AmountIn    string `mapstructure:"amount_in"`
	MinOut      string `mapstructure:"min_out"`
	Fee         uint32 `mapstructure:"fee"`
	Target      string `mapstructure:"target"` // address, token symbol, or lending|wrapper|staking
	Data        string `mapstructure:"data"`
	Value       string `mapstructure:"value"` // native wei
	Critical    *bool  `mapstructure:"critical"`
	Description string `mapstructure:"description"`
}

// RunSpec executes one strategy Repeat times with the given loans.
type RunSpec struct {
	Strategy string                `mapstructure:"strategy"`
	Caller   string                `mapstructure:"caller"` // empty = strategy creator
	Loans    []config.AmountConfig `mapstructure:"loans"`
	Repeat   int                   `mapstructure:"repeat"`
}

// RunOutcome is the result of one executed run. Result is nil when the
// request was rejected before the loan.
type RunOutcome struct {
	Strategy   string
	StrategyID uint64
	Attempt    int
	Result     *domain.ExecutionResult
	Err        error
}

// LoadScenario reads the scenario section of a YAML file.
func LoadScenario(path string) (Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Scenario{}, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var sc Scenario
	if err := v.UnmarshalKey("scenario", &sc); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}
	if len(sc.Strategies) == 0 {
		return Scenario{}, errors.New("scenario declares no strategies")
	}
	return sc, nil
}

// Run registers every strategy and executes every run in order through the
// sequencer. Registration errors abort; execution errors are recorded in
// the outcome.
func (e *Environment) Run(ctx context.Context, sc Scenario, logger *zap.Logger) ([]RunOutcome, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := make(map[string]uint64, len(sc.Strategies))
	creators := make(map[string]common.Address, len(sc.Strategies))

	for _, s := range sc.Strategies {
		id, creator, err := e.createStrategy(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", s.Key, err)
		}
		ids[s.Key] = id
		creators[s.Key] = creator
		logger.Info("strategy registered", zap.String("key", s.Key), zap.Uint64("strategy_id", id))
	}

	var out []RunOutcome
	for i, r := range sc.Runs {
		id, ok := ids[r.Strategy]
		if !ok {
			return out, fmt.Errorf("run %d: unknown strategy %q", i, r.Strategy)
		}
		caller := creators[r.Strategy]
		if r.Caller != "" {
			caller = common.HexToAddress(r.Caller)
		}
		assets, amounts, err := e.loans(r.Loans)
		if err != nil {
			return out, fmt.Errorf("run %d: %w", i, err)
		}

		repeat := r.Repeat
		if repeat <= 0 {
			repeat = 1
		}
		for n := 0; n < repeat; n++ {
			res, err := e.Sequencer.Submit(ctx, orchestrator.Request{
				Caller:     caller,
				StrategyID: id,
				Assets:     assets,
				Amounts:    amounts,
			})
			out = append(out, RunOutcome{Strategy: r.Strategy, StrategyID: id, Attempt: n + 1, Result: res, Err: err})
			if err != nil {
				logger.Info("run rejected", zap.String("strategy", r.Strategy), zap.Int("attempt", n+1), zap.Error(err))
			}
		}
	}
	return out, nil
}

func (e *Environment) createStrategy(ctx context.Context, s StrategySpec) (uint64, common.Address, error) {
	if !common.IsHexAddress(s.Creator) {
		return 0, common.Address{}, fmt.Errorf("creator %q is not an address", s.Creator)
	}
	creator := common.HexToAddress(s.Creator)

	actions := make([]domain.Action, 0, len(s.Actions))
	for i, a := range s.Actions {
		act, err := e.action(a)
		if err != nil {
			return 0, common.Address{}, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, act)
	}

	lifetime := s.Lifetime
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	typ := domain.StrategyType(strings.ToUpper(s.Type))
	if s.Type == "" {
		typ = domain.StrategyTypeArbitrage
	}
	name := s.Name
	if name == "" {
		name = s.Key
	}
	desc := s.Description
	if desc == "" {
		desc = name
	}

	id, err := e.Registry.Create(ctx, creator, registry.CreateParams{
		Name:         name,
		Description:  desc,
		Type:         typ,
		Actions:      actions,
		Deadline:     e.now().Add(lifetime).Unix(),
		MinProfitBps: s.MinProfitBps,
	})
	return id, creator, err
}

func (e *Environment) action(a ActionSpec) (domain.Action, error) {
	kind, err := domain.ParseActionKind(a.Kind)
	if err != nil {
		return domain.Action{}, err
	}
	critical := true
	if a.Critical != nil {
		critical = *a.Critical
	}
	out := domain.Action{Kind: kind, Critical: critical, Description: a.Description}

	if kind == domain.ActionSwap {
		h, err := e.System.Venues.Resolve(a.Venue)
		if err != nil {
			return domain.Action{}, err
		}
		in, err := e.Token(a.TokenIn)
		if err != nil {
			return domain.Action{}, err
		}
		outTok, err := e.Token(a.TokenOut)
		if err != nil {
			return domain.Action{}, err
		}
		p := domain.SwapParams{TokenIn: in, TokenOut: outTok, Fee: a.Fee}
		if a.AmountIn != "" {
			if p.AmountIn, err = e.Units(a.TokenIn, a.AmountIn); err != nil {
				return domain.Action{}, err
			}
		}
		if a.MinOut != "" {
			if p.MinAmountOut, err = e.Units(a.TokenOut, a.MinOut); err != nil {
				return domain.Action{}, err
			}
		}
		if out.Payload, err = action.EncodeSwapPayload(p); err != nil {
			return domain.Action{}, err
		}
		out.Target = h.Router.Address()
		return out, nil
	}

	if out.Target, err = e.target(a.Target); err != nil {
		return domain.Action{}, err
	}
	if a.Data != "" {
		if out.Payload, err = hexutil.Decode(a.Data); err != nil {
			return domain.Action{}, fmt.Errorf("data: %w", err)
		}
	}
	if a.Value != "" {
		v, ok := new(big.Int).SetString(a.Value, 10)
		if !ok || v.Sign() < 0 {
			return domain.Action{}, fmt.Errorf("%w: value %q", ErrBadAmount, a.Value)
		}
		out.Value = v
	}
	return out, nil
}

func (e *Environment) target(name string) (common.Address, error) {
	switch strings.ToLower(name) {
	case "lending":
		if e.Lending != nil {
			return e.Lending.Address(), nil
		}
	case "wrapper":
		if e.Wrapper != nil {
			return e.Wrapper.Address(), nil
		}
	case "staking":
		if e.Staking != nil {
			return e.Staking.Address(), nil
		}
	}
	if common.IsHexAddress(name) {
		return common.HexToAddress(name), nil
	}
	return e.Token(name)
}

func (e *Environment) loans(specs []config.AmountConfig) ([]common.Address, []*big.Int, error) {
	assets := make([]common.Address, 0, len(specs))
	amounts := make([]*big.Int, 0, len(specs))
	for _, l := range specs {
		asset, amount, err := e.amount(l.Token, l.Amount)
		if err != nil {
			return nil, nil, err
		}
		assets = append(assets, asset)
		amounts = append(amounts, amount)
	}
	return assets, amounts, nil
}
