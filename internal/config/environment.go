package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Venue kinds accepted in the environment.
const (
	VenueConstantProduct = "constant_product"
	VenueTiered          = "tiered"
	VenueFixedRate       = "fixed_rate"
)

// EnvironmentConfig describes tokens, venues and protocols of the in-process
// execution environment. Tokens are referenced by symbol; amounts are
// decimal strings in whole token units.
type EnvironmentConfig struct {
	Owner        string `mapstructure:"owner"`
	Self         string `mapstructure:"self"`
	GasPriceGwei uint64 `mapstructure:"gas_price_gwei"`

	Tokens        []TokenConfig  `mapstructure:"tokens"`
	Venues        []VenueConfig  `mapstructure:"venues"`
	LoanLiquidity []AmountConfig `mapstructure:"loan_liquidity"`
	Lending       *LendingConfig `mapstructure:"lending"`
	Wrapper       *WrapperConfig `mapstructure:"wrapper"`
	Staking       *StakingConfig `mapstructure:"staking"`
}

type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Address  string `mapstructure:"address"`
	Decimals uint8  `mapstructure:"decimals"`
	PriceUSD string `mapstructure:"price_usd"` // empty = unpriced
}

type VenueConfig struct {
	Name    string       `mapstructure:"name"`
	Kind    string       `mapstructure:"kind"`
	Address string       `mapstructure:"address"`
	FeeBps  uint32       `mapstructure:"fee_bps"` // constant_product only, 0 = 30
	Pools   []PoolConfig `mapstructure:"pools"`
}

// PoolConfig is a pair on a venue. Constant-product and tiered pools use
// reserves; tiered pools also need a fee tier. Fixed-rate pairs use Rate
// (TokenB per TokenA) and pay out of Inventory of TokenB.
type PoolConfig struct {
	TokenA    string `mapstructure:"token_a"`
	TokenB    string `mapstructure:"token_b"`
	ReserveA  string `mapstructure:"reserve_a"`
	ReserveB  string `mapstructure:"reserve_b"`
	Fee       uint32 `mapstructure:"fee"`
	Rate      string `mapstructure:"rate"`
	Inventory string `mapstructure:"inventory"`
}

type AmountConfig struct {
	Token  string `mapstructure:"token"`
	Amount string `mapstructure:"amount"`
}

type LendingConfig struct {
	Address  string          `mapstructure:"address"`
	Reserves []ReserveConfig `mapstructure:"reserves"`
}

type ReserveConfig struct {
	Token     string `mapstructure:"token"`
	LTVBps    uint32 `mapstructure:"ltv_bps"`
	Liquidity string `mapstructure:"liquidity"`
}

type WrapperConfig struct {
	Address string `mapstructure:"address"`
	Wrapped string `mapstructure:"wrapped"` // token symbol
}

type StakingConfig struct {
	Address     string `mapstructure:"address"`
	StakeToken  string `mapstructure:"stake_token"`
	RewardToken string `mapstructure:"reward_token"`
}

// Validate checks addresses, symbols and amounts. An empty environment is
// valid.
func (e EnvironmentConfig) Validate() error {
	if e.Owner == "" && e.Self == "" && len(e.Tokens) == 0 && len(e.Venues) == 0 {
		return nil
	}

	var errs []error
	addr := func(field, v string) {
		if !common.IsHexAddress(v) || common.HexToAddress(v) == (common.Address{}) {
			errs = append(errs, fmt.Errorf("environment.%s: %q is not a non-zero address", field, v))
		}
	}
	amount := func(field, v string, required bool) {
		if v == "" && !required {
			return
		}
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			errs = append(errs, fmt.Errorf("environment.%s: %q is not a non-negative amount", field, v))
		}
	}

	addr("owner", e.Owner)
	addr("self", e.Self)

	symbols := make(map[string]bool, len(e.Tokens))
	for i, t := range e.Tokens {
		f := fmt.Sprintf("tokens[%d]", i)
		if t.Symbol == "" {
			errs = append(errs, fmt.Errorf("environment.%s: empty symbol", f))
		}
		if symbols[strings.ToUpper(t.Symbol)] {
			errs = append(errs, fmt.Errorf("environment.%s: duplicate symbol %q", f, t.Symbol))
		}
		symbols[strings.ToUpper(t.Symbol)] = true
		addr(f+".address", t.Address)
		amount(f+".price_usd", t.PriceUSD, false)
	}
	token := func(field, sym string) {
		if !symbols[strings.ToUpper(sym)] {
			errs = append(errs, fmt.Errorf("environment.%s: unknown token %q", field, sym))
		}
	}

	names := make(map[string]bool, len(e.Venues))
	for i, v := range e.Venues {
		f := fmt.Sprintf("venues[%d]", i)
		if v.Name == "" || names[v.Name] {
			errs = append(errs, fmt.Errorf("environment.%s: empty or duplicate name %q", f, v.Name))
		}
		names[v.Name] = true
		addr(f+".address", v.Address)
		switch v.Kind {
		case VenueConstantProduct, VenueTiered, VenueFixedRate:
		default:
			errs = append(errs, fmt.Errorf("environment.%s: unknown kind %q", f, v.Kind))
		}
		for j, p := range v.Pools {
			pf := fmt.Sprintf("%s.pools[%d]", f, j)
			token(pf+".token_a", p.TokenA)
			token(pf+".token_b", p.TokenB)
			if v.Kind == VenueFixedRate {
				amount(pf+".rate", p.Rate, true)
				amount(pf+".inventory", p.Inventory, false)
				continue
			}
			amount(pf+".reserve_a", p.ReserveA, true)
			amount(pf+".reserve_b", p.ReserveB, true)
			if v.Kind == VenueTiered && p.Fee == 0 {
				errs = append(errs, fmt.Errorf("environment.%s: tiered pool needs a fee tier", pf))
			}
		}
	}

	for i, l := range e.LoanLiquidity {
		f := fmt.Sprintf("loan_liquidity[%d]", i)
		token(f+".token", l.Token)
		amount(f+".amount", l.Amount, true)
	}
	if e.Lending != nil {
		addr("lending.address", e.Lending.Address)
		for i, r := range e.Lending.Reserves {
			f := fmt.Sprintf("lending.reserves[%d]", i)
			token(f+".token", r.Token)
			amount(f+".liquidity", r.Liquidity, false)
			if r.LTVBps > 10_000 {
				errs = append(errs, fmt.Errorf("environment.%s: ltv %d exceeds 10000", f, r.LTVBps))
			}
		}
	}
	if e.Wrapper != nil {
		addr("wrapper.address", e.Wrapper.Address)
		token("wrapper.wrapped", e.Wrapper.Wrapped)
	}
	if e.Staking != nil {
		addr("staking.address", e.Staking.Address)
		token("staking.stake_token", e.Staking.StakeToken)
		token("staking.reward_token", e.Staking.RewardToken)
	}

	return errors.Join(errs...)
}
