package protocol

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/action"
	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/token"
)

// Lending pool errors.
var (
	ErrUnknownReserve     = errors.New("unknown reserve")
	ErrHealthFactor       = errors.New("health factor below 1")
	ErrNoReserveLiquidity = errors.New("insufficient reserve liquidity")
)

// Interest rate modes accepted by borrow and repay.
const (
	RateModeStable   = 1
	RateModeVariable = 2
)

// Pricer returns the price of one whole unit of asset with 8 decimals.
type Pricer interface {
	AssetPrice(ctx context.Context, asset common.Address) (*big.Int, error)
}

// LendingPool is a minimal over-collateralized money market. Deposits and
// debts are tracked as synthetic assets in the book.
type LendingPool struct {
	address common.Address
	book    *token.Book
	tokens  *token.Registry
	pricer  Pricer

	mu       sync.RWMutex
	reserves map[common.Address]uint32 // asset -> loan-to-value in bps
}

// NewLendingPool creates a lending pool at address.
func NewLendingPool(address common.Address, book *token.Book, tokens *token.Registry, pricer Pricer) *LendingPool {
	return &LendingPool{
		address:  address,
		book:     book,
		tokens:   tokens,
		pricer:   pricer,
		reserves: make(map[common.Address]uint32),
	}
}

var _ action.Target = (*LendingPool)(nil)

// Address returns the pool address.
func (p *LendingPool) Address() common.Address {
	return p.address
}

// AddReserve lists asset with the given loan-to-value.
func (p *LendingPool) AddReserve(asset common.Address, ltvBps uint32) error {
	if ltvBps > domain.MaxBps {
		return fmt.Errorf("ltv %d exceeds %d bps", ltvBps, domain.MaxBps)
	}
	if _, err := p.tokens.Get(asset); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserves[asset] = ltvBps
	return nil
}

// Fund mints liquidity into the pool.
func (p *LendingPool) Fund(asset common.Address, amount *big.Int) error {
	return p.book.Mint(asset, p.address, amount)
}

// DepositToken is the receipt asset for supplied asset.
func (p *LendingPool) DepositToken(asset common.Address) common.Address {
	return syntheticAsset(p.address, "deposit", asset)
}

// DebtToken is the debt asset for borrowed asset.
func (p *LendingPool) DebtToken(asset common.Address) common.Address {
	return syntheticAsset(p.address, "debt", asset)
}

// Call dispatches a pool call.
func (p *LendingPool) Call(ctx context.Context, c action.Call) ([]byte, error) {
	return atomically(p.book, func() ([]byte, error) { return p.call(ctx, c) })
}

func (p *LendingPool) call(ctx context.Context, c action.Call) ([]byte, error) {
	m, args, err := decodeCall(lendingABI, c.Data)
	if err != nil {
		return nil, err
	}
	asset, err := argAddress(args, 0)
	if err != nil {
		return nil, err
	}
	amount, err := argUint(args, 1)
	if err != nil {
		return nil, err
	}
	if err := p.checkReserve(asset); err != nil {
		return nil, err
	}

	switch m.Name {
	case "supply":
		onBehalfOf, err := argAddress(args, 2)
		if err != nil {
			return nil, err
		}
		return nil, p.supply(c.Caller, asset, amount, onBehalfOf)

	case "withdraw":
		to, err := argAddress(args, 2)
		if err != nil {
			return nil, err
		}
		out, err := p.withdraw(ctx, c.Caller, asset, amount, to)
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(out)

	case "borrow":
		mode, err := argUint(args, 2)
		if err != nil {
			return nil, err
		}
		onBehalfOf, err := argAddress(args, 4)
		if err != nil {
			return nil, err
		}
		return nil, p.borrow(ctx, c.Caller, asset, amount, mode, onBehalfOf)

	case "repay":
		onBehalfOf, err := argAddress(args, 3)
		if err != nil {
			return nil, err
		}
		out, err := p.repay(c.Caller, asset, amount, onBehalfOf)
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(out)
	}
	return nil, ErrUnknownMethod
}

func (p *LendingPool) supply(caller, asset common.Address, amount *big.Int, onBehalfOf common.Address) error {
	if onBehalfOf != caller {
		return fmt.Errorf("%w: supply on behalf of %s", ErrNotPermitted, onBehalfOf.Hex())
	}
	if err := p.book.TransferFrom(asset, p.address, caller, p.address, amount); err != nil {
		return fmt.Errorf("supply: %w", err)
	}
	return p.book.Mint(p.DepositToken(asset), caller, amount)
}

func (p *LendingPool) withdraw(ctx context.Context, caller, asset common.Address, amount *big.Int, to common.Address) (*big.Int, error) {
	deposit := p.DepositToken(asset)
	if isMax(amount) {
		amount = p.book.BalanceOf(deposit, caller)
	}
	if err := p.book.Burn(deposit, caller, amount); err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	if err := p.checkHealth(ctx, caller); err != nil {
		return nil, err
	}
	if err := p.book.Transfer(asset, p.address, to, amount); err != nil {
		return nil, fmt.Errorf("withdraw: %w: %v", ErrNoReserveLiquidity, err)
	}
	return new(big.Int).Set(amount), nil
}

func (p *LendingPool) borrow(ctx context.Context, caller, asset common.Address, amount, mode *big.Int, onBehalfOf common.Address) error {
	if onBehalfOf != caller {
		return fmt.Errorf("%w: borrow on behalf of %s", ErrNotPermitted, onBehalfOf.Hex())
	}
	if !validRateMode(mode) {
		return fmt.Errorf("%w: interest rate mode %s", ErrBadArguments, mode)
	}
	if err := p.book.Mint(p.DebtToken(asset), caller, amount); err != nil {
		return fmt.Errorf("borrow: %w", err)
	}
	if err := p.checkHealth(ctx, caller); err != nil {
		return err
	}
	if err := p.book.Transfer(asset, p.address, caller, amount); err != nil {
		return fmt.Errorf("borrow: %w: %v", ErrNoReserveLiquidity, err)
	}
	return nil
}

func (p *LendingPool) repay(caller, asset common.Address, amount *big.Int, onBehalfOf common.Address) (*big.Int, error) {
	debt := p.book.BalanceOf(p.DebtToken(asset), onBehalfOf)
	if debt.Sign() == 0 {
		return nil, fmt.Errorf("%w: no debt to repay", ErrBadArguments)
	}
	if isMax(amount) || amount.Cmp(debt) > 0 {
		amount = debt
	}
	if err := p.book.TransferFrom(asset, p.address, caller, p.address, amount); err != nil {
		return nil, fmt.Errorf("repay: %w", err)
	}
	if err := p.book.Burn(p.DebtToken(asset), onBehalfOf, amount); err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}

// checkHealth requires LTV-weighted collateral value >= debt value.
func (p *LendingPool) checkHealth(ctx context.Context, user common.Address) error {
	type reserve struct {
		asset common.Address
		ltv   uint32
	}
	p.mu.RLock()
	reserves := make([]reserve, 0, len(p.reserves))
	for a, ltv := range p.reserves {
		reserves = append(reserves, reserve{a, ltv})
	}
	p.mu.RUnlock()
	sort.Slice(reserves, func(i, j int) bool { return reserves[i].asset.Hex() < reserves[j].asset.Hex() })

	collateral := new(big.Int)
	debt := new(big.Int)
	for _, r := range reserves {
		if deposited := p.book.BalanceOf(p.DepositToken(r.asset), user); deposited.Sign() > 0 {
			v, err := p.value(ctx, r.asset, deposited)
			if err != nil {
				return err
			}
			v.Mul(v, big.NewInt(int64(r.ltv)))
			collateral.Add(collateral, v.Quo(v, big.NewInt(domain.MaxBps)))
		}
		if owed := p.book.BalanceOf(p.DebtToken(r.asset), user); owed.Sign() > 0 {
			v, err := p.value(ctx, r.asset, owed)
			if err != nil {
				return err
			}
			debt.Add(debt, v)
		}
	}
	if debt.Cmp(collateral) > 0 {
		return fmt.Errorf("%w: debt %s > borrowable %s", ErrHealthFactor, debt, collateral)
	}
	return nil
}

// value converts a raw amount to 8-decimal USD.
func (p *LendingPool) value(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error) {
	decimals, err := p.tokens.Decimals(asset)
	if err != nil {
		return nil, err
	}
	price, err := p.pricer.AssetPrice(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("price %s: %w", asset.Hex(), err)
	}
	v := new(big.Int).Mul(amount, price)
	return v.Quo(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)), nil
}

func (p *LendingPool) checkReserve(asset common.Address) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, ok := p.reserves[asset]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReserve, asset.Hex())
	}
	return nil
}

func validRateMode(mode *big.Int) bool {
	return mode.IsInt64() && (mode.Int64() == RateModeStable || mode.Int64() == RateModeVariable)
}
