package loan

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/observability"
	"flashloan-executor/internal/token"
)

// DefaultPremiumBps is the flash loan fee, 0.05%.
const DefaultPremiumBps uint32 = 5

// Pool is an in-process flash loan pool settling through the token book.
// Reserves are the pool address's balances.
type Pool struct {
	address    common.Address
	book       *token.Book
	premiumBps uint32
	logger     *zap.Logger
}

// NewPool creates a pool at address.
func NewPool(address common.Address, book *token.Book, premiumBps uint32, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		address:    address,
		book:       book,
		premiumBps: premiumBps,
		logger:     logger,
	}
}

var _ Provider = (*Pool)(nil)

// Address returns the pool address.
func (p *Pool) Address() common.Address {
	return p.address
}

// PremiumBps returns the configured fee in basis points.
func (p *Pool) PremiumBps() uint32 {
	return p.premiumBps
}

// Fund mints reserve liquidity.
func (p *Pool) Fund(asset common.Address, amount *big.Int) error {
	return p.book.Mint(asset, p.address, amount)
}

// Liquidity returns the pool's reserve of asset.
func (p *Pool) Liquidity(asset common.Address) *big.Int {
	return p.book.BalanceOf(asset, p.address)
}

// Available reports whether amount of asset can be borrowed.
func (p *Pool) Available(asset common.Address, amount *big.Int) bool {
	if amount == nil || amount.Sign() <= 0 {
		return false
	}
	return p.Liquidity(asset).Cmp(amount) >= 0
}

// Premium returns amount * premiumBps / 10000 rounded half up.
func (p *Pool) Premium(amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int)
	}
	v := new(big.Int).Mul(amount, big.NewInt(int64(p.premiumBps)))
	v.Add(v, big.NewInt(domain.MaxBps/2))
	return v.Quo(v, big.NewInt(domain.MaxBps))
}

// FlashLoan implements Provider.
func (p *Pool) FlashLoan(ctx context.Context, initiator common.Address, req Request) (err error) {
	if err := validate(req); err != nil {
		observability.RecordFlashLoan(false)
		return err
	}

	snap := p.book.Snapshot()
	defer func() {
		if err != nil {
			_ = p.book.RevertToSnapshot(snap)
			p.logger.Debug("flash loan voided",
				zap.String("initiator", initiator.Hex()),
				zap.Error(err),
			)
		} else {
			_ = p.book.Commit(snap)
		}
		observability.RecordFlashLoan(err == nil)
	}()

	premiums := make([]*big.Int, len(req.Assets))
	for i, asset := range req.Assets {
		if !p.Available(asset, req.Amounts[i]) {
			return fmt.Errorf("%w: %s of %s, have %s", ErrInsufficientLiquidity,
				req.Amounts[i], asset.Hex(), p.Liquidity(asset))
		}
		premiums[i] = p.Premium(req.Amounts[i])
		if err := p.book.Transfer(asset, p.address, req.ReceiverAddress, req.Amounts[i]); err != nil {
			return fmt.Errorf("transfer %s: %w", asset.Hex(), err)
		}
	}

	ok, err := req.Receiver.OnLoanGranted(ctx, p.address, copyAddrs(req.Assets), copyInts(req.Amounts), copyInts(premiums), initiator, req.Params)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCallbackFailed, err)
	}
	if !ok {
		return ErrCallbackDeclined
	}

	for i, asset := range req.Assets {
		owed := new(big.Int).Add(req.Amounts[i], premiums[i])
		if err := p.book.TransferFrom(asset, p.address, req.ReceiverAddress, p.address, owed); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrRepaymentFailed, asset.Hex(), err)
		}
	}
	return nil
}

func validate(req Request) error {
	switch {
	case req.Receiver == nil || req.ReceiverAddress == (common.Address{}):
		return fmt.Errorf("%w: no receiver", ErrInvalidRequest)
	case len(req.Assets) == 0:
		return fmt.Errorf("%w: no assets", ErrInvalidRequest)
	case len(req.Assets) != len(req.Amounts):
		return fmt.Errorf("%w: %d assets, %d amounts", ErrInvalidRequest, len(req.Assets), len(req.Amounts))
	case len(req.Modes) != 0 && len(req.Modes) != len(req.Assets):
		return fmt.Errorf("%w: %d assets, %d modes", ErrInvalidRequest, len(req.Assets), len(req.Modes))
	}

	seen := make(map[common.Address]struct{}, len(req.Assets))
	for i, asset := range req.Assets {
		if _, dup := seen[asset]; dup {
			return fmt.Errorf("%w: duplicate asset %s", ErrInvalidRequest, asset.Hex())
		}
		seen[asset] = struct{}{}
		if req.Amounts[i] == nil || req.Amounts[i].Sign() <= 0 {
			return fmt.Errorf("%w: amount %d must be positive", ErrInvalidRequest, i)
		}
		if len(req.Modes) != 0 && req.Modes[i] != ModeNoDebt {
			return fmt.Errorf("%w: %d", ErrUnsupportedMode, req.Modes[i])
		}
	}
	return nil
}

func copyAddrs(in []common.Address) []common.Address {
	return append([]common.Address(nil), in...)
}

func copyInts(in []*big.Int) []*big.Int {
	out := make([]*big.Int, len(in))
	for i, v := range in {
		out[i] = new(big.Int).Set(v)
	}
	return out
}
