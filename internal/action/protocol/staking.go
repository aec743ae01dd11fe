package protocol

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/action"
	"flashloan-executor/internal/token"
)

// StakingPool accepts one stake asset and pays rewards in another.
// Stakes are tracked by a receipt asset, accrued rewards by an earned asset,
// both synthetic and held in the book.
type StakingPool struct {
	address     common.Address
	stakeAsset  common.Address
	rewardAsset common.Address
	book        *token.Book
}

// NewStakingPool creates a staking pool at address.
func NewStakingPool(address, stakeAsset, rewardAsset common.Address, book *token.Book) *StakingPool {
	return &StakingPool{
		address:     address,
		stakeAsset:  stakeAsset,
		rewardAsset: rewardAsset,
		book:        book,
	}
}

var _ action.Target = (*StakingPool)(nil)

// Address returns the pool address.
func (s *StakingPool) Address() common.Address {
	return s.address
}

// ReceiptToken tracks staked balances.
func (s *StakingPool) ReceiptToken() common.Address {
	return syntheticAsset(s.address, "stake", s.stakeAsset)
}

// EarnedToken tracks claimable rewards.
func (s *StakingPool) EarnedToken() common.Address {
	return syntheticAsset(s.address, "earned", s.rewardAsset)
}

// Earned returns user's claimable reward.
func (s *StakingPool) Earned(user common.Address) *big.Int {
	return s.book.BalanceOf(s.EarnedToken(), user)
}

// Notify funds amount of rewards and accrues it pro rata to current stakers.
// Rounding dust stays in the pool.
func (s *StakingPool) Notify(amount *big.Int) error {
	stakes := s.book.Holdings(s.ReceiptToken())
	total := new(big.Int)
	for _, v := range stakes {
		total.Add(total, v)
	}
	if total.Sign() == 0 {
		return fmt.Errorf("notify reward: no stakers")
	}
	if err := s.book.Mint(s.rewardAsset, s.address, amount); err != nil {
		return err
	}
	for holder, staked := range stakes {
		share := new(big.Int).Mul(amount, staked)
		share.Quo(share, total)
		if share.Sign() == 0 {
			continue
		}
		if err := s.book.Mint(s.EarnedToken(), holder, share); err != nil {
			return err
		}
	}
	return nil
}

// Call dispatches stake, withdraw and getReward.
func (s *StakingPool) Call(ctx context.Context, c action.Call) ([]byte, error) {
	return atomically(s.book, func() ([]byte, error) { return s.call(ctx, c) })
}

func (s *StakingPool) call(_ context.Context, c action.Call) ([]byte, error) {
	m, args, err := decodeCall(stakingABI, c.Data)
	if err != nil {
		return nil, err
	}

	switch m.Name {
	case "stake":
		amount, err := argUint(args, 0)
		if err != nil {
			return nil, err
		}
		if err := s.book.TransferFrom(s.stakeAsset, s.address, c.Caller, s.address, amount); err != nil {
			return nil, fmt.Errorf("stake: %w", err)
		}
		return nil, s.book.Mint(s.ReceiptToken(), c.Caller, amount)

	case "withdraw":
		amount, err := argUint(args, 0)
		if err != nil {
			return nil, err
		}
		if isMax(amount) {
			amount = s.book.BalanceOf(s.ReceiptToken(), c.Caller)
		}
		if err := s.book.Burn(s.ReceiptToken(), c.Caller, amount); err != nil {
			return nil, fmt.Errorf("withdraw: %w", err)
		}
		return nil, s.book.Transfer(s.stakeAsset, s.address, c.Caller, amount)

	case "getReward":
		earned := s.Earned(c.Caller)
		if earned.Sign() > 0 {
			if err := s.book.Burn(s.EarnedToken(), c.Caller, earned); err != nil {
				return nil, err
			}
			if err := s.book.Transfer(s.rewardAsset, s.address, c.Caller, earned); err != nil {
				return nil, err
			}
		}
		return m.Outputs.Pack(earned)
	}
	return nil, ErrUnknownMethod
}
