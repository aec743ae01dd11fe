package protocol

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/action"
	"flashloan-executor/internal/token"
)

// Token exposes an ERC20 view of one asset in the book.
type Token struct {
	asset common.Address
	book  *token.Book
}

// NewToken creates an ERC20 target for asset.
func NewToken(asset common.Address, book *token.Book) *Token {
	return &Token{asset: asset, book: book}
}

var _ action.Target = (*Token)(nil)

// Call dispatches an ERC20 call.
func (t *Token) Call(ctx context.Context, c action.Call) ([]byte, error) {
	return atomically(t.book, func() ([]byte, error) { return t.call(ctx, c) })
}

func (t *Token) call(_ context.Context, c action.Call) ([]byte, error) {
	m, args, err := decodeCall(erc20ABI, c.Data)
	if err != nil {
		return nil, err
	}

	switch m.Name {
	case "transfer":
		to, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		amount, err := argUint(args, 1)
		if err != nil {
			return nil, err
		}
		if err := t.book.Transfer(t.asset, c.Caller, to, amount); err != nil {
			return nil, err
		}
		return m.Outputs.Pack(true)

	case "approve":
		spender, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		amount, err := argUint(args, 1)
		if err != nil {
			return nil, err
		}
		if err := t.book.Approve(t.asset, c.Caller, spender, amount); err != nil {
			return nil, err
		}
		return m.Outputs.Pack(true)

	case "balanceOf":
		holder, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(t.book.BalanceOf(t.asset, holder))

	case "allowance":
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		spender, err := argAddress(args, 1)
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(t.book.Allowance(t.asset, owner, spender))
	}
	return nil, ErrUnknownMethod
}
