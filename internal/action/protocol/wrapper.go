package protocol

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/action"
	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/token"
)

// Wrapper converts the native asset to its wrapped token one to one.
// Native value sent with deposit is held at the wrapper's address.
type Wrapper struct {
	address common.Address
	wrapped common.Address
	book    *token.Book
}

// NewWrapper creates a wrapper at address minting the wrapped asset.
func NewWrapper(address, wrapped common.Address, book *token.Book) *Wrapper {
	return &Wrapper{address: address, wrapped: wrapped, book: book}
}

var _ action.Target = (*Wrapper)(nil)

// Address returns the wrapper address.
func (w *Wrapper) Address() common.Address {
	return w.address
}

// Call dispatches deposit and withdraw.
func (w *Wrapper) Call(ctx context.Context, c action.Call) ([]byte, error) {
	return atomically(w.book, func() ([]byte, error) { return w.call(ctx, c) })
}

func (w *Wrapper) call(_ context.Context, c action.Call) ([]byte, error) {
	m, args, err := decodeCall(wrapperABI, c.Data)
	if err != nil {
		return nil, err
	}

	switch m.Name {
	case "deposit":
		if c.Value == nil || c.Value.Sign() <= 0 {
			return nil, fmt.Errorf("%w: deposit without value", ErrBadArguments)
		}
		return nil, w.book.Mint(w.wrapped, c.Caller, c.Value)

	case "withdraw":
		if c.Value != nil && c.Value.Sign() > 0 {
			return nil, fmt.Errorf("%w: withdraw is not payable", ErrNotPermitted)
		}
		amount, err := argUint(args, 0)
		if err != nil {
			return nil, err
		}
		if err := w.book.Burn(w.wrapped, c.Caller, amount); err != nil {
			return nil, err
		}
		return nil, w.book.Transfer(domain.NativeAsset, w.address, c.Caller, amount)
	}
	return nil, ErrUnknownMethod
}
