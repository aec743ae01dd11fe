// Package loan provides the flash loan provider contract and an in-process
// pool implementing it over the token book.
package loan

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Loan errors.
var (
	ErrInvalidRequest        = errors.New("invalid flash loan request")
	ErrUnsupportedMode       = errors.New("unsupported interest rate mode")
	ErrInsufficientLiquidity = errors.New("insufficient reserve liquidity")
	ErrCallbackFailed        = errors.New("flash loan callback failed")
	ErrCallbackDeclined      = errors.New("flash loan callback returned false")
	ErrRepaymentFailed       = errors.New("flash loan repayment failed")
)

// ModeNoDebt is the only accepted mode: the loan must be repaid within the
// same operation.
const ModeNoDebt uint8 = 0

// Receiver is called by the provider once the borrowed funds are in place.
// Returning false or an error voids the loan.
type Receiver interface {
	OnLoanGranted(
		ctx context.Context,
		caller common.Address,
		assets []common.Address,
		amounts []*big.Int,
		premiums []*big.Int,
		initiator common.Address,
		params []byte,
	) (bool, error)
}

// Request is one flash loan request.
type Request struct {
	Assets     []common.Address
	Amounts    []*big.Int
	Modes      []uint8 // empty means all ModeNoDebt
	OnBehalfOf common.Address
	Params     []byte // passed to the receiver untouched
	Referral   uint16

	Receiver        Receiver
	ReceiverAddress common.Address // holder of the funds during the callback
}

// Provider grants flash loans.
type Provider interface {
	// Address is the identity the provider calls receivers from.
	Address() common.Address

	// FlashLoan transfers the requested amounts, invokes the receiver and
	// pulls back principal plus premium. Either every step succeeds or
	// nothing changes.
	FlashLoan(ctx context.Context, initiator common.Address, req Request) error

	// Premium returns the fee charged on amount.
	Premium(amount *big.Int) *big.Int
}
