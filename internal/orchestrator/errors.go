package orchestrator

import "errors"

// Precondition errors, reported before any loan is requested.
var (
	ErrEmptyRequest       = errors.New("assets and amounts must be non-empty")
	ErrLengthMismatch     = errors.New("assets and amounts differ in length")
	ErrDuplicateAsset     = errors.New("asset requested twice")
	ErrInvalidAmount      = errors.New("loan amount must be positive")
	ErrStrategyNotLive    = errors.New("strategy is inactive or expired")
	ErrNotAuthorized      = errors.New("caller may not execute this strategy")
	ErrNoLiquidity        = errors.New("loan pool cannot cover the request")
	ErrUnpricedAsset      = errors.New("asset cannot be valued")
	ErrStaleRequest       = errors.New("request waited longer than max execution time")
	ErrStrategyGasCeiling = errors.New("gas price above strategy ceiling")
)

// Integrity errors. Any of them voids the attempt in flight.
var (
	ErrReentrancy        = errors.New("reentrant execution")
	ErrUntrustedCaller   = errors.New("callback from untrusted caller")
	ErrInitiatorMismatch = errors.New("callback initiator is not this executor")
	ErrNoActiveAttempt   = errors.New("callback without an attempt in flight")
	ErrParamsMismatch    = errors.New("callback params do not match the attempt")
	ErrLoanNotReceived   = errors.New("borrowed funds not received")
)

// Profit errors.
var (
	ErrRepaymentShortfall = errors.New("balance cannot cover principal plus premium")
	ErrBelowMinProfit     = errors.New("profit below strategy minimum")
)
