// Package state holds the shared execution state every component is built on.
package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"flashloan-executor/internal/ledger"
	"flashloan-executor/internal/safety"
	"flashloan-executor/internal/token"
	"flashloan-executor/internal/venue"
)

// ErrNothingToRescue is returned when the executor holds none of the asset.
var ErrNothingToRescue = errors.New("nothing to rescue")

// System is the shared state of one executor instance. Fields are set once
// at construction; each referenced component enforces its own writer rules.
type System struct {
	Self     common.Address // identity holding borrowed funds
	Book     *token.Book
	Tokens   *token.Registry
	Governor *safety.Governor
	Ledger   *ledger.Ledger
	Venues   *venue.Registry

	logger *zap.Logger
}

// Config is the input of New.
type Config struct {
	Self     common.Address
	Book     *token.Book
	Tokens   *token.Registry
	Governor *safety.Governor
	Ledger   *ledger.Ledger
	Venues   *venue.Registry
	Logger   *zap.Logger
}

// New validates cfg and assembles a System.
func New(cfg Config) (*System, error) {
	switch {
	case cfg.Self == (common.Address{}):
		return nil, fmt.Errorf("self: %w", safety.ErrZeroAddress)
	case cfg.Book == nil, cfg.Governor == nil, cfg.Ledger == nil:
		return nil, errors.New("book, governor and ledger are required")
	}
	if cfg.Tokens == nil {
		cfg.Tokens = token.NewRegistry()
	}
	if cfg.Venues == nil {
		cfg.Venues = venue.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &System{
		Self:     cfg.Self,
		Book:     cfg.Book,
		Tokens:   cfg.Tokens,
		Governor: cfg.Governor,
		Ledger:   cfg.Ledger,
		Venues:   cfg.Venues,
		logger:   cfg.Logger,
	}, nil
}

// Owner returns the privileged identity.
func (s *System) Owner() common.Address {
	return s.Governor.Owner()
}

// RegisterVenue adds router under name. Owner only.
func (s *System) RegisterVenue(caller common.Address, name string, router venue.Router) error {
	if err := s.Governor.RequireOwner(caller); err != nil {
		return err
	}
	if err := s.Venues.Register(name, router); err != nil {
		return err
	}
	s.logger.Info("venue registered",
		zap.String("name", name),
		zap.String("router", router.Address().Hex()),
	)
	return nil
}

// RescueTokens moves the executor's whole balance of asset to recipient.
// Owner only, and only while the emergency stop is engaged.
func (s *System) RescueTokens(caller, asset, recipient common.Address) (*big.Int, error) {
	if err := s.Governor.RequireOwner(caller); err != nil {
		return nil, err
	}
	if !s.Governor.IsEmergencyStopped() {
		return nil, safety.ErrEmergencyRequired
	}
	if recipient == (common.Address{}) {
		return nil, fmt.Errorf("recipient: %w", safety.ErrZeroAddress)
	}

	amount := s.Book.BalanceOf(asset, s.Self)
	if amount.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingToRescue, asset.Hex())
	}
	if err := s.Book.Transfer(asset, s.Self, recipient, amount); err != nil {
		return nil, fmt.Errorf("rescue %s: %w", asset.Hex(), err)
	}

	s.logger.Warn("tokens rescued",
		zap.String("asset", asset.Hex()),
		zap.String("recipient", recipient.Hex()),
		zap.String("amount", amount.String()),
	)
	return amount, nil
}
