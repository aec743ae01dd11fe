package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ActionKind is the closed set of step types a strategy may contain.
// ActionCustom is the opaque-call variant: it invokes an arbitrary target
// with an arbitrary payload and is reported separately in telemetry.
type ActionKind uint8

const (
	ActionSwap ActionKind = iota
	ActionLend
	ActionBorrow
	ActionStake
	ActionUnstake
	ActionHarvest
	ActionWrap
	ActionUnwrap
	ActionCustom
)

var actionKindNames = [...]string{
	ActionSwap:    "SWAP",
	ActionLend:    "LEND",
	ActionBorrow:  "BORROW",
	ActionStake:   "STAKE",
	ActionUnstake: "UNSTAKE",
	ActionHarvest: "HARVEST",
	ActionWrap:    "WRAP",
	ActionUnwrap:  "UNWRAP",
	ActionCustom:  "CUSTOM",
}

// String returns the string representation of ActionKind.
func (k ActionKind) String() string {
	if int(k) < len(actionKindNames) {
		return actionKindNames[k]
	}
	return fmt.Sprintf("ActionKind(%d)", uint8(k))
}

// IsValid checks if the kind is a known value.
func (k ActionKind) IsValid() bool {
	return int(k) < len(actionKindNames)
}

// IsOpaque reports whether the kind calls an arbitrary target.
func (k ActionKind) IsOpaque() bool {
	return k == ActionCustom
}

// ParseActionKind parses a case-insensitive kind name.
func ParseActionKind(s string) (ActionKind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range actionKindNames {
		if n == name {
			return ActionKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown action kind %q", s)
}

// Action is one step of a strategy.
type Action struct {
	Kind        ActionKind
	Target      common.Address // venue, protocol or handler address
	Payload     []byte         // opaque call data
	Value       *big.Int       // native amount sent with the call, may be nil
	Critical    bool           // failure aborts the whole strategy
	Description string
}

// Clone returns a deep copy of the action.
func (a Action) Clone() Action {
	c := a
	if a.Payload != nil {
		c.Payload = append([]byte(nil), a.Payload...)
	}
	if a.Value != nil {
		c.Value = new(big.Int).Set(a.Value)
	}
	return c
}
