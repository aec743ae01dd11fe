package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Book errors.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrUnknownSnapshot       = errors.New("unknown snapshot")
)

type holding struct {
	asset  common.Address
	holder common.Address
}

type allowance struct {
	asset   common.Address
	owner   common.Address
	spender common.Address
}

// change records the previous value of one slot so it can be undone.
type change struct {
	balance   *holding
	allowance *allowance
	prev      *big.Int // nil = slot did not exist
}

type revision struct {
	id           int
	journalIndex int
}

// Book is a journaled ledger of asset balances and allowances.
// Every mutation is recorded so a group of operations can be rolled back
// with RevertToSnapshot, which gives flash loans their all-or-nothing shape.
type Book struct {
	mu         sync.RWMutex
	balances   map[holding]*big.Int
	allowances map[allowance]*big.Int

	journal   []change
	revisions []revision
	nextRevID int
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{
		balances:   make(map[holding]*big.Int),
		allowances: make(map[allowance]*big.Int),
	}
}

// BalanceOf returns holder's balance of asset.
func (b *Book) BalanceOf(asset, holder common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if v, ok := b.balances[holding{asset, holder}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Allowance returns how much spender may pull from owner.
func (b *Book) Allowance(asset, owner, spender common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if v, ok := b.allowances[allowance{asset, owner, spender}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Mint credits amount of asset to holder.
func (b *Book) Mint(asset, holder common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := holding{asset, holder}
	b.setBalance(k, new(big.Int).Add(b.balance(k), amount))
	return nil
}

// Burn debits amount of asset from holder.
func (b *Book) Burn(asset, holder common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := holding{asset, holder}
	cur := b.balance(k)
	if cur.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, holder.Hex(), cur, amount)
	}
	b.setBalance(k, new(big.Int).Sub(cur, amount))
	return nil
}

// Transfer moves amount of asset from one holder to another.
func (b *Book) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.transfer(asset, from, to, amount)
}

// Approve sets spender's allowance over owner's asset to exactly amount.
func (b *Book) Approve(asset, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.setAllowance(allowance{asset, owner, spender}, new(big.Int).Set(amount))
	return nil
}

// TransferFrom moves amount from owner to recipient on behalf of spender,
// consuming spender's allowance.
func (b *Book) TransferFrom(asset, spender, owner, to common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := allowance{asset, owner, spender}
	cur := b.allowanceOf(k)
	if cur.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s may pull %s, needs %s", ErrInsufficientAllowance, spender.Hex(), cur, amount)
	}
	if err := b.transfer(asset, owner, to, amount); err != nil {
		return err
	}
	b.setAllowance(k, new(big.Int).Sub(cur, amount))
	return nil
}

// Snapshot marks the current state and returns an id for RevertToSnapshot.
func (b *Book) Snapshot() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextRevID
	b.nextRevID++
	b.revisions = append(b.revisions, revision{id: id, journalIndex: len(b.journal)})
	return id
}

// RevertToSnapshot undoes every change made since the snapshot was taken.
// Snapshots taken after it become invalid.
func (b *Book) RevertToSnapshot(id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.findRevision(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownSnapshot, id)
	}

	target := b.revisions[idx].journalIndex
	for i := len(b.journal) - 1; i >= target; i-- {
		c := b.journal[i]
		switch {
		case c.balance != nil:
			if c.prev == nil {
				delete(b.balances, *c.balance)
			} else {
				b.balances[*c.balance] = c.prev
			}
		case c.allowance != nil:
			if c.prev == nil {
				delete(b.allowances, *c.allowance)
			} else {
				b.allowances[*c.allowance] = c.prev
			}
		}
	}
	b.journal = b.journal[:target]
	b.revisions = b.revisions[:idx]
	b.compact()
	return nil
}

// Commit releases a snapshot, keeping its changes.
// Snapshots taken after it are released too.
func (b *Book) Commit(id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.findRevision(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownSnapshot, id)
	}
	b.revisions = b.revisions[:idx]
	b.compact()
	return nil
}

// Holdings returns every non-zero balance of asset, keyed by holder.
func (b *Book) Holdings(asset common.Address) map[common.Address]*big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[common.Address]*big.Int)
	for k, v := range b.balances {
		if k.asset == asset && v.Sign() > 0 {
			out[k.holder] = new(big.Int).Set(v)
		}
	}
	return out
}

func (b *Book) transfer(asset, from, to common.Address, amount *big.Int) error {
	fk := holding{asset, from}
	cur := b.balance(fk)
	if cur.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), cur, amount)
	}
	if from == to {
		return nil
	}
	tk := holding{asset, to}
	b.setBalance(fk, new(big.Int).Sub(cur, amount))
	b.setBalance(tk, new(big.Int).Add(b.balance(tk), amount))
	return nil
}

func (b *Book) balance(k holding) *big.Int {
	if v, ok := b.balances[k]; ok {
		return v
	}
	return new(big.Int)
}

func (b *Book) allowanceOf(k allowance) *big.Int {
	if v, ok := b.allowances[k]; ok {
		return v
	}
	return new(big.Int)
}

func (b *Book) setBalance(k holding, v *big.Int) {
	prev, ok := b.balances[k]
	if !ok {
		prev = nil
	}
	key := k
	b.journal = append(b.journal, change{balance: &key, prev: prev})
	b.balances[k] = v
}

func (b *Book) setAllowance(k allowance, v *big.Int) {
	prev, ok := b.allowances[k]
	if !ok {
		prev = nil
	}
	key := k
	b.journal = append(b.journal, change{allowance: &key, prev: prev})
	b.allowances[k] = v
}

func (b *Book) findRevision(id int) int {
	for i := len(b.revisions) - 1; i >= 0; i-- {
		if b.revisions[i].id == id {
			return i
		}
	}
	return -1
}

// compact drops the journal once no snapshot can reach it.
func (b *Book) compact() {
	if len(b.revisions) == 0 {
		b.journal = b.journal[:0]
	}
}

func validAmount(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
