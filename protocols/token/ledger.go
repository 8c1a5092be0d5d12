package token

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TokenView is the static metadata of a fungible token.
type TokenView struct {
	ID       uint64         `json:"id"`
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Ledger is an in-process fungible token with ERC-20 semantics.
// All amounts are 256-bit unsigned integers; a failed operation leaves every
// balance and allowance untouched.
type Ledger struct {
	mu         sync.RWMutex
	meta       TokenView
	balances   map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	supply     *uint256.Int
}

// NewLedger creates an empty ledger for the given token.
func NewLedger(meta TokenView) *Ledger {
	return &Ledger{
		meta:       meta,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		supply:     new(uint256.Int),
	}
}

// View returns the token metadata.
func (l *Ledger) View() TokenView {
	return l.meta
}

// Address returns the token address.
func (l *Ledger) Address() common.Address {
	return l.meta.Address
}

// TotalSupply returns a copy of the total supply.
func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply.Clone()
}

// BalanceOf returns a copy of the balance held by account.
func (l *Ledger) BalanceOf(account common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceOf(account).Clone()
}

// Allowance returns how much spender may still move on behalf of owner.
func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a, ok := l.allowances[allowanceKey{owner, spender}]; ok {
		return a.Clone()
	}
	return new(uint256.Int)
}

// Approve sets spender's allowance over owner's balance, replacing any previous value.
func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil {
		return ErrNilAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{owner, spender}] = amount.Clone()
	return nil
}

// Mint credits amount to account. It exists to seed balances; the rewards
// system itself never mints.
func (l *Ledger) Mint(account common.Address, amount *uint256.Int) error {
	if account == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil {
		return ErrNilAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(l.supply, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	l.supply = supply
	l.balances[account] = new(uint256.Int).Add(l.balanceOf(account), amount)
	return nil
}

// Transfer moves amount from sender to recipient.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(from, to, amount)
}

// TransferFrom moves amount from owner to recipient, spending spender's allowance.
// The allowance is checked before the balance, matching the reference token.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{from, spender}
	allowance, ok := l.allowances[key]
	if !ok || allowance.Lt(amount) {
		return fmt.Errorf("%w: token %s", ErrInsufficientAllowance, l.meta.Address.Hex())
	}
	if err := l.transfer(from, to, amount); err != nil {
		return err
	}
	l.allowances[key] = new(uint256.Int).Sub(allowance, amount)
	return nil
}

func (l *Ledger) transfer(from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBalance := l.balanceOf(from)
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: token %s", ErrInsufficientBalance, l.meta.Address.Hex())
	}
	if from == to {
		return nil
	}
	// Supply is bounded by 2^256-1, so the recipient's balance cannot overflow.
	l.balances[from] = new(uint256.Int).Sub(fromBalance, amount)
	l.balances[to] = new(uint256.Int).Add(l.balanceOf(to), amount)
	return nil
}

func (l *Ledger) balanceOf(account common.Address) *uint256.Int {
	if b, ok := l.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}
