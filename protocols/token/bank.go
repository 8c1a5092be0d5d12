package token

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Bank provides indexed access to a set of token ledgers by address.
type Bank struct {
	mu        sync.RWMutex
	byAddress map[common.Address]*Ledger
	all       []*Ledger
}

// NewBank creates a bank from a raw slice of token views, each backed by an
// empty ledger. IDs are assigned in slice order.
func NewBank(tokens []TokenView) (*Bank, error) {
	b := &Bank{byAddress: make(map[common.Address]*Ledger, len(tokens))}
	for _, t := range tokens {
		if _, err := b.Register(t); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Register creates a ledger for t and indexes it. The token ID is replaced
// with the next sequential ID.
func (b *Bank) Register(t TokenView) (*Ledger, error) {
	if t.Address == (common.Address{}) {
		return nil, ErrZeroAddress
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byAddress[t.Address]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateToken, t.Address.Hex())
	}
	t.ID = uint64(len(b.all))
	l := NewLedger(t)
	b.byAddress[t.Address] = l
	b.all = append(b.all, l)
	return l, nil
}

// Get retrieves a ledger by its token address.
func (b *Bank) Get(address common.Address) (*Ledger, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.byAddress[address]
	return l, ok
}

// All returns a defensive copy of the metadata of all tokens in the bank.
func (b *Bank) All() []TokenView {
	b.mu.RLock()
	defer b.mu.RUnlock()
	views := make([]TokenView, len(b.all))
	for i, l := range b.all {
		views[i] = l.View()
	}
	return views
}

func (b *Bank) ledger(address common.Address) (*Ledger, error) {
	l, ok := b.Get(address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, address.Hex())
	}
	return l, nil
}

// BalanceOf returns account's balance of token.
func (b *Bank) BalanceOf(token, account common.Address) (*uint256.Int, error) {
	l, err := b.ledger(token)
	if err != nil {
		return nil, err
	}
	return l.BalanceOf(account), nil
}

// Transfer moves amount of token from sender to recipient.
func (b *Bank) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	l, err := b.ledger(token)
	if err != nil {
		return err
	}
	return l.Transfer(from, to, amount)
}

// TransferFrom moves amount of token from owner to recipient using spender's allowance.
func (b *Bank) TransferFrom(token, spender, from, to common.Address, amount *uint256.Int) error {
	l, err := b.ledger(token)
	if err != nil {
		return err
	}
	return l.TransferFrom(spender, from, to, amount)
}
