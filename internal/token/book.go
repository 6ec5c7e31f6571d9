package token

import (
	"math/big"
	"sync"

	"SynthLedger/internal/ledger"
)

// Book is a custodial book-entry token: per-holder balances kept
// in-process, with the engine's custody account acting as the source for
// outbound transfers. It satisfies both SyntheticToken and
// CollateralToken, so one implementation backs the synthetic issue and any
// collateral asset the service custodies.
type Book struct {
	mu       sync.Mutex
	balances map[ledger.Account]*big.Int
	supply   *big.Int
	custody  ledger.Account
}

func NewBook(custody ledger.Account) *Book {
	return &Book{
		balances: make(map[ledger.Account]*big.Int),
		supply:   new(big.Int),
		custody:  custody,
	}
}

// Credit seeds holder with amount out of thin air. This is the bridge for
// funds arriving from outside the service (on-ramp settlement).
func (b *Book) Credit(holder ledger.Account, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[holder] = new(big.Int).Add(b.balance(holder), amount)
	b.supply.Add(b.supply, amount)
}

// Mint creates amount units for to. Always succeeds for a book-entry
// token; the bool exists to satisfy the minter contract.
func (b *Book) Mint(to ledger.Account, amount *big.Int) bool {
	b.Credit(to, amount)
	return true
}

// Burn destroys amount units held in custody.
func (b *Book) Burn(amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[b.custody] = new(big.Int).Sub(b.balance(b.custody), amount)
	b.supply.Sub(b.supply, amount)
}

// TransferFrom moves amount from from to to. Fails when from cannot cover
// the amount.
func (b *Book) TransferFrom(from, to ledger.Account, amount *big.Int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.balance(from)
	if src.Cmp(amount) < 0 {
		return false
	}
	b.balances[from] = new(big.Int).Sub(src, amount)
	b.balances[to] = new(big.Int).Add(b.balance(to), amount)
	return true
}

// Transfer moves amount from custody to to.
func (b *Book) Transfer(to ledger.Account, amount *big.Int) bool {
	return b.TransferFrom(b.custody, to, amount)
}

// BalanceOf returns the holder's balance.
func (b *Book) BalanceOf(holder ledger.Account) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balance(holder))
}

// TotalSupply returns all outstanding units.
func (b *Book) TotalSupply() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.supply)
}

// balance must be called with the lock held; never returns nil.
func (b *Book) balance(holder ledger.Account) *big.Int {
	if v, ok := b.balances[holder]; ok {
		return v
	}
	return new(big.Int)
}
