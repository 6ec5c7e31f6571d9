package ledger

import (
	"errors"
	"math/big"
)

// Asset identifies a registered collateral token.
type Asset string

// Account identifies a user. Accounts are created implicitly on first use;
// unseen accounts hold zero balances.
type Account string

// ErrInsufficientBalance is returned when a decrease exceeds the recorded
// balance. The ledger only reports; enforcement policy lives in the caller.
var ErrInsufficientBalance = errors.New("insufficient balance")

type collateralKey struct {
	Account Account
	Asset   Asset
}

// CollateralLedger is the per-user, per-asset deposited-collateral store.
// It is a dumb keyed store: no health checks, no oracle awareness.
type CollateralLedger struct {
	balances map[collateralKey]*big.Int
}

func NewCollateralLedger() *CollateralLedger {
	return &CollateralLedger{
		balances: make(map[collateralKey]*big.Int),
	}
}

// Balance returns a copy of the recorded balance, zero for unseen keys.
func (l *CollateralLedger) Balance(account Account, asset Asset) *big.Int {
	if b, ok := l.balances[collateralKey{account, asset}]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Increase adds amount to the recorded balance. Amount must be positive;
// the caller validates before mutating.
func (l *CollateralLedger) Increase(account Account, asset Asset, amount *big.Int) {
	key := collateralKey{account, asset}
	b, ok := l.balances[key]
	if !ok {
		b = new(big.Int)
		l.balances[key] = b
	}
	b.Add(b, amount)
}

// Decrease subtracts amount from the recorded balance. Fails with
// ErrInsufficientBalance when amount exceeds the balance; the store is
// left untouched in that case. Balances never go negative.
func (l *CollateralLedger) Decrease(account Account, asset Asset, amount *big.Int) error {
	key := collateralKey{account, asset}
	b, ok := l.balances[key]
	if !ok || b.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	b.Sub(b, amount)
	return nil
}
