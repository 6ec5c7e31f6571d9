package ledger

import "math/big"

// DebtLedger is the per-user minted-debt store, denominated in the
// synthetic token's internal precision.
type DebtLedger struct {
	debts map[Account]*big.Int
}

func NewDebtLedger() *DebtLedger {
	return &DebtLedger{
		debts: make(map[Account]*big.Int),
	}
}

// Balance returns a copy of the user's recorded debt, zero for unseen users.
func (l *DebtLedger) Balance(account Account) *big.Int {
	if d, ok := l.debts[account]; ok {
		return new(big.Int).Set(d)
	}
	return new(big.Int)
}

// Increase adds amount to the user's debt.
func (l *DebtLedger) Increase(account Account, amount *big.Int) {
	d, ok := l.debts[account]
	if !ok {
		d = new(big.Int)
		l.debts[account] = d
	}
	d.Add(d, amount)
}

// Decrease subtracts amount from the user's debt. Fails with
// ErrInsufficientBalance when amount exceeds the recorded debt, leaving
// the store untouched. Debt never goes negative.
func (l *DebtLedger) Decrease(account Account, amount *big.Int) error {
	d, ok := l.debts[account]
	if !ok || d.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	d.Sub(d, amount)
	return nil
}
