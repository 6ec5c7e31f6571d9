// Package token declares the external token collaborators the engine
// drives. Implementations live outside this core; tests use the mocks in
// internal/testutil. A false return from any transfer-like call is a
// reported failure, not a fault; the engine surfaces it as an error and
// rolls the enclosing operation back.
package token

import (
	"math/big"

	"SynthLedger/internal/ledger"
)

// SyntheticToken is the USD-pegged token the engine mints against
// collateral. The engine must be its sole authorized minter and burner.
type SyntheticToken interface {
	// Mint creates amount units for to, reporting success.
	Mint(to ledger.Account, amount *big.Int) bool

	// Burn destroys amount units held in the caller's own custody.
	Burn(amount *big.Int)

	// TransferFrom moves amount units from from to to, reporting success.
	TransferFrom(from, to ledger.Account, amount *big.Int) bool

	// BalanceOf returns the holder's current balance.
	BalanceOf(holder ledger.Account) *big.Int
}

// CollateralToken is a standard transferable asset accepted as collateral.
type CollateralToken interface {
	// TransferFrom moves amount units from from to to, reporting success.
	TransferFrom(from, to ledger.Account, amount *big.Int) bool

	// Transfer moves amount units from the caller's custody to to,
	// reporting success.
	Transfer(to ledger.Account, amount *big.Int) bool
}
