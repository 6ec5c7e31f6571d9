package engine

import (
	"errors"
	"fmt"
	"math/big"

	"SynthLedger/internal/ledger"
	"SynthLedger/internal/oracle"
)

var (
	// ErrInvalidAmount rejects zero or negative amounts on any
	// amount-taking operation.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAssetNotAllowed rejects operations on unregistered collateral.
	ErrAssetNotAllowed = errors.New("collateral asset not allowed")

	// ErrTransferFailed surfaces a false return from an external token
	// transfer call.
	ErrTransferFailed = errors.New("token transfer failed")

	// ErrMintFailed surfaces a false return from the synthetic token mint.
	ErrMintFailed = errors.New("synthetic token mint failed")

	// ErrHealthFactorNotImproved rejects a liquidation that completed
	// without strictly raising the violator's ratio.
	ErrHealthFactorNotImproved = errors.New("liquidation did not improve health factor")
)

// HealthFactorBrokenError reports a failed post-operation solvency check,
// carrying the computed ratio for diagnostics.
type HealthFactorBrokenError struct {
	User  ledger.Account
	Ratio *big.Int
}

func (e *HealthFactorBrokenError) Error() string {
	return fmt.Sprintf("health factor broken for %s: %s", e.User, e.Ratio)
}

// HealthFactorOKError reports a liquidation attempt against a position that
// is not liquidatable.
type HealthFactorOKError struct {
	User  ledger.Account
	Ratio *big.Int
}

func (e *HealthFactorOKError) Error() string {
	return fmt.Sprintf("position of %s is healthy (%s), not liquidatable", e.User, e.Ratio)
}

// rejectReason maps an operation error to a metrics label.
func rejectReason(err error) string {
	var broken *HealthFactorBrokenError
	var healthy *HealthFactorOKError

	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrAssetNotAllowed):
		return "asset_not_allowed"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrMintFailed):
		return "mint_failed"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrHealthFactorNotImproved):
		return "health_factor_not_improved"
	case errors.Is(err, oracle.ErrUnavailable):
		return "oracle_unavailable"
	case errors.As(err, &broken):
		return "health_factor_broken"
	case errors.As(err, &healthy):
		return "health_factor_ok"
	default:
		return "error"
	}
}
