package engine

import (
	"math/big"

	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/ledger"
)

// MaxHealthFactor is the sentinel for debt-free positions: a user with any
// collateral and zero debt is never liquidatable.
var MaxHealthFactor = fixedpoint.MaxUint256

// healthFactorFor derives the scale-normalized solvency ratio from a
// (debt, collateral value) pair, both at internal precision:
//
//	adjusted = collateralUsd * threshold / thresholdPrecision
//	ratio    = adjusted * internalScale / debtUsd
//
// Each step truncates; multiplication completes before division.
func healthFactorFor(p Params, debtUsd, collateralUsd *big.Int) *big.Int {
	if debtUsd.Sign() == 0 {
		return new(big.Int).Set(MaxHealthFactor)
	}

	adjusted := fixedpoint.MulDiv(collateralUsd, p.LiquidationThreshold, p.LiquidationPrecision)
	return fixedpoint.MulDiv(adjusted, fixedpoint.InternalConfig.Scale, debtUsd)
}

// HealthFactorFor computes the ratio for an arbitrary hypothetical
// (debt, collateral value) pair without touching ledger state.
func (e *Engine) HealthFactorFor(debtUsd, collateralUsd *big.Int) *big.Int {
	return healthFactorFor(e.params, debtUsd, collateralUsd)
}

// HealthFactor computes the user's current ratio from ledger state.
func (e *Engine) HealthFactor(user ledger.Account) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthFactor(user)
}

func (e *Engine) healthFactor(user ledger.Account) (*big.Int, error) {
	collateralUsd, err := e.conv.AccountCollateralValue(e.collateral, user)
	if err != nil {
		return nil, err
	}
	return healthFactorFor(e.params, e.debt.Balance(user), collateralUsd), nil
}

// assertHealthy recomputes the user's ratio and fails with
// HealthFactorBrokenError when it is below the minimum. Returns the
// computed ratio on success.
func (e *Engine) assertHealthy(user ledger.Account) (*big.Int, error) {
	ratio, err := e.healthFactor(user)
	if err != nil {
		return nil, err
	}
	if ratio.Cmp(e.params.MinHealthFactor) < 0 {
		return nil, &HealthFactorBrokenError{User: user, Ratio: ratio}
	}
	return ratio, nil
}
