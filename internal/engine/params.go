package engine

import (
	"fmt"
	"math/big"

	"SynthLedger/internal/fixedpoint"
)

// Params holds the engine's numeric constants, fixed at construction.
type Params struct {
	// LiquidationThreshold is the fraction of raw collateral USD value
	// counted as safe backing for debt, over LiquidationPrecision.
	LiquidationThreshold *big.Int

	// LiquidationBonus is the extra collateral paid to a liquidator,
	// over LiquidationPrecision.
	LiquidationBonus *big.Int

	// LiquidationPrecision is the denominator for threshold and bonus.
	LiquidationPrecision *big.Int

	// MinHealthFactor is the lowest ratio a position may hold after any
	// state-mutating operation, at internal precision.
	MinHealthFactor *big.Int
}

// DefaultParams returns the production constants: 50% threshold, 10% bonus,
// minimum health factor 1.0 at 1e18.
func DefaultParams() Params {
	return Params{
		LiquidationThreshold: big.NewInt(50),
		LiquidationBonus:     big.NewInt(10),
		LiquidationPrecision: big.NewInt(100),
		MinHealthFactor:      fixedpoint.Clone(fixedpoint.InternalConfig.Scale),
	}
}

func (p Params) validate() error {
	for name, v := range map[string]*big.Int{
		"liquidation threshold": p.LiquidationThreshold,
		"liquidation bonus":     p.LiquidationBonus,
		"liquidation precision": p.LiquidationPrecision,
		"min health factor":     p.MinHealthFactor,
	} {
		if !fixedpoint.IsPositive(v) {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if p.LiquidationThreshold.Cmp(p.LiquidationPrecision) > 0 {
		return fmt.Errorf("liquidation threshold exceeds its precision")
	}
	return nil
}

// clone returns an independent copy so callers cannot mutate engine state
// through the returned big.Ints.
func (p Params) clone() Params {
	return Params{
		LiquidationThreshold: fixedpoint.Clone(p.LiquidationThreshold),
		LiquidationBonus:     fixedpoint.Clone(p.LiquidationBonus),
		LiquidationPrecision: fixedpoint.Clone(p.LiquidationPrecision),
		MinHealthFactor:      fixedpoint.Clone(p.MinHealthFactor),
	}
}
