package engine

import (
	"fmt"
	"math/big"

	"SynthLedger/internal/event"
	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/ledger"
)

// Liquidate lets liquidator repay debtToCover of violator's debt and seize
// the matching collateral in asset plus a bonus, in one atomic pass. The
// whole operation reverts unless the violator's health factor strictly
// improves and the liquidator's own position stays healthy.
func (e *Engine) Liquidate(liquidator, violator ledger.Account, asset ledger.Asset, debtToCover *big.Int) error {
	return e.run("liquidate", func(tx *txn) error {
		if !fixedpoint.IsPositive(debtToCover) {
			return ErrInvalidAmount
		}
		tok, ok := e.collateralTokens[asset]
		if !ok {
			return fmt.Errorf("%s: %w", asset, ErrAssetNotAllowed)
		}
		debtToCover = fixedpoint.Clone(debtToCover)

		startRatio, err := e.healthFactor(violator)
		if err != nil {
			return err
		}
		if startRatio.Cmp(e.params.MinHealthFactor) >= 0 {
			return &HealthFactorOKError{User: violator, Ratio: startRatio}
		}

		base, err := e.conv.TokenAmountFromUsd(asset, debtToCover)
		if err != nil {
			return err
		}
		bonus := fixedpoint.MulDiv(base, e.params.LiquidationBonus, e.params.LiquidationPrecision)
		seized := new(big.Int).Add(base, bonus)

		if err := e.collateral.Decrease(violator, asset, seized); err != nil {
			return fmt.Errorf("seize %s from %s: %w", asset, violator, err)
		}
		tx.revertWith(func() { e.collateral.Increase(violator, asset, seized) })

		if !tok.Transfer(liquidator, seized) {
			return fmt.Errorf("pay out %s to %s: %w", asset, liquidator, ErrTransferFailed)
		}
		tx.revertWith(func() {
			if !tok.TransferFrom(liquidator, e.custody, seized) {
				panic(fmt.Sprintf("FATAL: could not reclaim %s from %s during rollback", asset, liquidator))
			}
		})

		if err := e.burnDebt(tx, debtToCover, violator, liquidator); err != nil {
			return err
		}

		endRatio, err := e.healthFactor(violator)
		if err != nil {
			return err
		}
		if endRatio.Cmp(startRatio) <= 0 {
			return ErrHealthFactorNotImproved
		}
		if _, err := e.assertHealthy(liquidator); err != nil {
			return err
		}

		if e.metrics != nil {
			e.metrics.LiquidationsCompleted.WithLabelValues(string(asset)).Inc()
		}
		e.logger.Info().
			Str("liquidator", string(liquidator)).
			Str("violator", string(violator)).
			Str("asset", string(asset)).
			Str("debt_covered", debtToCover.String()).
			Str("collateral_seized", seized.String()).
			Msg("position liquidated")

		tx.emit(&event.PositionLiquidated{
			Liquidator:           liquidator,
			Violator:             violator,
			Asset:                asset,
			DebtCovered:          debtToCover,
			CollateralSeized:     seized,
			StartingHealthFactor: startRatio,
			EndingHealthFactor:   endRatio,
		})
		return nil
	})
}
