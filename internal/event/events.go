package event

import (
	"math/big"

	"SynthLedger/internal/ledger"
)

// CollateralDeposited records a successful collateral deposit.
type CollateralDeposited struct {
	User   ledger.Account `json:"user"`
	Asset  ledger.Asset   `json:"asset"`
	Amount *big.Int       `json:"amount"`
}

func (e *CollateralDeposited) EventType() Type { return TypeCollateralDeposited }

// CollateralRedeemed records collateral leaving custody. Recipient differs
// from User when a position is liquidated on the user's behalf.
type CollateralRedeemed struct {
	User      ledger.Account `json:"user"`
	Asset     ledger.Asset   `json:"asset"`
	Amount    *big.Int       `json:"amount"`
	Recipient ledger.Account `json:"recipient"`
}

func (e *CollateralRedeemed) EventType() Type { return TypeCollateralRedeemed }

// DebtMinted records new synthetic debt. HealthFactor is the user's ratio
// after the mint, always at or above the minimum.
type DebtMinted struct {
	User         ledger.Account `json:"user"`
	Amount       *big.Int       `json:"amount"`
	HealthFactor *big.Int       `json:"health_factor"`
}

func (e *DebtMinted) EventType() Type { return TypeDebtMinted }

// DebtBurned records debt repayment. Payer differs from DebtOwner when a
// liquidator covers someone else's debt.
type DebtBurned struct {
	DebtOwner ledger.Account `json:"debt_owner"`
	Payer     ledger.Account `json:"payer"`
	Amount    *big.Int       `json:"amount"`
}

func (e *DebtBurned) EventType() Type { return TypeDebtBurned }

// PositionLiquidated records a completed third-party liquidation.
type PositionLiquidated struct {
	Liquidator           ledger.Account `json:"liquidator"`
	Violator             ledger.Account `json:"violator"`
	Asset                ledger.Asset   `json:"asset"`
	DebtCovered          *big.Int       `json:"debt_covered"`
	CollateralSeized     *big.Int       `json:"collateral_seized"`
	StartingHealthFactor *big.Int       `json:"starting_health_factor"`
	EndingHealthFactor   *big.Int       `json:"ending_health_factor"`
}

func (e *PositionLiquidated) EventType() Type { return TypePositionLiquidated }
