// Package pricing converts between collateral asset amounts and their USD
// value at internal precision. Pure given a price; no state of its own.
package pricing

import (
	"fmt"
	"math/big"

	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/registry"
)

type Converter struct {
	reg *registry.Registry
}

func NewConverter(reg *registry.Registry) *Converter {
	return &Converter{reg: reg}
}

// UsdValue returns the USD value of amount units of asset at internal
// precision: (price * feedAdjustment) * amount / internalScale.
func (c *Converter) UsdValue(asset ledger.Asset, amount *big.Int) (*big.Int, error) {
	price, err := c.latestPrice(asset)
	if err != nil {
		return nil, err
	}

	adjusted := fixedpoint.Mul(price, fixedpoint.FeedAdjustment)
	return fixedpoint.MulDiv(adjusted, amount, fixedpoint.InternalConfig.Scale), nil
}

// TokenAmountFromUsd returns the quantity of asset worth usdAmount:
// usdAmount * internalScale / (price * feedAdjustment). Truncation means
// the result can be minutely below the true ratio, which favors the
// protocol over the recipient.
func (c *Converter) TokenAmountFromUsd(asset ledger.Asset, usdAmount *big.Int) (*big.Int, error) {
	price, err := c.latestPrice(asset)
	if err != nil {
		return nil, err
	}

	adjusted := fixedpoint.Mul(price, fixedpoint.FeedAdjustment)
	return fixedpoint.MulDiv(usdAmount, fixedpoint.InternalConfig.Scale, adjusted), nil
}

// AccountCollateralValue sums the USD value of every registered asset the
// user holds. Zero balances contribute zero and skip the oracle entirely.
func (c *Converter) AccountCollateralValue(col *ledger.CollateralLedger, user ledger.Account) (*big.Int, error) {
	total := new(big.Int)

	for _, asset := range c.reg.Assets() {
		balance := col.Balance(user, asset)
		if balance.Sign() == 0 {
			continue
		}

		value, err := c.UsdValue(asset, balance)
		if err != nil {
			return nil, fmt.Errorf("value %s: %w", asset, err)
		}
		total.Add(total, value)
	}

	return total, nil
}

func (c *Converter) latestPrice(asset ledger.Asset) (*big.Int, error) {
	feed, ok := c.reg.Feed(asset)
	if !ok {
		return nil, fmt.Errorf("no feed for %s: %w", asset, oracle.ErrUnavailable)
	}

	price, err := feed.LatestPrice()
	if err != nil {
		return nil, fmt.Errorf("price for %s: %w", asset, err)
	}
	return price, nil
}
