package fixedpoint

import "math/big"

// DecimalConfig defines a fixed-point precision domain.
type DecimalConfig struct {
	DecimalPrecision int      // Number of decimal places
	Scale            *big.Int // 10^DecimalPrecision
}

var (
	// InternalConfig is the engine's internal precision. All ledger amounts,
	// USD values, and health factors live at this scale.
	InternalConfig = DecimalConfig{DecimalPrecision: 18, Scale: big.NewInt(1_000_000_000_000_000_000)}

	// FeedConfig is the precision price feeds report at.
	FeedConfig = DecimalConfig{DecimalPrecision: 8, Scale: big.NewInt(100_000_000)}

	// FeedAdjustment lifts a feed-precision price to internal precision
	// (10^(18-8)). Prices are always multiplied by this before any amount math.
	FeedAdjustment = big.NewInt(10_000_000_000)
)

// MaxUint256 is the largest value representable in the external token's
// 256-bit domain. Used as the health-factor sentinel for debt-free positions.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Mul returns a * b in a fresh big.Int.
func Mul(a, b *big.Int) *big.Int {
	return new(big.Int).Mul(a, b)
}

// MulDiv returns (a * b) / denom with the multiplication performed in full
// before the division. Division truncates toward zero; the truncation is a
// deliberate conservative-rounding policy and the operation order must not
// be rearranged.
func MulDiv(a, b, denom *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, denom)
}

// IsPositive reports whether v is a usable operation amount.
func IsPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

// Clone returns an independent copy of v, treating nil as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
