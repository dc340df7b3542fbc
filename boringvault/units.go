package boringvault

import (
	"errors"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// ShareDecimals is the fixed decimal scale of the share mint.  Asset
// amounts use each mint's own decimals; shares are always scaled 1e9.
const ShareDecimals = 9

// A teller's ExchangeRate is the raw base-asset amount backing one whole
// share, so conversion in either direction scales by 10^ShareDecimals.

var (
	// ErrZeroRate is returned when converting through an exchange rate of
	// zero, which indicates an uninitialized teller.
	ErrZeroRate = errors.New("exchange rate is zero")

	// ErrAmountRange is returned when a conversion or parse result does
	// not fit in a uint64 raw amount.
	ErrAmountRange = errors.New("amount outside the uint64 range")

	// ErrAmountPrecision is returned when a parsed amount carries more
	// fractional digits than the unit's decimal scale.
	ErrAmountPrecision = errors.New("amount has more fractional digits than the unit allows")
)

var maxUint64Dec = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

func decimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// toUint64 converts an integral non-negative decimal to a raw amount.
func toUint64(d decimal.Decimal) (uint64, error) {
	if d.IsNegative() || d.Cmp(maxUint64Dec) > 0 {
		return 0, ErrAmountRange
	}
	return d.BigInt().Uint64(), nil
}

// SharesToAssets converts a raw share amount into the raw base-asset amount
// it is worth at rate, rounding down.
func SharesToAssets(shares, rate uint64) (uint64, error) {
	assets := decimalFromUint64(shares).
		Mul(decimalFromUint64(rate)).
		Shift(-ShareDecimals).
		Floor()
	return toUint64(assets)
}

// AssetsToShares converts a raw base-asset amount into the raw share amount
// it buys at rate, rounding down.
func AssetsToShares(assets, rate uint64) (uint64, error) {
	if rate == 0 {
		return 0, ErrZeroRate
	}
	// QuoRem with zero precision yields the exact integer quotient,
	// avoiding the library's bounded division precision.
	shares, _ := decimalFromUint64(assets).
		Shift(ShareDecimals).
		QuoRem(decimalFromUint64(rate), 0)
	return toUint64(shares)
}

// FormatShares renders a raw share amount in whole-share units.
func FormatShares(shares uint64) string {
	return FormatAmount(shares, ShareDecimals)
}

// ParseShares parses a whole-share amount into raw units.
func ParseShares(s string) (uint64, error) {
	return ParseAmount(s, ShareDecimals)
}

// FormatAmount renders a raw amount at the given decimal scale.
func FormatAmount(amount uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount),
		-int32(decimals)).String()
}

// ParseAmount parses a human amount at the given decimal scale into raw
// units.  Amounts with excess fractional digits are rejected rather than
// silently rounded.
func ParseAmount(s string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	raw := d.Shift(int32(decimals))
	if !raw.Equal(raw.Truncate(0)) {
		return 0, ErrAmountPrecision
	}
	return toUint64(raw)
}
