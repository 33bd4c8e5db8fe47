package utils

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatBigInt converts a raw integer amount into a human-readable decimal string.
// Example: amount=1234500000000000000, decimals=18 => "1.2345"
func FormatBigInt(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// FormatUSD renders an 18-decimal fixed-point USD value with two decimals.
func FormatUSD(value *big.Int) string {
	if value == nil {
		return "0.00"
	}
	return decimal.NewFromBigInt(value, -18).StringFixed(2)
}

// DecimalToFixed converts a decimal into an integer scaled by 10^decimals, truncating extra precision.
func DecimalToFixed(d decimal.Decimal, decimals uint8) *big.Int {
	return d.Shift(int32(decimals)).Truncate(0).BigInt()
}

// USDFloat converts an 18-decimal fixed-point USD value to a float for gauges.
func USDFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	return decimal.NewFromBigInt(value, -18).InexactFloat64()
}
