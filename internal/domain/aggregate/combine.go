package aggregate

import (
	"math/big"

	"networth_aggregator/internal/domain/entity"
)

// CanonicalDecimals is the fixed-point base of every USD value produced by Combine.
const CanonicalDecimals uint8 = 18

var canonicalUnit = pow10(CanonicalDecimals)

// Combine values a balance at a price. Both operands are rebased onto
// CanonicalDecimals before multiplying and the product is divided by the
// base unit exactly once. Absent or unusable inputs yield (0, loading).
func Combine(balance *entity.BalanceRecord, price *entity.PriceQuote) (*big.Int, entity.Status) {
	if balance == nil || balance.Value == nil || price == nil || !price.Usable() {
		return new(big.Int), entity.StatusLoading
	}
	if balance.Value.Sign() < 0 {
		return new(big.Int), entity.StatusLoading
	}

	amount := Rebase(balance.Value, balance.Decimals, CanonicalDecimals)
	unit := Rebase(price.Value, price.Decimals, CanonicalDecimals)

	value := new(big.Int).Mul(amount, unit)
	value.Quo(value, canonicalUnit)
	return value, entity.StatusSuccess
}

// Rebase rescales v from `from` decimals to `to` decimals, truncating when scaling down.
func Rebase(v *big.Int, from, to uint8) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	switch {
	case from == to:
		return new(big.Int).Set(v)
	case from < to:
		return new(big.Int).Mul(v, pow10(to-from))
	default:
		return new(big.Int).Quo(v, pow10(from-to))
	}
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
