package entity

import "math/big"

// BalanceRecord is a raw on-chain amount together with the token's decimals.
// Records are replaced on every refresh, never mutated in place.
type BalanceRecord struct {
	Value    *big.Int `json:"value"`
	Decimals uint8    `json:"decimals"`
}

// ZeroBalance returns an empty record for the given decimals.
func ZeroBalance(decimals uint8) BalanceRecord {
	return BalanceRecord{Value: new(big.Int), Decimals: decimals}
}

// PriceQuote is a unit price scaled by 10^Decimals.
type PriceQuote struct {
	Value    *big.Int `json:"value"`
	Decimals uint8    `json:"decimals"`
}

// Usable reports whether the quote can take part in a valuation.
func (q PriceQuote) Usable() bool {
	return q.Value != nil && q.Value.Sign() >= 0
}

// IndexPrice is a quote as returned by the external price index.
type IndexPrice struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Decimals   uint8   `json:"decimals"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
}
