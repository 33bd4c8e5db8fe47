package entity

import "math/big"

// Status is the settlement state of one contributor.
type Status int

const (
	StatusLoading Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "loading"
	}
}

// MarshalText implements encoding.TextMarshaler so statuses render as strings in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Settled reports whether the status is final for the current cycle.
func (s Status) Settled() bool {
	return s == StatusSuccess || s == StatusError
}

// ValuedHolding is one (chain, token, account) position valued in USD.
// USDValue is always derived from Balance and Price and uses 18 decimals.
type ValuedHolding struct {
	Key        string        `json:"key"`
	ChainID    uint64        `json:"chainId"`
	TokenAlias string        `json:"tokenAlias"`
	Account    string        `json:"account,omitempty"`
	Balance    BalanceRecord `json:"balance"`
	Price      PriceQuote    `json:"price"`
	USDValue   *big.Int      `json:"usdValue"`
	Status     Status        `json:"status"`
	Error      string        `json:"error,omitempty"`
}
