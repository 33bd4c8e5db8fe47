package entity

import (
	"math/big"
	"time"
)

// EscrowRecord is a single vesting entry held by an escrow contract for an account.
type EscrowRecord struct {
	ID             *big.Int  `json:"id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	InitialBalance *big.Int  `json:"initialBalance"`
	CurrentBalance *big.Int  `json:"currentBalance"`
	Claimable      *big.Int  `json:"claimable"`
}

// EscrowBalances folds all records of one account in one escrow contract.
type EscrowBalances struct {
	Claimable *big.Int       `json:"claimable"`
	Vesting   *big.Int       `json:"vesting"`
	Records   []EscrowRecord `json:"records"`
}

// ZeroEscrowBalances returns an empty result.
func ZeroEscrowBalances() EscrowBalances {
	return EscrowBalances{Claimable: new(big.Int), Vesting: new(big.Int), Records: []EscrowRecord{}}
}
