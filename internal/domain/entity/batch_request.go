package entity

import "github.com/ethereum/go-ethereum/common"

// CallRequest represents a single read-only contract call inside a batch.
type CallRequest struct {
	ID   string
	To   common.Address
	Data []byte
}

// CallResult represents the result of a single call from a batch.
// A failed entry carries Err and leaves the rest of the batch intact.
type CallResult struct {
	ID   string
	Data []byte
	Err  error
}
