package entity

import "errors"

var (
	// ErrUnknownChain means the chain ID is not present in the registry.
	ErrUnknownChain = errors.New("unknown chain")

	// ErrUnknownResolver means no resolver is registered under the requested name.
	ErrUnknownResolver = errors.New("unknown price resolver")

	// ErrUnknownAddress means a named address was not found for the chain.
	ErrUnknownAddress = errors.New("unknown named address")

	// ErrPriceUnavailable means the price index had no usable quote.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrUnresolvable means the price cannot be computed from the on-chain state (e.g. an empty pool).
	ErrUnresolvable = errors.New("unresolvable price")

	// ErrDelegationDepth means a resolver chain exceeded the maximum delegation depth.
	ErrDelegationDepth = errors.New("price delegation depth exceeded")

	// ErrMalformedResponse means an RPC or HTTP response could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)
