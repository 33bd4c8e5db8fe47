package port

import (
	"context"

	"networth_aggregator/internal/domain/entity"

	"github.com/ethereum/go-ethereum/common"
)

// ContractCaller performs read-only contract calls on one chain.
type ContractCaller interface {
	// Call executes a single eth_call against the latest block.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)

	// BatchCall sends all requests in one JSON-RPC batch. Entries fail
	// individually through CallResult.Err; the returned error is set only
	// when the batch itself could not be delivered.
	BatchCall(ctx context.Context, requests []entity.CallRequest) ([]entity.CallResult, error)

	// ChainID returns the chain this caller is bound to.
	ChainID() uint64
}

// ClientProvider hands out one ContractCaller per chain.
type ClientProvider interface {
	GetClient(ctx context.Context, chainID uint64) (ContractCaller, error)
}

// ChainRegistry is the read-only lookup over chain descriptors and named addresses.
type ChainRegistry interface {
	Chain(chainID uint64) (entity.ChainDescriptor, bool)
	Chains() []entity.ChainDescriptor
	// Lookup finds a named address by alias.
	Lookup(chainID uint64, alias string) (entity.AddressMetadata, bool)
	// LookupByAddress finds a named address by its hex address, case-insensitively.
	LookupByAddress(chainID uint64, address common.Address) (entity.AddressMetadata, bool)
}
