package service

import (
	"context"
	"fmt"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/app/resolver"
	"networth_aggregator/internal/domain/entity"
)

// PriceService prices named addresses and raw token addresses.
type PriceService struct {
	resolvers *resolver.Registry
	registry  port.ChainRegistry
}

// NewPriceService creates a new PriceService.
func NewPriceService(resolvers *resolver.Registry, registry port.ChainRegistry) *PriceService {
	return &PriceService{resolvers: resolvers, registry: registry}
}

// Quote prices token, given either as an alias or as an address. Addresses
// that are not registered are priced by the market resolver.
func (s *PriceService) Quote(ctx context.Context, chainID uint64, token string) (entity.PriceQuote, entity.AddressMetadata, error) {
	if _, ok := s.registry.Chain(chainID); !ok {
		return entity.PriceQuote{}, entity.AddressMetadata{}, fmt.Errorf("chain %d: %w", chainID, entity.ErrUnknownChain)
	}

	meta, ok := s.registry.Lookup(chainID, token)
	if !ok {
		addr, valid := entity.ParseAddress(token)
		if !valid {
			return entity.PriceQuote{}, entity.AddressMetadata{}, fmt.Errorf("token %q on chain %d: %w", token, chainID, entity.ErrUnknownAddress)
		}
		meta, ok = s.registry.LookupByAddress(chainID, addr)
		if !ok {
			meta = entity.AddressMetadata{Alias: addr.Hex(), Address: addr.Hex(), Decimals: entity.DefaultDecimals}
		}
	}

	quote, err := s.PriceOf(ctx, chainID, meta)
	return quote, meta, err
}

// PriceOf resolves the unit price of a named address with its bound resolver.
func (s *PriceService) PriceOf(ctx context.Context, chainID uint64, meta entity.AddressMetadata) (entity.PriceQuote, error) {
	addr, ok := meta.ValidAddress()
	if !ok {
		return entity.PriceQuote{}, fmt.Errorf("%s on chain %d has no usable address: %w", meta.Alias, chainID, entity.ErrUnknownAddress)
	}
	return s.resolvers.Resolve(ctx, meta.PriceResolver, resolver.Request{ChainID: chainID, Token: addr})
}
