package resolver

import (
	"context"
	"fmt"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/domain/aggregate"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/pkg/utils"

	"github.com/shopspring/decimal"
)

// MarketResolver prices a token from the external price index.
type MarketResolver struct {
	index    port.PriceIndex
	registry port.ChainRegistry
}

// NewMarketResolver creates a market resolver.
func NewMarketResolver(index port.PriceIndex, registry port.ChainRegistry) *MarketResolver {
	return &MarketResolver{index: index, registry: registry}
}

func (m *MarketResolver) Kind() Kind { return KindMarket }

// Resolve queries "<namespace>:<token>". Index failures are returned as errors, never as a zero price.
func (m *MarketResolver) Resolve(ctx context.Context, req Request, _ ResolverSet) (entity.PriceQuote, error) {
	chain, ok := m.registry.Chain(req.ChainID)
	if !ok {
		return entity.PriceQuote{}, fmt.Errorf("chain %d: %w", req.ChainID, entity.ErrUnknownChain)
	}
	namespace := chain.PriceNamespace
	if namespace == "" {
		namespace = chain.Identifier
	}

	price, err := m.index.GetPrice(ctx, namespace, req.Token.Hex())
	if err != nil {
		return entity.PriceQuote{}, fmt.Errorf("market price for %s on chain %d: %w", req.Token.Hex(), req.ChainID, err)
	}
	if price.Price <= 0 {
		return entity.PriceQuote{}, fmt.Errorf("market price for %s on chain %d: %w", req.Token.Hex(), req.ChainID, entity.ErrPriceUnavailable)
	}

	return entity.PriceQuote{
		Value:    utils.DecimalToFixed(decimal.NewFromFloat(price.Price), aggregate.CanonicalDecimals),
		Decimals: aggregate.CanonicalDecimals,
	}, nil
}
