package resolver

import (
	"context"
	"fmt"
	"math/big"

	"networth_aggregator/internal/domain/aggregate"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/pkg/utils"

	"github.com/shopspring/decimal"
)

// FixedResolver returns a configured constant price without any network call.
type FixedResolver struct {
	quote entity.PriceQuote
}

// NewFixedResolver parses a decimal USD price such as "0.25".
func NewFixedResolver(price string) (*FixedResolver, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid fixed price %q: %w", price, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("fixed price %q is negative", price)
	}
	return &FixedResolver{quote: entity.PriceQuote{
		Value:    utils.DecimalToFixed(d, aggregate.CanonicalDecimals),
		Decimals: aggregate.CanonicalDecimals,
	}}, nil
}

func (f *FixedResolver) Kind() Kind { return KindFixed }

func (f *FixedResolver) Resolve(context.Context, Request, ResolverSet) (entity.PriceQuote, error) {
	return entity.PriceQuote{Value: new(big.Int).Set(f.quote.Value), Decimals: f.quote.Decimals}, nil
}
