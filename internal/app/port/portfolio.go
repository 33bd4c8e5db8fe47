package port

import (
	"context"

	"networth_aggregator/internal/domain/aggregate"
	"networth_aggregator/internal/domain/entity"
)

// Selection is the set of accounts and chains a valuation runs over.
type Selection struct {
	Accounts []string `json:"accounts"`
	ChainIDs []uint64 `json:"chainIds"`
}

// Valuation is the settled result of one aggregation cycle.
type Valuation struct {
	Snapshot aggregate.Snapshot        `json:"snapshot"`
	Holdings []entity.ValuedHolding    `json:"holdings"`
	Errors   []entity.ContributorError `json:"errors,omitempty"`
}

// PortfolioService computes the aggregate valuations.
type PortfolioService interface {
	NetWorth(ctx context.Context, sel Selection) (Valuation, error)
	VestingNetWorth(ctx context.Context, sel Selection) (Valuation, error)
	TVL(ctx context.Context, chainIDs []uint64) (Valuation, error)
}
