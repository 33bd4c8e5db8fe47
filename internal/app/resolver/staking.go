package resolver

import (
	"context"
	"fmt"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/infrastructure/network/contracts"

	"github.com/ethereum/go-ethereum/common"
)

// StakingPoolResolver prices a staking pool share as its underlying staked token.
type StakingPoolResolver struct {
	clients  port.ClientProvider
	registry port.ChainRegistry
}

// NewStakingPoolResolver creates a staking pool resolver.
func NewStakingPoolResolver(clients port.ClientProvider, registry port.ChainRegistry) *StakingPoolResolver {
	return &StakingPoolResolver{clients: clients, registry: registry}
}

func (s *StakingPoolResolver) Kind() Kind { return KindStakingPool }

// Resolve reads stakingToken() and re-dispatches to the resolver registered for
// the underlying token. An underlying token missing from the registry is unresolvable.
func (s *StakingPoolResolver) Resolve(ctx context.Context, req Request, set ResolverSet) (entity.PriceQuote, error) {
	if req.Depth >= MaxDelegationDepth {
		return entity.PriceQuote{}, fmt.Errorf("staking pool %s at depth %d: %w", req.Token.Hex(), req.Depth, entity.ErrDelegationDepth)
	}

	caller, err := s.clients.GetClient(ctx, req.ChainID)
	if err != nil {
		return entity.PriceQuote{}, err
	}
	out, err := caller.Call(ctx, req.Token, contracts.StakingPool.MustPack("stakingToken"))
	if err != nil {
		return entity.PriceQuote{}, fmt.Errorf("staking pool %s: %w", req.Token.Hex(), err)
	}
	underlying, err := contracts.StakingPool.UnpackAddress("stakingToken", out)
	if err != nil {
		return entity.PriceQuote{}, err
	}
	if underlying == (common.Address{}) {
		return entity.PriceQuote{}, fmt.Errorf("staking pool %s has no staking token: %w", req.Token.Hex(), entity.ErrUnresolvable)
	}

	meta, ok := s.registry.LookupByAddress(req.ChainID, underlying)
	if !ok {
		return entity.PriceQuote{}, fmt.Errorf("staking token %s of pool %s is not registered on chain %d: %w",
			underlying.Hex(), req.Token.Hex(), req.ChainID, entity.ErrUnresolvable)
	}

	return set.Resolve(ctx, meta.PriceResolver, Request{ChainID: req.ChainID, Token: underlying, Depth: req.Depth + 1})
}
