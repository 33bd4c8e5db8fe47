package resolver

import (
	"context"
	"fmt"
	"math/big"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/app/refresh"
	"networth_aggregator/internal/domain/aggregate"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/infrastructure/network/contracts"

	"github.com/ethereum/go-ethereum/common"
)

// AMMShareResolver prices one share of a two-asset constant-ratio pool.
//
// One constituent (the quote asset, token1 preferred) must be registered and is
// priced through its own resolver; the other is priced by the reserve ratio.
// share = (r0*p0 + r1*p1) / totalSupply, everything rebased to 18 decimals.
type AMMShareResolver struct {
	clients  port.ClientProvider
	registry port.ChainRegistry
	coord    *refresh.Coordinator
}

// NewAMMShareResolver creates an AMM share resolver. coord caches decimals()
// reads of unregistered constituents and may be nil.
func NewAMMShareResolver(clients port.ClientProvider, registry port.ChainRegistry, coord *refresh.Coordinator) *AMMShareResolver {
	return &AMMShareResolver{clients: clients, registry: registry, coord: coord}
}

func (a *AMMShareResolver) Kind() Kind { return KindAMMShare }

type poolState struct {
	token0, token1     common.Address
	reserve0, reserve1 *big.Int
	supply             *big.Int
}

func (a *AMMShareResolver) Resolve(ctx context.Context, req Request, set ResolverSet) (entity.PriceQuote, error) {
	if req.Depth >= MaxDelegationDepth {
		return entity.PriceQuote{}, fmt.Errorf("pool %s at depth %d: %w", req.Token.Hex(), req.Depth, entity.ErrDelegationDepth)
	}

	caller, err := a.clients.GetClient(ctx, req.ChainID)
	if err != nil {
		return entity.PriceQuote{}, err
	}
	pool, err := readPool(ctx, caller, req.Token)
	if err != nil {
		return entity.PriceQuote{}, err
	}
	if pool.supply.Sign() == 0 || pool.reserve0.Sign() == 0 || pool.reserve1.Sign() == 0 {
		return entity.PriceQuote{}, fmt.Errorf("pool %s is empty: %w", req.Token.Hex(), entity.ErrUnresolvable)
	}

	meta0, ok0 := a.registry.LookupByAddress(req.ChainID, pool.token0)
	meta1, ok1 := a.registry.LookupByAddress(req.ChainID, pool.token1)

	var (
		quoteToken, otherToken     common.Address
		quoteMeta                  entity.AddressMetadata
		quoteReserve, otherReserve *big.Int
		otherDecimals              uint8
		otherKnown                 bool
		quoteIsToken0              bool
	)
	switch {
	case ok1:
		quoteToken, quoteMeta, quoteReserve = pool.token1, meta1, pool.reserve1
		otherToken, otherReserve = pool.token0, pool.reserve0
		if ok0 {
			otherDecimals, otherKnown = meta0.EffectiveDecimals(), true
		}
	case ok0:
		quoteToken, quoteMeta, quoteReserve = pool.token0, meta0, pool.reserve0
		otherToken, otherReserve = pool.token1, pool.reserve1
		quoteIsToken0 = true
	default:
		return entity.PriceQuote{}, fmt.Errorf("pool %s: neither %s nor %s is registered: %w",
			req.Token.Hex(), pool.token0.Hex(), pool.token1.Hex(), entity.ErrUnresolvable)
	}
	if !otherKnown {
		otherDecimals, err = a.decimals(ctx, req.ChainID, caller, otherToken)
		if err != nil {
			return entity.PriceQuote{}, err
		}
	}

	quotePrice, err := set.Resolve(ctx, quoteMeta.PriceResolver, Request{ChainID: req.ChainID, Token: quoteToken, Depth: req.Depth + 1})
	if err != nil {
		return entity.PriceQuote{}, fmt.Errorf("pool %s quote asset %s: %w", req.Token.Hex(), quoteToken.Hex(), err)
	}

	const d = aggregate.CanonicalDecimals
	unit := aggregate.Rebase(big.NewInt(1), 0, d)

	rQ := aggregate.Rebase(quoteReserve, quoteMeta.EffectiveDecimals(), d)
	rO := aggregate.Rebase(otherReserve, otherDecimals, d)
	pQ := aggregate.Rebase(quotePrice.Value, quotePrice.Decimals, d)
	if rQ.Sign() == 0 || rO.Sign() == 0 {
		return entity.PriceQuote{}, fmt.Errorf("pool %s reserves round to zero: %w", req.Token.Hex(), entity.ErrUnresolvable)
	}
	// implied price of the other asset from the reserve ratio
	pO := new(big.Int).Mul(pQ, rQ)
	pO.Quo(pO, rO)

	r0, p0, r1, p1 := rO, pO, rQ, pQ
	if quoteIsToken0 {
		r0, p0, r1, p1 = rQ, pQ, rO, pO
	}
	value := new(big.Int).Mul(r0, p0)
	value.Add(value, new(big.Int).Mul(r1, p1))
	value.Quo(value, unit)

	lpDecimals := entity.DefaultDecimals
	if meta, ok := a.registry.LookupByAddress(req.ChainID, req.Token); ok {
		lpDecimals = meta.EffectiveDecimals()
	}
	supply := aggregate.Rebase(pool.supply, lpDecimals, d)
	if supply.Sign() == 0 {
		return entity.PriceQuote{}, fmt.Errorf("pool %s supply rounds to zero: %w", req.Token.Hex(), entity.ErrUnresolvable)
	}

	share := value.Mul(value, unit)
	share.Quo(share, supply)
	return entity.PriceQuote{Value: share, Decimals: d}, nil
}

// readPool fetches token0, token1, reserves and supply in one batch. Any failed entry fails the read.
func readPool(ctx context.Context, caller port.ContractCaller, pair common.Address) (poolState, error) {
	results, err := caller.BatchCall(ctx, []entity.CallRequest{
		{ID: "token0", To: pair, Data: contracts.Pair.MustPack("token0")},
		{ID: "token1", To: pair, Data: contracts.Pair.MustPack("token1")},
		{ID: "getReserves", To: pair, Data: contracts.Pair.MustPack("getReserves")},
		{ID: "totalSupply", To: pair, Data: contracts.Pair.MustPack("totalSupply")},
	})
	if err != nil {
		return poolState{}, fmt.Errorf("pool %s: %w", pair.Hex(), err)
	}
	if len(results) != 4 {
		return poolState{}, fmt.Errorf("pool %s: expected 4 results, got %d: %w", pair.Hex(), len(results), entity.ErrMalformedResponse)
	}
	for _, r := range results {
		if r.Err != nil {
			return poolState{}, fmt.Errorf("pool %s %s: %w", pair.Hex(), r.ID, r.Err)
		}
	}

	var (
		st   poolState
		errs [4]error
	)
	st.token0, errs[0] = contracts.Pair.UnpackAddress("token0", results[0].Data)
	st.token1, errs[1] = contracts.Pair.UnpackAddress("token1", results[1].Data)
	reserves, rerr := contracts.UnpackReserves(results[2].Data)
	errs[2] = rerr
	st.supply, errs[3] = contracts.Pair.UnpackBigInt("totalSupply", results[3].Data)
	for _, e := range errs {
		if e != nil {
			return poolState{}, fmt.Errorf("pool %s: %w", pair.Hex(), e)
		}
	}
	st.reserve0, st.reserve1 = reserves.Reserve0, reserves.Reserve1
	return st, nil
}

// decimals returns decimals() of token. The value never changes, so any cached
// entry is used regardless of age.
func (a *AMMShareResolver) decimals(ctx context.Context, chainID uint64, caller port.ContractCaller, token common.Address) (uint8, error) {
	if a.coord == nil {
		return readDecimals(ctx, caller, token)
	}
	key := refresh.Key{Source: refresh.SourceDecimals, ChainID: chainID, Address: token.Hex()}
	if v, _, ok := refresh.Cached[uint8](a.coord, key); ok {
		return v, nil
	}
	return refresh.Fetch(ctx, a.coord, key, func(ctx context.Context) (uint8, error) {
		return readDecimals(ctx, caller, token)
	})
}

func readDecimals(ctx context.Context, caller port.ContractCaller, token common.Address) (uint8, error) {
	out, err := caller.Call(ctx, token, contracts.ERC20.MustPack("decimals"))
	if err != nil {
		return 0, fmt.Errorf("decimals of %s: %w", token.Hex(), err)
	}
	return contracts.ERC20.UnpackUint8("decimals", out)
}
