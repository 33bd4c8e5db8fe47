package resolver

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/app/refresh"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/infrastructure/configloader"
	"networth_aggregator/internal/pkg/metrics"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Kind is the closed set of price resolution strategies.
type Kind string

const (
	KindMarket      Kind = "market"
	KindStakingPool Kind = "stakingPool"
	KindAMMShare    Kind = "ammShare"
	KindFixed       Kind = "fixed"
)

// MaxDelegationDepth bounds how many times a resolution may be re-dispatched.
// A resolver that needs to delegate at this depth fails with ErrDelegationDepth.
const MaxDelegationDepth = 2

// Request identifies the token to price.
type Request struct {
	ChainID uint64
	Token   common.Address
	Depth   int
}

// ResolverSet re-dispatches a request to a resolver by name.
type ResolverSet interface {
	Resolve(ctx context.Context, name string, req Request) (entity.PriceQuote, error)
}

// PriceResolver is one pricing strategy. Resolvers that delegate receive the
// full set explicitly and must pass Depth+1.
type PriceResolver interface {
	Kind() Kind
	Resolve(ctx context.Context, req Request, set ResolverSet) (entity.PriceQuote, error)
}

// Registry maps resolver names to resolvers. Unknown or empty names fall back to the market resolver.
type Registry struct {
	resolvers map[string]PriceResolver
	fallback  PriceResolver
	coord     *refresh.Coordinator
	logger    *zap.Logger

	warned sync.Map
}

var _ ResolverSet = (*Registry)(nil)

// NewRegistry creates a registry whose fallback is market. coord may be nil to disable dedup and caching.
func NewRegistry(market PriceResolver, coord *refresh.Coordinator, logger *zap.Logger) *Registry {
	r := &Registry{
		resolvers: make(map[string]PriceResolver),
		fallback:  market,
		coord:     coord,
		logger:    logger.Named("ResolverRegistry"),
	}
	r.Register(string(KindMarket), market)
	return r
}

// Register binds a name to a resolver, replacing any previous binding.
func (r *Registry) Register(name string, res PriceResolver) {
	r.resolvers[name] = res
}

// Lookup returns the resolver for name or the market fallback.
func (r *Registry) Lookup(name string) PriceResolver {
	if res, ok := r.resolvers[name]; ok {
		return res
	}
	if name != "" {
		if _, seen := r.warned.LoadOrStore(name, struct{}{}); !seen {
			r.logger.Warn("Unknown price resolver, falling back to market", zap.String("resolver", name))
		}
	}
	return r.fallback
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.resolvers[name]
	return ok
}

// Resolve implements ResolverSet. Concurrent identical requests share one resolution.
func (r *Registry) Resolve(ctx context.Context, name string, req Request) (entity.PriceQuote, error) {
	res := r.Lookup(name)
	kind := res.Kind()

	resolve := func(ctx context.Context) (entity.PriceQuote, error) {
		return res.Resolve(ctx, req, r)
	}

	var (
		quote entity.PriceQuote
		err   error
	)
	if r.coord == nil || kind == KindFixed {
		quote, err = resolve(ctx)
	} else {
		key := refresh.Key{
			Source:  "price:" + nameOr(name, kind),
			ChainID: req.ChainID,
			Address: req.Token.Hex(),
			Extra:   "depth=" + strconv.Itoa(req.Depth),
		}
		quote, err = refresh.Fetch(ctx, r.coord, key, resolve)
	}

	metrics.ResolverOutcomes.WithLabelValues(string(kind), metrics.Result(err)).Inc()
	if err != nil {
		return entity.PriceQuote{}, err
	}
	if !quote.Usable() {
		return entity.PriceQuote{}, fmt.Errorf("%s resolver returned an unusable quote for %s: %w", kind, req.Token.Hex(), entity.ErrMalformedResponse)
	}
	return quote, nil
}

func nameOr(name string, kind Kind) string {
	if name == "" {
		return string(kind)
	}
	return name
}

// Deps are the collaborators needed to build the standard resolvers.
type Deps struct {
	Index    port.PriceIndex
	Clients  port.ClientProvider
	Registry port.ChainRegistry
	Coord    *refresh.Coordinator
}

// Build creates a registry with the standard resolvers plus the configured named entries.
func Build(cfgs []configloader.ResolverConfig, deps Deps, logger *zap.Logger) (*Registry, error) {
	reg := NewRegistry(NewMarketResolver(deps.Index, deps.Registry), deps.Coord, logger)
	reg.Register(string(KindStakingPool), NewStakingPoolResolver(deps.Clients, deps.Registry))
	reg.Register(string(KindAMMShare), NewAMMShareResolver(deps.Clients, deps.Registry, deps.Coord))

	for _, c := range cfgs {
		switch Kind(c.Kind) {
		case KindFixed:
			fixed, err := NewFixedResolver(c.Price)
			if err != nil {
				return nil, fmt.Errorf("resolver %q: %w", c.Name, err)
			}
			reg.Register(c.Name, fixed)
		case KindMarket, KindStakingPool, KindAMMShare:
			reg.Register(c.Name, reg.resolvers[c.Kind])
		default:
			return nil, fmt.Errorf("resolver %q has unknown kind %q: %w", c.Name, c.Kind, entity.ErrUnknownResolver)
		}
		reg.logger.Info("Price resolver registered", zap.String("name", c.Name), zap.String("kind", c.Kind))
	}
	return reg, nil
}

// CheckBindings logs, once at start-up, every named address whose resolver name is not registered.
func (r *Registry) CheckBindings(chains []entity.ChainDescriptor) {
	for _, chain := range chains {
		for alias, meta := range chain.NamedAddresses {
			if meta.PriceResolver == "" || r.Has(meta.PriceResolver) {
				continue
			}
			r.logger.Warn("Named address uses an unknown price resolver, market will be used",
				zap.Uint64("chain_id", chain.ChainID),
				zap.String("alias", alias),
				zap.String("resolver", meta.PriceResolver))
			r.warned.Store(meta.PriceResolver, struct{}{})
		}
	}
}
