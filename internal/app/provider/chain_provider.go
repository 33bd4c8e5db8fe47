package provider

import (
	"sort"
	"strings"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/domain/entity"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type chainProviderImpl struct {
	chains    map[uint64]entity.ChainDescriptor
	byAddress map[uint64]map[common.Address]entity.AddressMetadata
	order     []uint64
}

var _ port.ChainRegistry = (*chainProviderImpl)(nil)

// NewChainProvider builds the read-only chain registry. Manifest entries are
// merged under configured ones: an alias defined in config is never overridden.
func NewChainProvider(chains []entity.ChainDescriptor, manifests map[uint64][]entity.AddressMetadata, logger *zap.Logger) port.ChainRegistry {
	log := logger.Named("ChainProvider")
	p := &chainProviderImpl{
		chains:    make(map[uint64]entity.ChainDescriptor, len(chains)),
		byAddress: make(map[uint64]map[common.Address]entity.AddressMetadata, len(chains)),
	}

	for _, chain := range chains {
		named := make(map[string]entity.AddressMetadata, len(chain.NamedAddresses))
		for alias, meta := range chain.NamedAddresses {
			named[alias] = withDefaults(alias, meta)
		}
		for _, meta := range manifests[chain.ChainID] {
			if _, exists := named[meta.Alias]; exists {
				log.Debug("Manifest alias already configured, keeping config entry", zap.Uint64("chain_id", chain.ChainID), zap.String("alias", meta.Alias))
				continue
			}
			named[meta.Alias] = withDefaults(meta.Alias, meta)
		}
		chain.NamedAddresses = named

		index := make(map[common.Address]entity.AddressMetadata, len(named))
		for alias, meta := range named {
			addr, ok := meta.ValidAddress()
			if !ok {
				log.Warn("Skipping unusable address", zap.Uint64("chain_id", chain.ChainID), zap.String("alias", alias), zap.String("address", meta.Address))
				continue
			}
			index[addr] = meta
		}

		p.chains[chain.ChainID] = chain
		p.byAddress[chain.ChainID] = index
		p.order = append(p.order, chain.ChainID)
		log.Info("Chain registered",
			zap.Uint64("chain_id", chain.ChainID),
			zap.String("name", chain.Name),
			zap.String("price_namespace", chain.PriceNamespace),
			zap.Int("named_addresses", len(named)))
	}
	sort.Slice(p.order, func(i, j int) bool { return p.order[i] < p.order[j] })
	return p
}

func withDefaults(alias string, meta entity.AddressMetadata) entity.AddressMetadata {
	if meta.Alias == "" {
		meta.Alias = alias
	}
	meta.Decimals, meta.DecimalsSet = meta.EffectiveDecimals(), true
	meta.Category = meta.EffectiveCategory()
	meta.Address = strings.TrimSpace(meta.Address)
	return meta
}

// Chain implements port.ChainRegistry.
func (p *chainProviderImpl) Chain(chainID uint64) (entity.ChainDescriptor, bool) {
	c, ok := p.chains[chainID]
	return c, ok
}

// Chains implements port.ChainRegistry.
func (p *chainProviderImpl) Chains() []entity.ChainDescriptor {
	out := make([]entity.ChainDescriptor, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.chains[id])
	}
	return out
}

// Lookup implements port.ChainRegistry.
func (p *chainProviderImpl) Lookup(chainID uint64, alias string) (entity.AddressMetadata, bool) {
	c, ok := p.chains[chainID]
	if !ok {
		return entity.AddressMetadata{}, false
	}
	meta, ok := c.NamedAddresses[alias]
	return meta, ok
}

// LookupByAddress implements port.ChainRegistry.
func (p *chainProviderImpl) LookupByAddress(chainID uint64, address common.Address) (entity.AddressMetadata, bool) {
	meta, ok := p.byAddress[chainID][address]
	return meta, ok
}
