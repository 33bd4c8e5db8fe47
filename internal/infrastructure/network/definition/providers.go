package networkdefinition

import (
	"sort"

	"networth_aggregator/internal/domain/entity"
)

// Predefined chain descriptors. Configured networks inherit endpoints and the
// price namespace from here when they leave them empty.
var ( //nolint:gochecknoglobals // Global for definitions
	Ethereum = entity.ChainDescriptor{
		ChainID:        1,
		Name:           "Ethereum Mainnet",
		Identifier:     "ethereum",
		PriceNamespace: "ethereum",
		RPCEndpoints:   []string{"https://ethereum-rpc.publicnode.com", "https://rpc.ankr.com/eth", "https://eth.llamarpc.com"},
	}
	BSC = entity.ChainDescriptor{
		ChainID:        56,
		Name:           "BNB Smart Chain",
		Identifier:     "bsc",
		PriceNamespace: "bsc",
		RPCEndpoints:   []string{"https://1rpc.io/bnb", "https://bsc-dataseed2.binance.org/", "https://bsc.publicnode.com"},
	}
	Polygon = entity.ChainDescriptor{
		ChainID:        137,
		Name:           "Polygon PoS",
		Identifier:     "polygon",
		PriceNamespace: "polygon",
		RPCEndpoints:   []string{"https://polygon-rpc.com/", "https://polygon.publicnode.com"},
	}
	Arbitrum = entity.ChainDescriptor{
		ChainID:        42161,
		Name:           "Arbitrum One",
		Identifier:     "arbitrum",
		PriceNamespace: "arbitrum",
		RPCEndpoints:   []string{"https://arb1.arbitrum.io/rpc", "https://arbitrum.publicnode.com"},
	}
	Avalanche = entity.ChainDescriptor{
		ChainID:        43114,
		Name:           "Avalanche C-Chain",
		Identifier:     "avalanche",
		PriceNamespace: "avax",
		RPCEndpoints:   []string{"https://api.avax.network/ext/bc/C/rpc", "https://avalanche.public-rpc.com"},
	}
	Base = entity.ChainDescriptor{
		ChainID:        8453,
		Name:           "Base Mainnet",
		Identifier:     "base",
		PriceNamespace: "base",
		RPCEndpoints:   []string{"https://mainnet.base.org", "https://base.publicnode.com"},
	}
	Optimism = entity.ChainDescriptor{
		ChainID:        10,
		Name:           "OP Mainnet",
		Identifier:     "optimism",
		PriceNamespace: "optimism",
		RPCEndpoints:   []string{"https://mainnet.optimism.io", "https://optimism.publicnode.com"},
	}
	Gnosis = entity.ChainDescriptor{
		ChainID:        100,
		Name:           "Gnosis Chain",
		Identifier:     "gnosis",
		PriceNamespace: "xdai",
		RPCEndpoints:   []string{"https://rpc.gnosischain.com", "https://gnosis.publicnode.com"},
	}
	Fantom = entity.ChainDescriptor{
		ChainID:        250,
		Name:           "Fantom Opera",
		Identifier:     "fantom",
		PriceNamespace: "fantom",
		RPCEndpoints:   []string{"https://rpc.ftm.tools", "https://fantom.publicnode.com"},
	}
	Linea = entity.ChainDescriptor{
		ChainID:        59144,
		Name:           "Linea",
		Identifier:     "linea",
		PriceNamespace: "linea",
		RPCEndpoints:   []string{"https://rpc.linea.build"},
	}
	Scroll = entity.ChainDescriptor{
		ChainID:        534352,
		Name:           "Scroll",
		Identifier:     "scroll",
		PriceNamespace: "scroll",
		RPCEndpoints:   []string{"https://rpc.scroll.io"},
	}
	ZkSync = entity.ChainDescriptor{
		ChainID:        324,
		Name:           "zkSync Era",
		Identifier:     "zksync",
		PriceNamespace: "era",
		RPCEndpoints:   []string{"https://mainnet.era.zksync.io"},
	}
	Sepolia = entity.ChainDescriptor{
		ChainID:        11155111,
		Name:           "Sepolia",
		Identifier:     "sepolia",
		PriceNamespace: "ethereum",
		RPCEndpoints:   []string{"https://ethereum-sepolia-rpc.publicnode.com"},
	}
)

var predefined = map[uint64]entity.ChainDescriptor{ //nolint:gochecknoglobals // Global for definitions
	Ethereum.ChainID:  Ethereum,
	BSC.ChainID:       BSC,
	Polygon.ChainID:   Polygon,
	Arbitrum.ChainID:  Arbitrum,
	Avalanche.ChainID: Avalanche,
	Base.ChainID:      Base,
	Optimism.ChainID:  Optimism,
	Gnosis.ChainID:    Gnosis,
	Fantom.ChainID:    Fantom,
	Linea.ChainID:     Linea,
	Scroll.ChainID:    Scroll,
	ZkSync.ChainID:    ZkSync,
	Sepolia.ChainID:   Sepolia,
}

// Lookup returns the predefined descriptor for a chain ID.
func Lookup(chainID uint64) (entity.ChainDescriptor, bool) {
	def, ok := predefined[chainID]
	if !ok {
		return entity.ChainDescriptor{}, false
	}
	def.RPCEndpoints = append([]string(nil), def.RPCEndpoints...)
	return def, true
}

// All returns every predefined descriptor ordered by chain ID.
func All() []entity.ChainDescriptor {
	out := make([]entity.ChainDescriptor, 0, len(predefined))
	for id := range predefined {
		def, _ := Lookup(id)
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// Complete fills empty fields of a configured descriptor from the predefined table.
// Configured values always win.
func Complete(configured entity.ChainDescriptor) entity.ChainDescriptor {
	def, ok := Lookup(configured.ChainID)
	if !ok {
		return configured
	}
	if configured.Name == "" {
		configured.Name = def.Name
	}
	if configured.Identifier == "" {
		configured.Identifier = def.Identifier
	}
	if configured.PriceNamespace == "" {
		configured.PriceNamespace = def.PriceNamespace
	}
	if len(configured.RPCEndpoints) == 0 {
		configured.RPCEndpoints = def.RPCEndpoints
	}
	return configured
}
