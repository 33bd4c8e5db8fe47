package entity

// ChainDescriptor holds the configuration for a single EVM chain.
// Descriptors are built once at start-up and never mutated afterwards; several
// chains are served side by side, so every lookup is keyed by ChainID.
type ChainDescriptor struct {
	ChainID        uint64                     `json:"chainId" yaml:"chainId"`
	Name           string                     `json:"name" yaml:"name"`
	Identifier     string                     `json:"identifier" yaml:"identifier"`         // e.g. "ethereum", "optimism"
	PriceNamespace string                     `json:"priceNamespace" yaml:"priceNamespace"` // price index chain prefix
	RPCEndpoints   []string                   `json:"rpcEndpoints" yaml:"rpcEndpoints"`     // first is primary
	NamedAddresses map[string]AddressMetadata `json:"namedAddresses" yaml:"namedAddresses"`
}

// PrimaryRPC returns the first configured endpoint or "".
func (c ChainDescriptor) PrimaryRPC() string {
	if len(c.RPCEndpoints) == 0 {
		return ""
	}
	return c.RPCEndpoints[0]
}
