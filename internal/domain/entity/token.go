package entity

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultDecimals is used when a named address does not specify decimals.
const DefaultDecimals uint8 = 18

// AddressCategory tells the aggregator what role a named address plays.
type AddressCategory string

const (
	CategoryToken       AddressCategory = "token"
	CategoryStakingPool AddressCategory = "stakingPool"
	CategoryVault       AddressCategory = "vault"
	CategoryEscrow      AddressCategory = "escrow"
)

// AddressMetadata describes one named on-chain address of a chain.
type AddressMetadata struct {
	Alias         string          `json:"alias" yaml:"alias"`
	Address       string          `json:"address" yaml:"address"`
	Decimals      uint8           `json:"decimals" yaml:"decimals"`
	PriceResolver string          `json:"priceResolver,omitempty" yaml:"priceResolver,omitempty"`
	Category      AddressCategory `json:"category,omitempty" yaml:"category,omitempty"`
	// Token is the alias of the token held by an escrow contract.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
	// DecimalsSet marks Decimals as configured; a zero Decimals without it means unspecified.
	DecimalsSet bool `json:"-" yaml:"-"`
}

// EffectiveDecimals returns Decimals, or DefaultDecimals when unspecified.
func (m AddressMetadata) EffectiveDecimals() uint8 {
	if m.Decimals == 0 && !m.DecimalsSet {
		return DefaultDecimals
	}
	return m.Decimals
}

// AddressSpec is how a named address is written in config files and manifests.
// Decimals is a pointer so that an explicit 0 survives decoding.
type AddressSpec struct {
	Alias         string          `json:"alias" yaml:"alias"`
	Address       string          `json:"address" yaml:"address"`
	Decimals      *uint8          `json:"decimals,omitempty" yaml:"decimals,omitempty"`
	PriceResolver string          `json:"priceResolver,omitempty" yaml:"priceResolver,omitempty"`
	Category      AddressCategory `json:"category,omitempty" yaml:"category,omitempty"`
	Token         string          `json:"token,omitempty" yaml:"token,omitempty"`
}

// Metadata converts the spec into AddressMetadata.
func (s AddressSpec) Metadata() AddressMetadata {
	m := AddressMetadata{
		Alias:         s.Alias,
		Address:       s.Address,
		PriceResolver: s.PriceResolver,
		Category:      s.Category,
		Token:         s.Token,
	}
	if s.Decimals != nil {
		m.Decimals, m.DecimalsSet = *s.Decimals, true
	}
	return m
}

// EffectiveCategory returns Category or CategoryToken when unset.
func (m AddressMetadata) EffectiveCategory() AddressCategory {
	if m.Category == "" {
		return CategoryToken
	}
	return m.Category
}

// ParseAddress validates a 0x-prefixed 20-byte hex address.
// Malformed and zero addresses are reported as absent.
func ParseAddress(s string) (common.Address, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, false
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}

// ValidAddress reports whether the metadata carries a usable address.
func (m AddressMetadata) ValidAddress() (common.Address, bool) {
	return ParseAddress(m.Address)
}
