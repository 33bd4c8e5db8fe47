package refresh

import (
	"fmt"
	"strings"
)

// Source names used as the first key component.
const (
	SourceBalance      = "balance"
	SourceBalanceBatch = "balanceBatch"
	SourceAllowance    = "allowance"
	SourceTotalSupply  = "totalSupply"
	SourceDecimals     = "decimals"
	SourceEscrow       = "escrow"
)

// Key identifies one fetch. Identical keys share in-flight calls and cache entries.
type Key struct {
	Source  string
	ChainID uint64
	Address string
	Account string
	Extra   string
}

// String renders the key; addresses are compared case-insensitively.
func (k Key) String() string {
	return fmt.Sprintf("%s_%d_%s_%s_%s", k.Source, k.ChainID, strings.ToLower(k.Address), strings.ToLower(k.Account), k.Extra)
}
