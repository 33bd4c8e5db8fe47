package entity

// ContributorError describes one contributor that failed during an aggregation cycle.
type ContributorError struct {
	Key        string `json:"key"`
	ChainID    uint64 `json:"chainId"`
	TokenAlias string `json:"tokenAlias,omitempty"`
	Account    string `json:"account,omitempty"`
	Message    string `json:"message"`
}
