package port

// AccountProvider supplies the accounts tracked at start-up.
type AccountProvider interface {
	GetAccounts() ([]string, error)
}
