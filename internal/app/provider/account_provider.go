package provider

import (
	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/infrastructure/accountloader"

	"go.uber.org/zap"
)

type accountProviderImpl struct {
	filePath string
	logger   *zap.Logger
}

// NewAccountProvider creates an AccountProvider reading from a plain-text file.
func NewAccountProvider(filePath string, logger *zap.Logger) port.AccountProvider {
	return &accountProviderImpl{filePath: filePath, logger: logger.Named("AccountProvider")}
}

// GetAccounts loads tracked accounts from the configured file.
func (p *accountProviderImpl) GetAccounts() ([]string, error) {
	p.logger.Debug("Loading accounts from file", zap.String("path", p.filePath))
	accounts, err := accountloader.LoadAccounts(p.filePath)
	if err != nil {
		p.logger.Error("Failed to load accounts", zap.String("path", p.filePath), zap.Error(err))
		return nil, err
	}
	p.logger.Info("Accounts loaded successfully", zap.Int("count", len(accounts)), zap.String("path", p.filePath))
	return accounts, nil
}
