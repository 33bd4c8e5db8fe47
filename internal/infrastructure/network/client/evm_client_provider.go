package client

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/domain/entity"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type dialFailure struct {
	err error
	at  time.Time
}

// evmClientProvider implements the port.ClientProvider interface.
type evmClientProvider struct {
	registry port.ChainRegistry
	opts     Options
	logger   *zap.Logger
	dials    singleflight.Group
	now      func() time.Time

	mu       sync.RWMutex
	clients  map[uint64]*EVMClient
	failures map[uint64]dialFailure
}

var _ port.ClientProvider = (*evmClientProvider)(nil)

// NewEVMClientProvider creates a provider that dials chains lazily from the registry.
func NewEVMClientProvider(registry port.ChainRegistry, opts Options, logger *zap.Logger) port.ClientProvider {
	return &evmClientProvider{
		registry: registry,
		opts:     opts.withDefaults(),
		logger:   logger.Named("EVMClientProvider"),
		now:      time.Now,
		clients:  make(map[uint64]*EVMClient),
		failures: make(map[uint64]dialFailure),
	}
}

// GetClient returns the cached client for a chain, dialing it on first use.
// Concurrent callers for one chain share a single dial, and other chains are
// never blocked by it. After a failed dial the error is returned for
// RedialBackoff before the chain is dialed again.
func (p *evmClientProvider) GetClient(ctx context.Context, chainID uint64) (port.ContractCaller, error) {
	p.mu.RLock()
	c, ok := p.clients[chainID]
	failure, failed := p.failures[chainID]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}
	if failed && p.now().Sub(failure.at) < p.opts.RedialBackoff {
		return nil, failure.err
	}

	chain, ok := p.registry.Chain(chainID)
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", chainID, entity.ErrUnknownChain)
	}

	ch := p.dials.DoChan(strconv.FormatUint(chainID, 10), func() (interface{}, error) {
		return p.dial(context.WithoutCancel(ctx), chain)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*EVMClient), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *evmClientProvider) dial(ctx context.Context, chain entity.ChainDescriptor) (*EVMClient, error) {
	p.mu.RLock()
	c, ok := p.clients[chain.ChainID]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}

	p.logger.Info("Creating new EVM client", zap.Uint64("chain_id", chain.ChainID), zap.String("rpc_primary", chain.PrimaryRPC()))
	c, err := NewEVMClient(ctx, chain, p.opts, p.logger)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("failed to create EVM client for chain %d: %w", chain.ChainID, err)
		p.failures[chain.ChainID] = dialFailure{err: err, at: p.now()}
		p.logger.Error("Failed to create EVM client",
			zap.Uint64("chain_id", chain.ChainID),
			zap.Duration("retry_after", p.opts.RedialBackoff),
			zap.Error(err))
		return nil, err
	}
	delete(p.failures, chain.ChainID)
	p.clients[chain.ChainID] = c
	p.logger.Info("EVM client ready", zap.Uint64("chain_id", chain.ChainID), zap.String("rpc", c.Endpoint()))
	return c, nil
}
