// Package porttest provides in-memory fakes of the port interfaces for tests.
package porttest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/domain/entity"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrNoReply is returned for calls without a programmed reply.
var ErrNoReply = errors.New("execution reverted")

// Caller is a programmable port.ContractCaller keyed by (to, calldata).
type Caller struct {
	Chain uint64

	mu       sync.Mutex
	replies  map[string][]byte
	failures map[string]error
	batchErr error
	delay    time.Duration
	calls    int
	entries  int
}

var _ port.ContractCaller = (*Caller)(nil)

// NewCaller creates a fake caller for a chain.
func NewCaller(chainID uint64) *Caller {
	return &Caller{Chain: chainID, replies: make(map[string][]byte), failures: make(map[string]error)}
}

func callKey(to common.Address, data []byte) string {
	return strings.ToLower(to.Hex()) + ":" + hexutil.Encode(data)
}

// On programs the reply for a call.
func (c *Caller) On(to common.Address, data, reply []byte) *Caller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[callKey(to, data)] = reply
	return c
}

// Fail programs an error for a call.
func (c *Caller) Fail(to common.Address, data []byte, err error) *Caller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[callKey(to, data)] = err
	return c
}

// FailBatches makes every BatchCall fail as a whole.
func (c *Caller) FailBatches(err error) *Caller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batchErr = err
	return c
}

// Delay makes every round trip take d.
func (c *Caller) Delay(d time.Duration) *Caller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
	return c
}

func (c *Caller) wait(ctx context.Context) error {
	c.mu.Lock()
	d := c.delay
	c.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Calls returns the number of round trips (a batch counts once).
func (c *Caller) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Entries returns the number of individual eth_call entries issued.
func (c *Caller) Entries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries
}

func (c *Caller) ChainID() uint64 { return c.Chain }

func (c *Caller) reply(to common.Address, data []byte) ([]byte, error) {
	k := callKey(to, data)
	if err, ok := c.failures[k]; ok {
		return nil, err
	}
	if out, ok := c.replies[k]; ok {
		return out, nil
	}
	return nil, fmt.Errorf("%s: %w", k, ErrNoReply)
}

func (c *Caller) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.entries++
	return c.reply(to, data)
}

func (c *Caller) BatchCall(ctx context.Context, requests []entity.CallRequest) ([]entity.CallResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.entries += len(requests)
	if c.batchErr != nil {
		return nil, c.batchErr
	}
	out := make([]entity.CallResult, len(requests))
	for i, req := range requests {
		data, err := c.reply(req.To, req.Data)
		out[i] = entity.CallResult{ID: req.ID, Data: data, Err: err}
	}
	return out, nil
}

// Clients is a port.ClientProvider over fake callers.
type Clients map[uint64]port.ContractCaller

var _ port.ClientProvider = Clients(nil)

func (c Clients) GetClient(_ context.Context, chainID uint64) (port.ContractCaller, error) {
	caller, ok := c[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", chainID, entity.ErrUnknownChain)
	}
	return caller, nil
}

// PriceIndex is a fake port.PriceIndex keyed by "<namespace>:<lowercase address>".
type PriceIndex struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  int
}

var _ port.PriceIndex = (*PriceIndex)(nil)

// NewPriceIndex creates an empty fake index.
func NewPriceIndex() *PriceIndex {
	return &PriceIndex{prices: make(map[string]float64)}
}

// Set programs a USD price.
func (p *PriceIndex) Set(namespace string, token common.Address, price float64) *PriceIndex {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[namespace+":"+strings.ToLower(token.Hex())] = price
	return p
}

// Calls returns how many lookups were made.
func (p *PriceIndex) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *PriceIndex) GetPrice(_ context.Context, namespace, address string) (entity.IndexPrice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	price, ok := p.prices[namespace+":"+strings.ToLower(address)]
	if !ok {
		return entity.IndexPrice{}, fmt.Errorf("%s:%s: %w", namespace, address, entity.ErrPriceUnavailable)
	}
	return entity.IndexPrice{Price: price, Decimals: 18, Confidence: 0.99}, nil
}
