package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/pkg/metrics"
	"networth_aggregator/internal/pkg/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options tune every EVM client created by the provider.
type Options struct {
	ConnectionTimeout time.Duration
	CallTimeout       time.Duration
	RateLimit         float64 // requests per second
	Burst             int
	MaxBatchSize      int
	// RedialBackoff is how long a failed dial is remembered before the chain is dialed again.
	RedialBackoff     time.Duration
}

func (o Options) withDefaults() Options {
	if o.ConnectionTimeout <= 0 {
		o.ConnectionTimeout = 10 * time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	if o.RedialBackoff <= 0 {
		o.RedialBackoff = 30 * time.Second
	}
	return o
}

// EVMClient implements port.ContractCaller for EVM-compatible chains.
type EVMClient struct {
	ethClient *ethclient.Client
	chain     entity.ChainDescriptor
	endpoint  string
	opts      Options
	limiter   *rate.Limiter
	logger    *zap.Logger
}

var _ port.ContractCaller = (*EVMClient)(nil)

// NewEVMClient dials the chain's RPC endpoints in order and keeps the first that answers.
func NewEVMClient(ctx context.Context, chain entity.ChainDescriptor, opts Options, logger *zap.Logger) (*EVMClient, error) {
	if len(chain.RPCEndpoints) == 0 {
		return nil, fmt.Errorf("network %d has no RPC endpoints configured", chain.ChainID)
	}
	opts = opts.withDefaults()
	var lastErr error

	for _, rpcURL := range chain.RPCEndpoints {
		client, err := dialAndVerify(ctx, rpcURL, chain.ChainID, opts.ConnectionTimeout)
		if err == nil {
			limit := rate.Inf
			if opts.RateLimit > 0 {
				limit = rate.Limit(opts.RateLimit)
			}
			return &EVMClient{
				ethClient: client,
				chain:     chain,
				endpoint:  rpcURL,
				opts:      opts,
				limiter:   rate.NewLimiter(limit, opts.Burst),
				logger:    logger.With(zap.Uint64("chain_id", chain.ChainID), zap.String("rpc", rpcURL)),
			}, nil
		}
		lastErr = fmt.Errorf("failed to connect to RPC %s: %w", rpcURL, err)
		logger.Warn("RPC endpoint unavailable, trying next", zap.Uint64("chain_id", chain.ChainID), zap.String("rpc", rpcURL), zap.Error(err))
	}

	return nil, fmt.Errorf("all RPC connection attempts failed for network %d: %w", chain.ChainID, lastErr)
}

// dialAndVerify connects to one endpoint and checks that it serves the expected chain.
func dialAndVerify(ctx context.Context, rpcURL string, chainID uint64, timeout time.Duration) (*ethclient.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, rpcURL)
	if err != nil {
		return nil, err
	}
	remoteID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to verify chainID: %w", err)
	}
	if remoteID.Uint64() != chainID {
		client.Close()
		return nil, fmt.Errorf("chainID mismatch: expected %d, got %d", chainID, remoteID.Uint64())
	}
	return client, nil
}

// ChainID implements port.ContractCaller.
func (c *EVMClient) ChainID() uint64 {
	return c.chain.ChainID
}

// Endpoint returns the RPC URL the client is connected to.
func (c *EVMClient) Endpoint() string {
	return c.endpoint
}

// Call implements port.ContractCaller.
func (c *EVMClient) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	var result hexutil.Bytes
	err := c.ethClient.Client().CallContext(callCtx, &result, "eth_call", callArgs(to, data), "latest")
	metrics.RPCRequests.WithLabelValues(c.chainLabel(), "eth_call", metrics.Result(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("eth_call to %s failed: %w", to.Hex(), err)
	}
	return result, nil
}

// BatchCall implements port.ContractCaller. Requests beyond MaxBatchSize are
// split into several batches; a failed batch marks only its own entries.
func (c *EVMClient) BatchCall(ctx context.Context, requests []entity.CallRequest) ([]entity.CallResult, error) {
	results := make([]entity.CallResult, 0, len(requests))
	if len(requests) == 0 {
		return results, nil
	}

	chunks := utils.Batch(requests, c.opts.MaxBatchSize)
	var failed int
	var lastErr error
	for _, chunk := range chunks {
		chunkResults, err := c.batchCall(ctx, chunk)
		if err != nil {
			failed++
			lastErr = err
			chunkResults = make([]entity.CallResult, len(chunk))
			for i, req := range chunk {
				chunkResults[i] = entity.CallResult{ID: req.ID, Err: err}
			}
		}
		results = append(results, chunkResults...)
	}

	if failed == len(chunks) {
		return results, fmt.Errorf("RPC batch call failed: %w", lastErr)
	}
	return results, nil
}

func (c *EVMClient) batchCall(ctx context.Context, requests []entity.CallRequest) ([]entity.CallResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	batchElems := make([]rpc.BatchElem, len(requests))
	for i, req := range requests {
		batchElems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{callArgs(req.To, req.Data), "latest"},
			Result: new(hexutil.Bytes),
		}
	}

	rpcCallCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	metrics.RPCBatchSize.WithLabelValues(c.chainLabel()).Observe(float64(len(requests)))
	err := c.ethClient.Client().BatchCallContext(rpcCallCtx, batchElems)
	metrics.RPCRequests.WithLabelValues(c.chainLabel(), "eth_call_batch", metrics.Result(err)).Inc()
	if err != nil {
		c.logger.Warn("RPC batch call failed", zap.Int("size", len(requests)), zap.Error(err))
		return nil, err
	}

	results := make([]entity.CallResult, len(requests))
	for i, elem := range batchElems {
		results[i].ID = requests[i].ID
		if elem.Error != nil {
			results[i].Err = fmt.Errorf("eth_call %s to %s failed: %w", requests[i].ID, requests[i].To.Hex(), elem.Error)
			continue
		}
		out, ok := elem.Result.(*hexutil.Bytes)
		if !ok || out == nil {
			results[i].Err = fmt.Errorf("eth_call %s: unexpected result type %T: %w", requests[i].ID, elem.Result, entity.ErrMalformedResponse)
			continue
		}
		results[i].Data = *out
	}
	return results, nil
}

// Close releases the underlying RPC connection.
func (c *EVMClient) Close() {
	c.ethClient.Close()
}

func (c *EVMClient) chainLabel() string {
	return strconv.FormatUint(c.chain.ChainID, 10)
}

func callArgs(to common.Address, data []byte) map[string]interface{} {
	return map[string]interface{}{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
}
