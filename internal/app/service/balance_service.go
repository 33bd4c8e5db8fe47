package service

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/app/refresh"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/infrastructure/network/contracts"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// BalanceResult is one entry of a batched balance read.
type BalanceResult struct {
	Token  string
	Record entity.BalanceRecord
	Err    error
}

// BalanceService reads ERC-20 balances, allowances and supplies through the refresh coordinator.
// Malformed or zero addresses yield a zero record without touching the network.
type BalanceService struct {
	clients  port.ClientProvider
	registry port.ChainRegistry
	coord    *refresh.Coordinator
	logger   *zap.Logger
}

// NewBalanceService creates a new BalanceService.
func NewBalanceService(clients port.ClientProvider, registry port.ChainRegistry, coord *refresh.Coordinator, logger *zap.Logger) *BalanceService {
	return &BalanceService{
		clients:  clients,
		registry: registry,
		coord:    coord,
		logger:   logger.Named("BalanceService"),
	}
}

// decimals returns the registered decimals of token, or the default.
func (s *BalanceService) decimals(chainID uint64, token common.Address) uint8 {
	if meta, ok := s.registry.LookupByAddress(chainID, token); ok {
		return meta.EffectiveDecimals()
	}
	return entity.DefaultDecimals
}

func (s *BalanceService) record(chainID uint64, token common.Address, v *big.Int) entity.BalanceRecord {
	return entity.BalanceRecord{Value: new(big.Int).Set(v), Decimals: s.decimals(chainID, token)}
}

// FetchBalance returns balanceOf(account) for token on chainID.
func (s *BalanceService) FetchBalance(ctx context.Context, token, account string, chainID uint64) (entity.BalanceRecord, error) {
	tokenAddr, ok := entity.ParseAddress(token)
	if !ok {
		return entity.ZeroBalance(entity.DefaultDecimals), nil
	}
	accountAddr, ok := entity.ParseAddress(account)
	if !ok {
		return entity.ZeroBalance(s.decimals(chainID, tokenAddr)), nil
	}

	v, err := refresh.Fetch(ctx, s.coord, balanceKey(chainID, tokenAddr, accountAddr), func(ctx context.Context) (*big.Int, error) {
		return s.readUint(ctx, chainID, tokenAddr, contracts.ERC20, "balanceOf", accountAddr)
	})
	if err != nil {
		return entity.BalanceRecord{}, fmt.Errorf("balance of %s in %s on chain %d: %w", accountAddr.Hex(), tokenAddr.Hex(), chainID, err)
	}
	return s.record(chainID, tokenAddr, v), nil
}

// FetchAllowance returns allowance(owner, spender) for token on chainID.
func (s *BalanceService) FetchAllowance(ctx context.Context, token, owner, spender string, chainID uint64) (entity.BalanceRecord, error) {
	tokenAddr, ok := entity.ParseAddress(token)
	if !ok {
		return entity.ZeroBalance(entity.DefaultDecimals), nil
	}
	ownerAddr, okOwner := entity.ParseAddress(owner)
	spenderAddr, okSpender := entity.ParseAddress(spender)
	if !okOwner || !okSpender {
		return entity.ZeroBalance(s.decimals(chainID, tokenAddr)), nil
	}

	key := refresh.Key{
		Source:  refresh.SourceAllowance,
		ChainID: chainID,
		Address: tokenAddr.Hex(),
		Account: ownerAddr.Hex(),
		Extra:   spenderAddr.Hex(),
	}
	v, err := refresh.Fetch(ctx, s.coord, key, func(ctx context.Context) (*big.Int, error) {
		return s.readUint(ctx, chainID, tokenAddr, contracts.ERC20, "allowance", ownerAddr, spenderAddr)
	})
	if err != nil {
		return entity.BalanceRecord{}, fmt.Errorf("allowance of %s for %s in %s on chain %d: %w",
			ownerAddr.Hex(), spenderAddr.Hex(), tokenAddr.Hex(), chainID, err)
	}
	return s.record(chainID, tokenAddr, v), nil
}

// FetchTotalSupply returns totalSupply() of token on chainID.
func (s *BalanceService) FetchTotalSupply(ctx context.Context, token string, chainID uint64) (entity.BalanceRecord, error) {
	tokenAddr, ok := entity.ParseAddress(token)
	if !ok {
		return entity.ZeroBalance(entity.DefaultDecimals), nil
	}

	key := refresh.Key{Source: refresh.SourceTotalSupply, ChainID: chainID, Address: tokenAddr.Hex()}
	v, err := refresh.Fetch(ctx, s.coord, key, func(ctx context.Context) (*big.Int, error) {
		return s.readUint(ctx, chainID, tokenAddr, contracts.ERC20, "totalSupply")
	})
	if err != nil {
		return entity.BalanceRecord{}, fmt.Errorf("total supply of %s on chain %d: %w", tokenAddr.Hex(), chainID, err)
	}
	return s.record(chainID, tokenAddr, v), nil
}

// FetchBalances reads the balances of account for every token in one JSON-RPC batch.
// Cached balances are reused: stale ones are returned and refreshed in the
// background, and only missing ones are waited for. Identical concurrent batches
// share one round trip. Results keep the order of tokens; a failed entry only fails itself.
func (s *BalanceService) FetchBalances(ctx context.Context, account string, chainID uint64, tokens []string) ([]BalanceResult, error) {
	results := make([]BalanceResult, len(tokens))
	accountAddr, accountOK := entity.ParseAddress(account)

	var (
		missing = make(map[string]common.Address)
		stale   = make(map[string]common.Address)
		pending = make(map[string][]int)
	)
	for i, token := range tokens {
		results[i].Token = token
		tokenAddr, ok := entity.ParseAddress(token)
		if !ok {
			results[i].Record = entity.ZeroBalance(entity.DefaultDecimals)
			continue
		}
		if !accountOK {
			results[i].Record = entity.ZeroBalance(s.decimals(chainID, tokenAddr))
			continue
		}

		id := tokenAddr.Hex()
		if v, fresh, ok := refresh.Cached[*big.Int](s.coord, balanceKey(chainID, tokenAddr, accountAddr)); ok {
			results[i].Record = s.record(chainID, tokenAddr, v)
			if !fresh {
				stale[id] = tokenAddr
			}
			continue
		}
		missing[id] = tokenAddr
		pending[id] = append(pending[id], i)
	}

	if len(stale) > 0 {
		s.revalidate(ctx, chainID, accountAddr, stale)
	}
	if len(missing) == 0 {
		return results, nil
	}

	entries, err := s.batch(ctx, chainID, accountAddr, missing)
	if err != nil {
		return nil, fmt.Errorf("balance batch for %s on chain %d: %w", accountAddr.Hex(), chainID, err)
	}
	for id, idx := range pending {
		tokenAddr := missing[id]
		e, ok := entries[id]
		for _, i := range idx {
			switch {
			case !ok:
				results[i].Err = fmt.Errorf("no batch result for %s: %w", id, entity.ErrMalformedResponse)
			case e.err != nil:
				results[i].Err = fmt.Errorf("balance of %s in %s: %w", accountAddr.Hex(), id, e.err)
			default:
				results[i].Record = s.record(chainID, tokenAddr, e.value)
			}
		}
	}
	return results, nil
}

type batchEntry struct {
	value *big.Int
	err   error
}

func balanceKey(chainID uint64, token, account common.Address) refresh.Key {
	return refresh.Key{Source: refresh.SourceBalance, ChainID: chainID, Address: token.Hex(), Account: account.Hex()}
}

// batch reads balanceOf for tokens in one round trip shared by identical
// concurrent batches. Successful entries are stored per token.
func (s *BalanceService) batch(ctx context.Context, chainID uint64, account common.Address, tokens map[string]common.Address) (map[string]batchEntry, error) {
	ids := make([]string, 0, len(tokens))
	for id := range tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	key := refresh.Key{Source: refresh.SourceBalanceBatch, ChainID: chainID, Account: account.Hex(), Extra: strings.Join(ids, ",")}
	return refresh.Share(ctx, s.coord, key, func(ctx context.Context) (map[string]batchEntry, error) {
		caller, err := s.clients.GetClient(ctx, chainID)
		if err != nil {
			return nil, err
		}
		requests := make([]entity.CallRequest, len(ids))
		for i, id := range ids {
			requests[i] = entity.CallRequest{ID: id, To: tokens[id], Data: contracts.ERC20.MustPack("balanceOf", account)}
		}
		s.logger.Debug("Executing balance batch",
			zap.Uint64("chain_id", chainID),
			zap.String("account", account.Hex()),
			zap.Int("request_count", len(requests)))

		batch, err := caller.BatchCall(ctx, requests)
		if err != nil {
			return nil, err
		}

		out := make(map[string]batchEntry, len(batch))
		for _, res := range batch {
			tokenAddr, ok := tokens[res.ID]
			if !ok {
				continue
			}
			e := batchEntry{err: res.Err}
			if e.err == nil {
				e.value, e.err = unpackUint(contracts.ERC20, "balanceOf", res.Data)
			}
			if e.err != nil {
				s.logger.Warn("Balance entry failed",
					zap.Uint64("chain_id", chainID),
					zap.String("token", tokenAddr.Hex()),
					zap.String("account", account.Hex()),
					zap.Error(e.err))
			} else {
				refresh.Store(s.coord, balanceKey(chainID, tokenAddr, account), e.value)
			}
			out[res.ID] = e
		}
		return out, nil
	})
}

// revalidate refreshes stale balances in the background; callers keep the stale values.
func (s *BalanceService) revalidate(ctx context.Context, chainID uint64, account common.Address, tokens map[string]common.Address) {
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := s.batch(bg, chainID, account, tokens); err != nil {
			s.logger.Warn("Background balance refresh failed, keeping stale values",
				zap.Uint64("chain_id", chainID),
				zap.String("account", account.Hex()),
				zap.Error(err))
		}
	}()
}

func (s *BalanceService) readUint(ctx context.Context, chainID uint64, to common.Address, c *contracts.Contract, method string, args ...interface{}) (*big.Int, error) {
	caller, err := s.clients.GetClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	out, err := caller.Call(ctx, to, c.MustPack(method, args...))
	if err != nil {
		return nil, err
	}
	return unpackUint(c, method, out)
}

// unpackUint decodes a single uint256 result. Empty return data (an address
// without code) reads as zero.
func unpackUint(c *contracts.Contract, method string, data []byte) (*big.Int, error) {
	if len(data) == 0 {
		return new(big.Int), nil
	}
	return c.UnpackBigInt(method, data)
}
