package service

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/domain/aggregate"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/infrastructure/configloader"
	"networth_aggregator/internal/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Aggregate names.
const (
	SumNetWorth = "networth"
	SumVesting  = "vesting"
	SumTVL      = "tvl"
)

type contributorKind int

const (
	kindHolding contributorKind = iota
	kindVesting
	kindTVL
)

// contributor is one term of an aggregate sum.
type contributor struct {
	key     string
	kind    contributorKind
	chainID uint64
	account string
	meta    entity.AddressMetadata
}

// PortfolioServiceImpl implements port.PortfolioService.
type PortfolioServiceImpl struct {
	registry      port.ChainRegistry
	accounts      port.AccountProvider
	balances      *BalanceService
	escrows       *EscrowService
	prices        *PriceService
	logger        *zap.Logger
	maxConcurrent int
	cycleTimeout  time.Duration
}

var _ port.PortfolioService = (*PortfolioServiceImpl)(nil)

// NewPortfolioService creates a new instance of PortfolioServiceImpl.
func NewPortfolioService(
	registry port.ChainRegistry,
	accounts port.AccountProvider,
	balances *BalanceService,
	escrows *EscrowService,
	prices *PriceService,
	cfg configloader.AggregatorConfig,
	logger *zap.Logger,
) *PortfolioServiceImpl {
	maxConcurrent := cfg.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	cycleTimeout := time.Duration(cfg.CycleTimeoutMs) * time.Millisecond
	if cycleTimeout <= 0 {
		cycleTimeout = 30 * time.Second
	}
	return &PortfolioServiceImpl{
		registry:      registry,
		accounts:      accounts,
		balances:      balances,
		escrows:       escrows,
		prices:        prices,
		logger:        logger.Named("PortfolioService"),
		maxConcurrent: maxConcurrent,
		cycleTimeout:  cycleTimeout,
	}
}

// NetWorth values every token, staking pool and vault position of the selected accounts.
func (s *PortfolioServiceImpl) NetWorth(ctx context.Context, sel port.Selection) (port.Valuation, error) {
	return s.value(ctx, SumNetWorth, kindHolding, sel)
}

// VestingNetWorth values the still-vesting escrow balances of the selected accounts.
func (s *PortfolioServiceImpl) VestingNetWorth(ctx context.Context, sel port.Selection) (port.Valuation, error) {
	return s.value(ctx, SumVesting, kindVesting, sel)
}

// TVL values the total supply of every staking pool and vault on the given chains.
func (s *PortfolioServiceImpl) TVL(ctx context.Context, chainIDs []uint64) (port.Valuation, error) {
	return s.value(ctx, SumTVL, kindTVL, port.Selection{ChainIDs: chainIDs})
}

func (s *PortfolioServiceImpl) value(ctx context.Context, name string, kind contributorKind, sel port.Selection) (port.Valuation, error) {
	plan, err := s.plan(kind, sel)
	if err != nil {
		return port.Valuation{}, err
	}
	sum := aggregate.NewSum(name, contributorKeys(plan))

	cycleCtx, cancel := context.WithTimeout(ctx, s.cycleTimeout)
	defer cancel()
	holdings := s.evaluate(cycleCtx, sum, sum.Epoch(), plan)

	snap := sum.Snapshot()
	s.logger.Info("Aggregation finished",
		zap.String("sum", name),
		zap.Int("contributors", snap.Expected),
		zap.Bool("complete", snap.Complete),
		zap.String("total_usd", utils.FormatUSD(snap.Total)))

	return port.Valuation{Snapshot: snap, Holdings: holdings, Errors: contributorErrors(holdings)}, nil
}

// selectChains returns the descriptors of chainIDs, or every chain when empty.
func (s *PortfolioServiceImpl) selectChains(chainIDs []uint64) ([]entity.ChainDescriptor, error) {
	if len(chainIDs) == 0 {
		return s.registry.Chains(), nil
	}
	chains := make([]entity.ChainDescriptor, 0, len(chainIDs))
	for _, id := range utils.Dedup(chainIDs) {
		chain, ok := s.registry.Chain(id)
		if !ok {
			return nil, fmt.Errorf("chain %d: %w", id, entity.ErrUnknownChain)
		}
		chains = append(chains, chain)
	}
	return chains, nil
}

// selectAccounts returns the requested accounts, or the tracked ones when none
// are given. Valid addresses are checksummed so spellings of one account collapse.
func (s *PortfolioServiceImpl) selectAccounts(accounts []string) ([]string, error) {
	if len(accounts) == 0 {
		if s.accounts == nil {
			return nil, nil
		}
		loaded, err := s.accounts.GetAccounts()
		if err != nil {
			return nil, fmt.Errorf("failed to load accounts: %w", err)
		}
		accounts = loaded
	}
	normalized := make([]string, len(accounts))
	for i, a := range accounts {
		normalized[i] = strings.TrimSpace(a)
		if addr, ok := entity.ParseAddress(a); ok {
			normalized[i] = addr.Hex()
		}
	}
	return utils.Dedup(normalized), nil
}

// plan lists the contributors of one aggregate in a stable order.
func (s *PortfolioServiceImpl) plan(kind contributorKind, sel port.Selection) ([]contributor, error) {
	chains, err := s.selectChains(sel.ChainIDs)
	if err != nil {
		return nil, err
	}
	var accounts []string
	if kind != kindTVL {
		if accounts, err = s.selectAccounts(sel.Accounts); err != nil {
			return nil, err
		}
	}

	var plan []contributor
	for _, chain := range chains {
		for _, meta := range sortedAddresses(chain) {
			category := meta.EffectiveCategory()
			switch kind {
			case kindHolding:
				if category == entity.CategoryEscrow {
					continue
				}
			case kindVesting:
				if category != entity.CategoryEscrow {
					continue
				}
			case kindTVL:
				if category != entity.CategoryStakingPool && category != entity.CategoryVault {
					continue
				}
				plan = append(plan, contributor{
					key:     fmt.Sprintf("%d:%s", chain.ChainID, meta.Alias),
					kind:    kind,
					chainID: chain.ChainID,
					meta:    meta,
				})
				continue
			}
			for _, account := range accounts {
				plan = append(plan, contributor{
					key:     fmt.Sprintf("%d:%s:%s", chain.ChainID, strings.ToLower(account), meta.Alias),
					kind:    kind,
					chainID: chain.ChainID,
					account: account,
					meta:    meta,
				})
			}
		}
	}
	return plan, nil
}

func sortedAddresses(chain entity.ChainDescriptor) []entity.AddressMetadata {
	out := make([]entity.AddressMetadata, 0, len(chain.NamedAddresses))
	for _, meta := range chain.NamedAddresses {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

func contributorKeys(plan []contributor) []string {
	keys := make([]string, len(plan))
	for i, c := range plan {
		keys[i] = c.key
	}
	return keys
}

// evaluate runs one cycle over plan, reporting every settled contributor into
// sum under epoch. Contributors still pending when ctx ends are settled as errors.
func (s *PortfolioServiceImpl) evaluate(ctx context.Context, sum *aggregate.Sum, epoch uint64, plan []contributor) []entity.ValuedHolding {
	var (
		mu      sync.Mutex
		settled = make(map[string]entity.ValuedHolding, len(plan))
	)
	report := func(h entity.ValuedHolding) {
		mu.Lock()
		settled[h.Key] = h
		mu.Unlock()
		if h.Status == entity.StatusError {
			sum.Report(epoch, h.Key, nil, h.Status)
			return
		}
		sum.Report(epoch, h.Key, h.USDValue, h.Status)
	}

	var g errgroup.Group
	g.SetLimit(s.maxConcurrent)

	// holdings of one account on one chain share a single balance batch
	groups := make(map[string][]contributor)
	var groupOrder []string
	for _, c := range plan {
		if c.kind != kindHolding {
			continue
		}
		gk := fmt.Sprintf("%d:%s", c.chainID, strings.ToLower(c.account))
		if _, ok := groups[gk]; !ok {
			groupOrder = append(groupOrder, gk)
		}
		groups[gk] = append(groups[gk], c)
	}

	for _, gk := range groupOrder {
		if ctx.Err() != nil {
			break
		}
		batch := groups[gk]
		g.Go(func() error {
			s.evaluateHoldings(ctx, batch, report)
			return nil
		})
	}
	for _, c := range plan {
		if c.kind == kindHolding {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			switch c.kind {
			case kindVesting:
				report(s.evaluateVesting(ctx, c))
			case kindTVL:
				report(s.evaluateTVL(ctx, c))
			}
			return nil
		})
	}
	_ = g.Wait()

	holdings := make([]entity.ValuedHolding, 0, len(plan))
	for _, c := range plan {
		mu.Lock()
		h, ok := settled[c.key]
		mu.Unlock()
		if !ok {
			cause := ctx.Err()
			if cause == nil {
				cause = context.Canceled
			}
			h = s.failed(c, baseHolding(c), fmt.Errorf("cycle ended before the contributor settled: %w", cause))
			report(h)
		}
		holdings = append(holdings, h)
	}
	return holdings
}

func baseHolding(c contributor) entity.ValuedHolding {
	return entity.ValuedHolding{
		Key:        c.key,
		ChainID:    c.chainID,
		TokenAlias: c.meta.Alias,
		Account:    c.account,
		Status:     entity.StatusLoading,
	}
}

func (s *PortfolioServiceImpl) failed(c contributor, h entity.ValuedHolding, err error) entity.ValuedHolding {
	s.logger.Warn("Contributor failed",
		zap.String("key", c.key),
		zap.Uint64("chain_id", c.chainID),
		zap.String("alias", c.meta.Alias),
		zap.String("account", c.account),
		zap.Error(err))
	h.Status = entity.StatusError
	h.Error = err.Error()
	h.USDValue = nil
	return h
}

// priced combines bal with the price of priceMeta. Zero balances are settled
// without resolving a price.
func (s *PortfolioServiceImpl) priced(ctx context.Context, c contributor, bal entity.BalanceRecord, priceMeta entity.AddressMetadata) entity.ValuedHolding {
	h := baseHolding(c)
	h.Balance = bal
	if bal.Value == nil || bal.Value.Sign() == 0 {
		h.Balance = entity.ZeroBalance(bal.Decimals)
		h.USDValue, h.Status = new(big.Int), entity.StatusSuccess
		return h
	}

	quote, err := s.prices.PriceOf(ctx, c.chainID, priceMeta)
	if err != nil {
		return s.failed(c, h, err)
	}
	h.Price = quote
	h.USDValue, h.Status = aggregate.Combine(&h.Balance, &quote)
	return h
}

func (s *PortfolioServiceImpl) evaluateHoldings(ctx context.Context, batch []contributor, report func(entity.ValuedHolding)) {
	first := batch[0]
	tokens := make([]string, len(batch))
	for i, c := range batch {
		tokens[i] = c.meta.Address
	}

	results, err := s.balances.FetchBalances(ctx, first.account, first.chainID, tokens)
	if err != nil {
		for _, c := range batch {
			report(s.failed(c, baseHolding(c), err))
		}
		return
	}
	for i, c := range batch {
		if results[i].Err != nil {
			report(s.failed(c, baseHolding(c), results[i].Err))
			continue
		}
		report(s.priced(ctx, c, results[i].Record, c.meta))
	}
}

func (s *PortfolioServiceImpl) evaluateVesting(ctx context.Context, c contributor) entity.ValuedHolding {
	token, ok := s.registry.Lookup(c.chainID, c.meta.Token)
	if !ok {
		return s.failed(c, baseHolding(c), fmt.Errorf("escrowed token %q of %s: %w", c.meta.Token, c.meta.Alias, entity.ErrUnknownAddress))
	}
	escrow, err := s.escrows.GetEscrowBalances(ctx, c.meta.Address, c.account, c.chainID)
	if err != nil {
		return s.failed(c, baseHolding(c), err)
	}
	bal := entity.BalanceRecord{Value: escrow.Vesting, Decimals: token.EffectiveDecimals()}
	return s.priced(ctx, c, bal, token)
}

func (s *PortfolioServiceImpl) evaluateTVL(ctx context.Context, c contributor) entity.ValuedHolding {
	supply, err := s.balances.FetchTotalSupply(ctx, c.meta.Address, c.chainID)
	if err != nil {
		return s.failed(c, baseHolding(c), err)
	}
	return s.priced(ctx, c, supply, c.meta)
}

func contributorErrors(holdings []entity.ValuedHolding) []entity.ContributorError {
	var errs []entity.ContributorError
	for _, h := range holdings {
		if h.Status != entity.StatusError {
			continue
		}
		errs = append(errs, entity.ContributorError{
			Key:        h.Key,
			ChainID:    h.ChainID,
			TokenAlias: h.TokenAlias,
			Account:    h.Account,
			Message:    h.Error,
		})
	}
	return errs
}
