package service

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/app/port/porttest"
	"networth_aggregator/internal/app/provider"
	"networth_aggregator/internal/app/refresh"
	"networth_aggregator/internal/app/resolver"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/infrastructure/configloader"
	"networth_aggregator/internal/infrastructure/network/contracts"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testChain uint64 = 10

var (
	usdcAddr   = common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85")
	govAddr    = common.HexToAddress("0x000000000000000000000000000000000000a002")
	poolAddr   = common.HexToAddress("0x000000000000000000000000000000000000a003")
	escrowAddr = common.HexToAddress("0x000000000000000000000000000000000000a004")
	alice      = common.HexToAddress("0x000000000000000000000000000000000000b001")
	bob        = common.HexToAddress("0x000000000000000000000000000000000000b002")
)

// e returns n * 10^dec.
func e(n int64, dec int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(dec), nil))
}

type fixture struct {
	caller    *porttest.Caller
	index     *porttest.PriceIndex
	registry  port.ChainRegistry
	coord     *refresh.Coordinator
	balances  *BalanceService
	escrows   *EscrowService
	prices    *PriceService
	portfolio *PortfolioServiceImpl
}

// defaultAddresses: USDC (6 decimals, market), GOV (fixed 0.25), a GOV staking
// pool and a GOV escrow.
func defaultAddresses() []entity.AddressMetadata {
	return []entity.AddressMetadata{
		{Alias: "USDC", Address: usdcAddr.Hex(), Decimals: 6},
		{Alias: "GOV", Address: govAddr.Hex(), PriceResolver: "gov"},
		{Alias: "sGOV", Address: poolAddr.Hex(), PriceResolver: "stakingPool", Category: entity.CategoryStakingPool},
		{Alias: "GOV_ESCROW", Address: escrowAddr.Hex(), Category: entity.CategoryEscrow, Token: "GOV"},
	}
}

func newFixture(t *testing.T, addrs ...entity.AddressMetadata) *fixture {
	t.Helper()
	if addrs == nil {
		addrs = defaultAddresses()
	}
	named := make(map[string]entity.AddressMetadata, len(addrs))
	for _, a := range addrs {
		named[a.Alias] = a
	}
	logger := zap.NewNop()

	f := &fixture{
		caller: porttest.NewCaller(testChain),
		index:  porttest.NewPriceIndex().Set("optimism", usdcAddr, 1),
		registry: provider.NewChainProvider([]entity.ChainDescriptor{{
			ChainID:        testChain,
			Name:           "Optimism",
			Identifier:     "optimism",
			PriceNamespace: "optimism",
			NamedAddresses: named,
		}}, nil, logger),
		coord: refresh.NewCoordinator(refresh.Options{PollInterval: time.Minute}, logger),
	}
	clients := porttest.Clients{testChain: f.caller}

	resolvers, err := resolver.Build([]configloader.ResolverConfig{{Name: "gov", Kind: "fixed", Price: "0.25"}}, resolver.Deps{
		Index:    f.index,
		Clients:  clients,
		Registry: f.registry,
		Coord:    f.coord,
	}, logger)
	require.NoError(t, err)

	f.balances = NewBalanceService(clients, f.registry, f.coord, logger)
	f.escrows = NewEscrowService(clients, f.coord, logger)
	f.prices = NewPriceService(resolvers, f.registry)
	f.portfolio = NewPortfolioService(f.registry, nil, f.balances, f.escrows, f.prices,
		configloader.AggregatorConfig{MaxConcurrentRequests: 4, CycleTimeoutMs: 2000}, logger)
	return f
}

func outputs(t *testing.T, c *contracts.Contract, method string, values ...interface{}) []byte {
	t.Helper()
	data, err := c.PackOutputs(method, values...)
	require.NoError(t, err)
	return data
}

func (f *fixture) onBalance(t *testing.T, token, account common.Address, v *big.Int) {
	f.caller.On(token, contracts.ERC20.MustPack("balanceOf", account), outputs(t, contracts.ERC20, "balanceOf", v))
}

func (f *fixture) onStakingToken(t *testing.T, pool, underlying common.Address) {
	f.caller.On(pool, contracts.StakingPool.MustPack("stakingToken"), outputs(t, contracts.StakingPool, "stakingToken", underlying))
}

func (f *fixture) onEscrows(t *testing.T, account common.Address, records ...contracts.EscrowTuple) {
	ids := make([]*big.Int, len(records))
	for i := range records {
		ids[i] = big.NewInt(int64(i + 1))
	}
	f.caller.On(escrowAddr, contracts.Escrow.MustPack("getEscrowIds", account), outputs(t, contracts.Escrow, "getEscrowIds", ids))
	if len(ids) > 0 {
		f.caller.On(escrowAddr, contracts.Escrow.MustPack("getEscrows", ids), outputs(t, contracts.Escrow, "getEscrows", records))
	}
}

func lower(s string) string {
	return strings.ToLower(s)
}
