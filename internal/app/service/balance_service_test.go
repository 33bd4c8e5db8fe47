package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"networth_aggregator/internal/app/port/porttest"
	"networth_aggregator/internal/app/refresh"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/infrastructure/network/contracts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var invalidAddresses = []string{
	"",
	"0x",
	"0x1234",
	"not-an-address",
	"0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
	"0x0000000000000000000000000000000000000000",
	"0xZZ2C639c533813f4Aa9D7837CAf62653d097Ff85",
}

func TestFetchBalance_InvalidInputIsZeroWithoutNetwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, bad := range invalidAddresses {
		rec, err := f.balances.FetchBalance(ctx, bad, alice.Hex(), testChain)
		require.NoError(t, err, "token %q", bad)
		assert.Zero(t, rec.Value.Sign())

		rec, err = f.balances.FetchBalance(ctx, usdcAddr.Hex(), bad, testChain)
		require.NoError(t, err, "account %q", bad)
		assert.Zero(t, rec.Value.Sign())
		assert.Equal(t, uint8(6), rec.Decimals)

		rec, err = f.balances.FetchAllowance(ctx, usdcAddr.Hex(), alice.Hex(), bad, testChain)
		require.NoError(t, err)
		assert.Zero(t, rec.Value.Sign())

		rec, err = f.balances.FetchTotalSupply(ctx, bad, testChain)
		require.NoError(t, err)
		assert.Zero(t, rec.Value.Sign())
	}

	// invalid input short-circuits even before the chain is looked up
	rec, err := f.balances.FetchBalance(ctx, "0x1", alice.Hex(), 999)
	require.NoError(t, err)
	assert.Zero(t, rec.Value.Sign())

	results, err := f.balances.FetchBalances(ctx, "garbage", testChain, []string{usdcAddr.Hex(), govAddr.Hex()})
	require.NoError(t, err)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.Zero(t, r.Record.Value.Sign())
	}

	assert.Zero(t, f.caller.Calls())
}

func TestFetchBalance_UsesRegisteredDecimals(t *testing.T) {
	f := newFixture(t)
	f.onBalance(t, usdcAddr, alice, big.NewInt(1_500_000))

	rec, err := f.balances.FetchBalance(context.Background(), usdcAddr.Hex(), alice.Hex(), testChain)
	require.NoError(t, err)
	assert.Equal(t, "1500000", rec.Value.String())
	assert.Equal(t, uint8(6), rec.Decimals)
}

func TestFetchBalance_RepeatedReadsAreCached(t *testing.T) {
	f := newFixture(t)
	f.onBalance(t, govAddr, alice, e(3, 18))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec, err := f.balances.FetchBalance(ctx, govAddr.Hex(), alice.Hex(), testChain)
		require.NoError(t, err)
		assert.Equal(t, e(3, 18).String(), rec.Value.String())
	}
	// the account address is compared case-insensitively
	_, err := f.balances.FetchBalance(ctx, govAddr.Hex(), "0x000000000000000000000000000000000000B001", testChain)
	require.NoError(t, err)

	assert.Equal(t, 1, f.caller.Calls())
}

func TestFetchBalance_EmptyReturnDataIsZero(t *testing.T) {
	f := newFixture(t)
	f.caller.On(govAddr, contracts.ERC20.MustPack("balanceOf", alice), []byte{})

	rec, err := f.balances.FetchBalance(context.Background(), govAddr.Hex(), alice.Hex(), testChain)
	require.NoError(t, err)
	assert.Zero(t, rec.Value.Sign())
}

func TestFetchBalance_FailureIsNotCached(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("header not found")
	f.caller.Fail(govAddr, contracts.ERC20.MustPack("balanceOf", alice), boom)
	ctx := context.Background()

	_, err := f.balances.FetchBalance(ctx, govAddr.Hex(), alice.Hex(), testChain)
	assert.ErrorIs(t, err, boom)

	_, err = f.balances.FetchBalance(ctx, govAddr.Hex(), alice.Hex(), testChain)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, f.caller.Calls())
}

func TestFetchBalance_UnknownChain(t *testing.T) {
	f := newFixture(t)

	_, err := f.balances.FetchBalance(context.Background(), govAddr.Hex(), alice.Hex(), 999)
	assert.ErrorIs(t, err, entity.ErrUnknownChain)
}

func TestFetchAllowanceAndTotalSupply(t *testing.T) {
	f := newFixture(t)
	f.caller.
		On(govAddr, contracts.ERC20.MustPack("allowance", alice, poolAddr), outputs(t, contracts.ERC20, "allowance", e(5, 18))).
		On(govAddr, contracts.ERC20.MustPack("totalSupply"), outputs(t, contracts.ERC20, "totalSupply", e(1_000_000, 18)))
	ctx := context.Background()

	allowance, err := f.balances.FetchAllowance(ctx, govAddr.Hex(), alice.Hex(), poolAddr.Hex(), testChain)
	require.NoError(t, err)
	assert.Equal(t, e(5, 18).String(), allowance.Value.String())

	supply, err := f.balances.FetchTotalSupply(ctx, govAddr.Hex(), testChain)
	require.NoError(t, err)
	assert.Equal(t, e(1_000_000, 18).String(), supply.Value.String())
	assert.Equal(t, uint8(18), supply.Decimals)
}

func TestFetchBalances_OneBatchWithPerEntryFailures(t *testing.T) {
	f := newFixture(t)
	f.onBalance(t, usdcAddr, alice, big.NewInt(2_000_000))
	f.caller.Fail(govAddr, contracts.ERC20.MustPack("balanceOf", alice), errors.New("execution reverted"))
	ctx := context.Background()

	results, err := f.balances.FetchBalances(ctx, alice.Hex(), testChain, []string{usdcAddr.Hex(), govAddr.Hex(), "0xdead", usdcAddr.Hex()})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "2000000", results[0].Record.Value.String())
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Zero(t, results[2].Record.Value.Sign())
	assert.Equal(t, results[0].Record.Value.String(), results[3].Record.Value.String())

	assert.Equal(t, 1, f.caller.Calls())
	assert.Equal(t, 2, f.caller.Entries(), "duplicates and invalid tokens are not sent")

	// batch results feed the shared cache
	rec, err := f.balances.FetchBalance(ctx, usdcAddr.Hex(), alice.Hex(), testChain)
	require.NoError(t, err)
	assert.Equal(t, "2000000", rec.Value.String())
	assert.Equal(t, 1, f.caller.Calls())
}

func TestFetchBalances_BatchTransportFailure(t *testing.T) {
	f := newFixture(t)
	f.caller.FailBatches(errors.New("connection refused"))

	_, err := f.balances.FetchBalances(context.Background(), alice.Hex(), testChain, []string{usdcAddr.Hex()})
	assert.Error(t, err)
}

func TestFetchBalances_ConcurrentIdenticalBatchesShareOneRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.onBalance(t, usdcAddr, alice, big.NewInt(2_000_000))
	f.caller.Delay(100 * time.Millisecond)

	var wg sync.WaitGroup
	results := make([][]BalanceResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.balances.FetchBalances(context.Background(), alice.Hex(), testChain, []string{usdcAddr.Hex()})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.caller.Calls())
	for _, res := range results {
		require.Len(t, res, 1)
		assert.NoError(t, res[0].Err)
		assert.Equal(t, "2000000", res[0].Record.Value.String())
	}
}

func TestFetchBalances_StaleBalancesAreServedWhileRefreshing(t *testing.T) {
	f := newFixture(t)
	logger := zap.NewNop()
	coord := refresh.NewCoordinator(refresh.Options{PollInterval: 30 * time.Millisecond}, logger)
	balances := NewBalanceService(porttest.Clients{testChain: f.caller}, f.registry, coord, logger)
	ctx := context.Background()
	tokens := []string{usdcAddr.Hex()}

	f.onBalance(t, usdcAddr, alice, big.NewInt(1))
	res, err := balances.FetchBalances(ctx, alice.Hex(), testChain, tokens)
	require.NoError(t, err)
	assert.Equal(t, "1", res[0].Record.Value.String())

	f.onBalance(t, usdcAddr, alice, big.NewInt(2))
	f.caller.Delay(200 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	res, err = balances.FetchBalances(ctx, alice.Hex(), testChain, tokens)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 150*time.Millisecond, "stale values do not wait on the network")
	assert.Equal(t, "1", res[0].Record.Value.String())

	require.Eventually(t, func() bool { return f.caller.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		res, err := balances.FetchBalances(ctx, alice.Hex(), testChain, tokens)
		return err == nil && res[0].Record.Value.String() == "2"
	}, 2*time.Second, 10*time.Millisecond)
}
