package service

import (
	"context"
	"testing"

	"networth_aggregator/internal/domain/entity"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuote_ByAliasAndAddress(t *testing.T) {
	f := newFixture(t)

	q, meta, err := f.prices.Quote(context.Background(), testChain, "GOV")
	require.NoError(t, err)
	assert.Equal(t, "GOV", meta.Alias)
	assert.Equal(t, "250000000000000000", q.Value.String())

	q, meta, err = f.prices.Quote(context.Background(), testChain, usdcAddr.Hex())
	require.NoError(t, err)
	assert.Equal(t, "USDC", meta.Alias)
	assert.Equal(t, "1000000000000000000", q.Value.String())
}

func TestQuote_UnregisteredAddressUsesMarket(t *testing.T) {
	f := newFixture(t)
	other := common.HexToAddress("0x4200000000000000000000000000000000000042")
	f.index.Set("optimism", other, 1.75)

	q, meta, err := f.prices.Quote(context.Background(), testChain, other.Hex())
	require.NoError(t, err)
	assert.Equal(t, other.Hex(), meta.Address)
	assert.Equal(t, "1750000000000000000", q.Value.String())
}

func TestQuote_Errors(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.prices.Quote(context.Background(), 999, "GOV")
	assert.ErrorIs(t, err, entity.ErrUnknownChain)

	_, _, err = f.prices.Quote(context.Background(), testChain, "NOPE")
	assert.ErrorIs(t, err, entity.ErrUnknownAddress)

	_, _, err = f.prices.Quote(context.Background(), testChain, "0x4200000000000000000000000000000000000043")
	assert.ErrorIs(t, err, entity.ErrPriceUnavailable)
}
