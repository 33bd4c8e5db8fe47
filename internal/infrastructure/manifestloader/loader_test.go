package manifestloader

import (
	"os"
	"path/filepath"
	"testing"

	"networth_aggregator/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetAddressesByChain(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "optimism.json"), []byte(`{
  "chainId": 10,
  "addresses": [
    {"alias": "POOL", "address": "0x00000000000000000000000000000000000000aa", "category": "stakingPool", "priceResolver": "stakingPool"},
    {"alias": "PTS", "address": "0x00000000000000000000000000000000000000bb", "decimals": 0}
  ]
}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.json"), []byte(`{"chainId": 1, "addresses": [{"alias": "X"}]}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ethereum.json"), []byte(`not json`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "polygon.json"), []byte(`{"addresses": [{"alias": "Y"}]}`), 0o600))

	chains := []entity.ChainDescriptor{
		{ChainID: 10, Identifier: "optimism"},
		{ChainID: 8453, Identifier: "base"},
		{ChainID: 1, Identifier: "ethereum"},
	}

	got, err := NewManifestLoader(dir, zap.NewNop()).GetAddressesByChain(chains)
	require.NoError(t, err)

	require.Len(t, got[10], 2)
	assert.Equal(t, entity.CategoryStakingPool, got[10][0].Category)
	assert.Equal(t, entity.DefaultDecimals, got[10][0].EffectiveDecimals(), "omitted decimals default")
	assert.Equal(t, uint8(0), got[10][1].EffectiveDecimals(), "explicit zero decimals are kept")
	assert.Empty(t, got[8453], "mismatched chainId is skipped")
	assert.Empty(t, got[1], "malformed manifest is skipped")
	assert.Len(t, got, 1)
}

func TestGetAddressesByChain_MissingDirectory(t *testing.T) {
	got, err := NewManifestLoader(filepath.Join(t.TempDir(), "absent"), zap.NewNop()).GetAddressesByChain(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
