package contracts

import (
	"math/big"
	"testing"

	"networth_aggregator/internal/domain/entity"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPack_BalanceOfSelector(t *testing.T) {
	data, err := ERC20.Pack("balanceOf", common.HexToAddress("0x00000000000000000000000000000000000000aa"))
	require.NoError(t, err)
	require.Len(t, data, 4+32)
	assert.Equal(t, []byte{0x70, 0xa0, 0x82, 0x31}, data[:4])
}

func TestUnpack_EmptyDataIsMalformed(t *testing.T) {
	_, err := ERC20.UnpackBigInt("balanceOf", nil)
	assert.ErrorIs(t, err, entity.ErrMalformedResponse)
}

func TestUnpackReserves(t *testing.T) {
	data, err := Pair.PackOutputs("getReserves", big.NewInt(100), big.NewInt(200), uint32(1))
	require.NoError(t, err)

	r, err := UnpackReserves(data)
	require.NoError(t, err)
	assert.Equal(t, "100", r.Reserve0.String())
	assert.Equal(t, "200", r.Reserve1.String())
}

func TestUnpackEscrows(t *testing.T) {
	in := []EscrowTuple{
		{Start: 10, End: 20, InitialBalance: big.NewInt(1000), CurrentBalance: big.NewInt(600), Claimable: big.NewInt(50)},
		{Start: 30, End: 40, InitialBalance: big.NewInt(5), CurrentBalance: big.NewInt(5), Claimable: big.NewInt(0)},
	}
	data, err := Escrow.PackOutputs("getEscrows", in)
	require.NoError(t, err)

	out, err := UnpackEscrows(data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(10), out[0].Start)
	assert.Equal(t, "600", out[0].CurrentBalance.String())
	assert.Equal(t, "50", out[0].Claimable.String())
	assert.Equal(t, uint64(40), out[1].End)
}

func TestUnpackEscrowIDs(t *testing.T) {
	data, err := Escrow.PackOutputs("getEscrowIds", []*big.Int{big.NewInt(1), big.NewInt(7)})
	require.NoError(t, err)

	ids, err := UnpackEscrowIDs(data)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, int64(7), ids[1].Int64())
}
