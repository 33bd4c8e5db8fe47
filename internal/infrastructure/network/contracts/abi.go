package contracts

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"networth_aggregator/internal/domain/entity"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

const stakingPoolABI = `[
{"inputs":[],"name":"stakingToken","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const pairABI = `[
{"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const escrowABI = `[
{"inputs":[{"name":"account","type":"address"}],"name":"getEscrowIds","outputs":[{"name":"","type":"uint256[]"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"ids","type":"uint256[]"}],"name":"getEscrows","outputs":[{"components":[{"name":"start","type":"uint64"},{"name":"end","type":"uint64"},{"name":"initialBalance","type":"uint256"},{"name":"currentBalance","type":"uint256"},{"name":"claimable","type":"uint256"}],"name":"","type":"tuple[]"}],"stateMutability":"view","type":"function"}
]`

// Contract is a lazily parsed ABI.
type Contract struct {
	name string
	raw  string

	once   sync.Once
	parsed abi.ABI
}

var (
	ERC20       = &Contract{name: "ERC20", raw: erc20ABI}
	StakingPool = &Contract{name: "StakingPool", raw: stakingPoolABI}
	Pair        = &Contract{name: "Pair", raw: pairABI}
	Escrow      = &Contract{name: "Escrow", raw: escrowABI}
)

// ABI returns the parsed ABI. An invalid embedded ABI is a programming error and panics.
func (c *Contract) ABI() *abi.ABI {
	c.once.Do(func() {
		var err error
		c.parsed, err = abi.JSON(strings.NewReader(c.raw))
		if err != nil {
			panic(fmt.Sprintf("failed to parse %s ABI: %v", c.name, err))
		}
	})
	return &c.parsed
}

// Pack encodes a method call.
func (c *Contract) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := c.ABI().Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s.%s: %w", c.name, method, err)
	}
	return data, nil
}

// MustPack is Pack for argument lists known to be valid.
func (c *Contract) MustPack(method string, args ...interface{}) []byte {
	data, err := c.Pack(method, args...)
	if err != nil {
		panic(err)
	}
	return data
}

// Unpack decodes a method's return data. Empty return data (a call to an
// address without code) is reported as ErrMalformedResponse.
func (c *Contract) Unpack(method string, data []byte) ([]interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s.%s returned no data: %w", c.name, method, entity.ErrMalformedResponse)
	}
	out, err := c.ABI().Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s.%s: %v: %w", c.name, method, err, entity.ErrMalformedResponse)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s.%s unpacked to nothing: %w", c.name, method, entity.ErrMalformedResponse)
	}
	return out, nil
}

// UnpackBigInt decodes a single uint256 (or narrower uint) return value.
func (c *Contract) UnpackBigInt(method string, data []byte) (*big.Int, error) {
	out, err := c.Unpack(method, data)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s.%s: unexpected type %T: %w", c.name, method, out[0], entity.ErrMalformedResponse)
	}
	return v, nil
}

// UnpackAddress decodes a single address return value.
func (c *Contract) UnpackAddress(method string, data []byte) (common.Address, error) {
	out, err := c.Unpack(method, data)
	if err != nil {
		return common.Address{}, err
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s.%s: unexpected type %T: %w", c.name, method, out[0], entity.ErrMalformedResponse)
	}
	return v, nil
}

// UnpackUint8 decodes a single uint8 return value, as returned by decimals().
func (c *Contract) UnpackUint8(method string, data []byte) (uint8, error) {
	out, err := c.Unpack(method, data)
	if err != nil {
		return 0, err
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%s.%s: unexpected type %T: %w", c.name, method, out[0], entity.ErrMalformedResponse)
	}
	return v, nil
}

// Reserves is the decoded getReserves() result of a two-asset pair.
type Reserves struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// UnpackReserves decodes getReserves().
func UnpackReserves(data []byte) (Reserves, error) {
	out, err := Pair.Unpack("getReserves", data)
	if err != nil {
		return Reserves{}, err
	}
	if len(out) < 2 {
		return Reserves{}, fmt.Errorf("getReserves returned %d values: %w", len(out), entity.ErrMalformedResponse)
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return Reserves{}, fmt.Errorf("getReserves: unexpected types %T, %T: %w", out[0], out[1], entity.ErrMalformedResponse)
	}
	return Reserves{Reserve0: r0, Reserve1: r1}, nil
}

// UnpackEscrowIDs decodes getEscrowIds().
func UnpackEscrowIDs(data []byte) ([]*big.Int, error) {
	out, err := Escrow.Unpack("getEscrowIds", data)
	if err != nil {
		return nil, err
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getEscrowIds: unexpected type %T: %w", out[0], entity.ErrMalformedResponse)
	}
	return ids, nil
}

// EscrowTuple mirrors the tuple returned by getEscrows().
type EscrowTuple struct {
	Start          uint64   `json:"start"`
	End            uint64   `json:"end"`
	InitialBalance *big.Int `json:"initialBalance"`
	CurrentBalance *big.Int `json:"currentBalance"`
	Claimable      *big.Int `json:"claimable"`
}

// UnpackEscrows decodes getEscrows().
func UnpackEscrows(data []byte) (out []EscrowTuple, err error) {
	values, err := Escrow.Unpack("getEscrows", data)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("getEscrows: cannot convert %T: %v: %w", values[0], r, entity.ErrMalformedResponse)
		}
	}()
	converted := *abi.ConvertType(values[0], new([]EscrowTuple)).(*[]EscrowTuple)
	return converted, nil
}

// PackOutputs encodes return values of a method the way a node would return them.
func (c *Contract) PackOutputs(method string, values ...interface{}) ([]byte, error) {
	m, ok := c.ABI().Methods[method]
	if !ok {
		return nil, fmt.Errorf("%s has no method %s", c.name, method)
	}
	return m.Outputs.Pack(values...)
}
