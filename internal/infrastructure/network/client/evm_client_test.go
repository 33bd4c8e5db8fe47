package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"networth_aggregator/internal/domain/entity"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// fakeNode answers eth_chainId and eth_call; eth_call replies are keyed by hex calldata.
type fakeNode struct {
	chainID  uint64
	replies  map[string]string
	requests atomic.Int32
}

func (n *fakeNode) handle(req rpcRequest) rpcResponse {
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "eth_chainId":
		resp.Result = hexutil.EncodeUint64(n.chainID)
	case "eth_call":
		var call struct {
			Data hexutil.Bytes `json:"data"`
		}
		_ = json.Unmarshal(req.Params[0], &call)
		if out, ok := n.replies[hexutil.Encode(call.Data)]; ok {
			resp.Result = out
		} else {
			resp.Error = &rpcError{Code: 3, Message: "execution reverted"}
		}
	default:
		resp.Error = &rpcError{Code: -32601, Message: "method not found"}
	}
	return resp
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.requests.Add(1)
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("[")) {
		var batch []rpcRequest
		_ = json.Unmarshal(body, &batch)
		out := make([]rpcResponse, len(batch))
		for i, req := range batch {
			out[i] = n.handle(req)
		}
		_ = json.NewEncoder(w).Encode(out)
		return
	}
	var req rpcRequest
	_ = json.Unmarshal(body, &req)
	_ = json.NewEncoder(w).Encode(n.handle(req))
}

func testOptions() Options {
	return Options{ConnectionTimeout: 2 * time.Second, CallTimeout: 2 * time.Second, MaxBatchSize: 2}
}

func TestNewEVMClient_FallsBackToNextEndpoint(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()
	healthy := httptest.NewServer(&fakeNode{chainID: 10})
	defer healthy.Close()

	chain := entity.ChainDescriptor{ChainID: 10, RPCEndpoints: []string{broken.URL, healthy.URL}}
	c, err := NewEVMClient(context.Background(), chain, testOptions(), zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, healthy.URL, c.Endpoint())
	assert.Equal(t, uint64(10), c.ChainID())
}

func TestNewEVMClient_RejectsWrongChain(t *testing.T) {
	node := httptest.NewServer(&fakeNode{chainID: 1})
	defer node.Close()

	_, err := NewEVMClient(context.Background(), entity.ChainDescriptor{ChainID: 10, RPCEndpoints: []string{node.URL}}, testOptions(), zap.NewNop())
	assert.Error(t, err)
}

func TestEVMClient_BatchCallPartialFailure(t *testing.T) {
	node := &fakeNode{chainID: 10, replies: map[string]string{
		"0x01": "0x00000000000000000000000000000000000000000000000000000000000000ff",
		"0x03": "0x",
	}}
	srv := httptest.NewServer(node)
	defer srv.Close()

	c, err := NewEVMClient(context.Background(), entity.ChainDescriptor{ChainID: 10, RPCEndpoints: []string{srv.URL}}, testOptions(), zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	results, err := c.BatchCall(context.Background(), []entity.CallRequest{
		{ID: "a", To: to, Data: []byte{0x01}},
		{ID: "b", To: to, Data: []byte{0x02}},
		{ID: "c", To: to, Data: []byte{0x03}},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a", results[0].ID)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, byte(0xff), results[0].Data[31])

	assert.Equal(t, "b", results[1].ID)
	assert.Error(t, results[1].Err)

	assert.NoError(t, results[2].Err)
	assert.Empty(t, results[2].Data)
}

func TestEVMClient_Call(t *testing.T) {
	node := &fakeNode{chainID: 10, replies: map[string]string{"0x0102": "0x2a"}}
	srv := httptest.NewServer(node)
	defer srv.Close()

	c, err := NewEVMClient(context.Background(), entity.ChainDescriptor{ChainID: 10, RPCEndpoints: []string{srv.URL}}, testOptions(), zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	out, err := c.Call(context.Background(), common.Address{0xaa}, []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2a}, out)

	_, err = c.Call(context.Background(), common.Address{0xaa}, []byte{0x09})
	assert.Error(t, err)
}

func TestEVMClient_EmptyBatchMakesNoRequest(t *testing.T) {
	node := &fakeNode{chainID: 10}
	srv := httptest.NewServer(node)
	defer srv.Close()

	c, err := NewEVMClient(context.Background(), entity.ChainDescriptor{ChainID: 10, RPCEndpoints: []string{srv.URL}}, testOptions(), zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	before := node.requests.Load()
	results, err := c.BatchCall(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, before, node.requests.Load())
}
