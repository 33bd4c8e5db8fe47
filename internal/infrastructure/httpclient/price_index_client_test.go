package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"networth_aggregator/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const usdc = "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"

func TestPriceIndexClient_GetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prices/current/optimism:0x0b2c639c533813f4aa9d7837caf62653d097ff85", r.URL.Path)
		assert.Equal(t, "4h", r.URL.Query().Get("searchWidth"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"coins":{"optimism:0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85":{"decimals":6,"symbol":"USDC","price":0.9998,"timestamp":1700000000,"confidence":0.99}}}`))
	}))
	defer srv.Close()

	c := NewPriceIndexClient(srv.URL, 2*time.Second, "4h", zap.NewNop())
	price, err := c.GetPrice(context.Background(), "optimism", usdc)
	require.NoError(t, err)

	assert.Equal(t, "USDC", price.Symbol)
	assert.InDelta(t, 0.9998, price.Price, 1e-12)
	assert.Equal(t, uint8(6), price.Decimals)
}

func TestPriceIndexClient_MissingCoinIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"coins":{}}`))
	}))
	defer srv.Close()

	c := NewPriceIndexClient(srv.URL, 2*time.Second, "", zap.NewNop())
	_, err := c.GetPrice(context.Background(), "optimism", usdc)
	assert.ErrorIs(t, err, entity.ErrPriceUnavailable)
}

func TestPriceIndexClient_HTTPFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewPriceIndexClient(srv.URL, 2*time.Second, "", zap.NewNop())
	_, err := c.GetPrice(context.Background(), "optimism", usdc)
	assert.Error(t, err)
}

func TestPriceIndexClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	c := NewPriceIndexClient(srv.URL, 2*time.Second, "", zap.NewNop())
	_, err := c.GetPrice(context.Background(), "optimism", usdc)
	assert.ErrorIs(t, err, entity.ErrMalformedResponse)
}
