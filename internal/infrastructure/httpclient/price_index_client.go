package httpclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/domain/entity"
	"networth_aggregator/internal/pkg/metrics"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// coinsResponse is the body of GET /prices/current/{coins}.
type coinsResponse struct {
	Coins map[string]entity.IndexPrice `json:"coins"`
}

// priceIndexClientImpl queries a DefiLlama-compatible coins API.
type priceIndexClientImpl struct {
	client      *fasthttp.Client
	baseURL     string
	timeout     time.Duration
	searchWidth string
	logger      *zap.Logger
}

var _ port.PriceIndex = (*priceIndexClientImpl)(nil)

// NewPriceIndexClient creates a new price index client.
func NewPriceIndexClient(baseURL string, timeout time.Duration, searchWidth string, logger *zap.Logger) port.PriceIndex {
	return &priceIndexClientImpl{
		client:      &fasthttp.Client{Name: "networth-aggregator"},
		baseURL:     strings.TrimRight(baseURL, "/"),
		timeout:     timeout,
		searchWidth: searchWidth,
		logger:      logger.Named("PriceIndexClient"),
	}
}

// GetPrice implements port.PriceIndex. A coin absent from the response, or
// quoted without a positive price, is ErrPriceUnavailable; never a zero price.
func (c *priceIndexClientImpl) GetPrice(ctx context.Context, namespace, address string) (entity.IndexPrice, error) {
	coin := namespace + ":" + strings.ToLower(address)
	requestURL := fmt.Sprintf("%s/prices/current/%s", c.baseURL, url.PathEscape(coin))
	if c.searchWidth != "" {
		requestURL += "?searchWidth=" + url.QueryEscape(c.searchWidth)
	}

	price, err := c.fetch(ctx, requestURL, coin)
	metrics.PriceIndexRequests.WithLabelValues(metrics.Result(err)).Inc()
	return price, err
}

func (c *priceIndexClientImpl) fetch(ctx context.Context, requestURL, coin string) (entity.IndexPrice, error) {
	c.logger.Debug("Requesting price", zap.String("url", requestURL))

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return entity.IndexPrice{}, err
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		c.logger.Warn("Price index request failed", zap.String("url", requestURL), zap.Error(err))
		return entity.IndexPrice{}, fmt.Errorf("failed to execute request to %s: %w", requestURL, err)
	}

	rawBody := resp.Body()
	if resp.StatusCode() != fasthttp.StatusOK {
		c.logger.Warn("Price index returned non-OK status",
			zap.String("url", requestURL),
			zap.Int("statusCode", resp.StatusCode()),
			zap.ByteString("responseBody", rawBody),
		)
		return entity.IndexPrice{}, fmt.Errorf("price index request to %s failed with status %d", requestURL, resp.StatusCode())
	}

	var body coinsResponse
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return entity.IndexPrice{}, fmt.Errorf("failed to decode price index response: %v: %w", err, entity.ErrMalformedResponse)
	}

	quote, ok := lookupCoin(body.Coins, coin)
	if !ok || quote.Price <= 0 {
		return entity.IndexPrice{}, fmt.Errorf("%s: %w", coin, entity.ErrPriceUnavailable)
	}
	return quote, nil
}

// lookupCoin matches the coin key case-insensitively; the index echoes checksummed addresses.
func lookupCoin(coins map[string]entity.IndexPrice, coin string) (entity.IndexPrice, bool) {
	if q, ok := coins[coin]; ok {
		return q, true
	}
	for k, q := range coins {
		if strings.EqualFold(k, coin) {
			return q, true
		}
	}
	return entity.IndexPrice{}, false
}
