// Package coingecko is a small client for the CoinGecko v3 REST API.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/irfndi/celebrum-correlation-go/internal/config"
	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	apiKeyHeader   = "x-cg-demo-api-key"
)

// Client represents the CoinGecko HTTP client.
type Client struct {
	client     *resty.Client
	baseURL    string
	vsCurrency string
}

// NewClient creates a new CoinGecko client instance.
func NewClient(cfg *config.CoinGeckoConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	vs := cfg.VsCurrency
	if vs == "" {
		vs = "usd"
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "Celebrum-Correlation-Go/1.0")
	if cfg.APIKey != "" {
		client.SetHeader(apiKeyHeader, cfg.APIKey)
	}

	return &Client{
		client:     client,
		baseURL:    baseURL,
		vsCurrency: vs,
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// VsCurrency returns the quote currency used for prices.
func (c *Client) VsCurrency() string {
	return c.vsCurrency
}

// Ping checks that the API is reachable.
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	var response PingResponse
	if err := c.get(ctx, "/ping", nil, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetTopCoins lists the top coins by market capitalization, largest first.
func (c *Client) GetTopCoins(ctx context.Context, limit int) ([]models.CoinListing, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	params := map[string]string{
		"vs_currency": c.vsCurrency,
		"order":       "market_cap_desc",
		"per_page":    strconv.Itoa(limit),
		"page":        "1",
		"sparkline":   "false",
	}

	var listings []models.CoinListing
	if err := c.get(ctx, "/coins/markets", nil, params, &listings); err != nil {
		return nil, err
	}
	for i := range listings {
		listings[i].Symbol = listings[i].Ticker()
	}
	return listings, nil
}

// GetMarketChart fetches daily price history for a coin over the last days.
func (c *Client) GetMarketChart(ctx context.Context, coinID string, days int) (*MarketChartResponse, error) {
	if coinID == "" {
		return nil, errors.New("coin id is required")
	}
	params := map[string]string{
		"vs_currency": c.vsCurrency,
		"days":        strconv.Itoa(days),
		"interval":    "daily",
	}

	var response MarketChartResponse
	if err := c.get(ctx, "/coins/{id}/market_chart", map[string]string{"id": coinID}, params, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// get issues a GET request. Path parameters are escaped by resty.
func (c *Client) get(ctx context.Context, path string, pathParams, params map[string]string, result interface{}) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(pathParams).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to make request to %s: %w", path, err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return &APIError{
			StatusCode: resp.StatusCode(),
			Body:       errorMessage(resp.Body()),
			RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After")),
		}
	}

	if result != nil {
		if err := json.Unmarshal(resp.Body(), result); err != nil {
			return &DecodeError{Err: err}
		}
	}
	return nil
}

func errorMessage(body []byte) string {
	var errorResp ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err == nil {
		if errorResp.Error != "" {
			return errorResp.Error
		}
		if errorResp.Status.ErrorMessage != "" {
			return errorResp.Status.ErrorMessage
		}
	}
	return string(body)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
