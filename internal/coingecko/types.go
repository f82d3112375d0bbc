package coingecko

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// MarketChartResponse is the body of /coins/{id}/market_chart. Each entry is
// a [unix_ms, value] pair.
type MarketChartResponse struct {
	Prices       [][]float64 `json:"prices"`
	MarketCaps   [][]float64 `json:"market_caps"`
	TotalVolumes [][]float64 `json:"total_volumes"`
}

// PingResponse is the body of /ping.
type PingResponse struct {
	GeckoSays string `json:"gecko_says"`
}

// ErrorResponse is the error body CoinGecko returns on most failures.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

// APIError is a non-2xx response from the market data API.
type APIError struct {
	StatusCode int
	Body       string
	// RetryAfter is the server-suggested wait, zero when absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("coingecko API error (%d): %s", e.StatusCode, body)
}

// IsRetryable reports whether a failed call is worth repeating: rate limits,
// server errors and transport failures are; other client errors and
// malformed bodies are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	return true
}

// DecodeError wraps a response body that could not be parsed.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to unmarshal response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
