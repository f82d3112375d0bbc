package models

import "time"

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// SkippedCoin records a coin whose history could not be obtained.
type SkippedCoin struct {
	Symbol string `json:"symbol"`
	CoinID string `json:"coin_id"`
	Reason string `json:"reason"`
}

// ExcludedCoin records a coin that was fetched but left out of an analysis
// stage, e.g. for insufficient history or a flat price.
type ExcludedCoin struct {
	Symbol string `json:"symbol"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// RunLog summarizes one pipeline run.
type RunLog struct {
	ID                   string         `json:"id"`
	StartedAt            time.Time      `json:"started_at"`
	FinishedAt           *time.Time     `json:"finished_at,omitempty"`
	Status               string         `json:"status"`
	TopN                 int            `json:"top_n"`
	LookbackDays         int            `json:"lookback_days"`
	CorrelationThreshold float64        `json:"correlation_threshold"`
	DistanceThreshold    float64        `json:"distance_threshold"`
	Requested            int            `json:"requested"`
	Fetched              int            `json:"fetched"`
	Reused               int            `json:"reused"`
	Analyzed             int            `json:"analyzed"`
	Skipped              []SkippedCoin  `json:"skipped"`
	Excluded             []ExcludedCoin `json:"excluded"`
	UncorrelatedCount    int            `json:"uncorrelated_count"`
	OutlierCount         int            `json:"outlier_count"`
	CacheHits            int64          `json:"cache_hits"`
	CacheMisses          int64          `json:"cache_misses"`
	Error                string         `json:"error,omitempty"`
}

// Duration returns the wall time of a finished run.
func (r *RunLog) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
