package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-correlation-go/internal/logging"
	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(raw), &line))
		lines = append(lines, line)
	}
	return lines
}

func sampleRunLog() *models.RunLog {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Second)
	return &models.RunLog{
		ID:         "run-1",
		StartedAt:  started,
		FinishedAt: &finished,
		Status:     models.RunStatusCompleted,
		Analyzed:   4,
		Skipped:    []models.SkippedCoin{{Symbol: "GHOST", CoinID: "ghost", Reason: "coin not found"}},
	}
}

func TestLogRunOutcome_Completed(t *testing.T) {
	var buf bytes.Buffer
	logRunOutcome(logging.NewStandardLoggerWithWriter(&buf, "info", "test"), sampleRunLog(), nil)

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "Coin skipped", lines[0]["msg"])
	assert.Equal(t, "GHOST", lines[0]["symbol"])
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.Equal(t, "Pipeline run finished", lines[1]["msg"])
	assert.Equal(t, "run-1", lines[1]["run_id"])
	assert.EqualValues(t, 4, lines[1]["analyzed"])
	assert.EqualValues(t, 2000, lines[1]["duration_ms"])
}

func TestLogRunOutcome_Failed(t *testing.T) {
	var buf bytes.Buffer
	run := sampleRunLog()
	run.Skipped = nil
	run.Status = models.RunStatusFailed

	logRunOutcome(logging.NewStandardLoggerWithWriter(&buf, "info", "test"), run, errors.New("upstream down"))

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Pipeline run failed", lines[0]["msg"])
	assert.Equal(t, "upstream down", lines[0]["error"])
	assert.Equal(t, "run-1", lines[0]["run_id"])
}
