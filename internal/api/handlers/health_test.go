package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-correlation-go/internal/storage"
)

// MockHealthChecker mocks the Postgres and Redis health checks.
type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func writeArtifacts(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(`{}`), 0o644))
	}
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func TestHealthHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name           string
		artifacts      []string
		dbError        error
		redisError     error
		expectedStatus int
		expectedState  string
	}{
		{
			name:           "all services healthy",
			artifacts:      storage.DashboardArtifacts,
			expectedStatus: http.StatusOK,
			expectedState:  "healthy",
		},
		{
			name:           "missing artifacts",
			artifacts:      storage.DashboardArtifacts[:2],
			expectedStatus: http.StatusServiceUnavailable,
			expectedState:  "degraded",
		},
		{
			name:           "database error",
			artifacts:      storage.DashboardArtifacts,
			dbError:        assert.AnError,
			expectedStatus: http.StatusServiceUnavailable,
			expectedState:  "degraded",
		},
		{
			name:           "redis error",
			artifacts:      storage.DashboardArtifacts,
			redisError:     assert.AnError,
			expectedStatus: http.StatusServiceUnavailable,
			expectedState:  "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeArtifacts(t, dir, tt.artifacts...)

			mockDB := &MockHealthChecker{}
			mockRedis := &MockHealthChecker{}
			mockDB.On("HealthCheck", mock.Anything).Return(tt.dbError)
			mockRedis.On("HealthCheck", mock.Anything).Return(tt.redisError)

			handler := NewHealthHandler(storage.NewArtifactStore(dir), storage.DashboardArtifacts, mockDB, mockRedis, "1.2.3")

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			handler.HealthCheck(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			response := decodeHealth(t, w)
			assert.Equal(t, tt.expectedState, response.Status)
			assert.Equal(t, "1.2.3", response.Version)
			assert.NotEmpty(t, response.Uptime)
			assert.Contains(t, response.Services, "artifacts")
			assert.Contains(t, response.Services, "database")
			assert.Contains(t, response.Services, "redis")

			mockDB.AssertExpectations(t)
			mockRedis.AssertExpectations(t)
		})
	}
}

func TestHealthHandler_ListsMissingArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir, storage.ComparisonDataFile, storage.AverageReturnsFile)

	handler := NewHealthHandler(storage.NewArtifactStore(dir), storage.DashboardArtifacts, nil, nil, "dev")

	w := httptest.NewRecorder()
	handler.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	response := decodeHealth(t, w)
	assert.Equal(t,
		"missing: "+storage.UncorrelatedCoinsFile+", "+storage.PriceDistanceCoinsFile,
		response.Services["artifacts"])
}

func TestHealthHandler_OptionalServicesOmitted(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir, storage.DashboardArtifacts...)

	handler := NewHealthHandler(storage.NewArtifactStore(dir), storage.DashboardArtifacts, nil, nil, "dev")

	w := httptest.NewRecorder()
	handler.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	response := decodeHealth(t, w)
	assert.Equal(t, map[string]string{"artifacts": "healthy"}, response.Services)
}

func TestHealthHandler_UnhealthyStatusCarriesError(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir, storage.DashboardArtifacts...)

	mockDB := &MockHealthChecker{}
	mockDB.On("HealthCheck", mock.Anything).Return(assert.AnError)

	handler := NewHealthHandler(storage.NewArtifactStore(dir), storage.DashboardArtifacts, mockDB, nil, "dev")

	w := httptest.NewRecorder()
	handler.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	response := decodeHealth(t, w)
	assert.Equal(t, "unhealthy: "+assert.AnError.Error(), response.Services["database"])
}

func TestHealthHandler_LivenessCheck(t *testing.T) {
	handler := NewHealthHandler(storage.NewArtifactStore(t.TempDir()), storage.DashboardArtifacts, nil, nil, "dev")

	w := httptest.NewRecorder()
	handler.LivenessCheck(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "alive", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}
