package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-correlation-go/internal/storage"
)

type MockArtifactReader struct {
	mock.Mock
}

func (m *MockArtifactReader) Read(name string) ([]byte, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func setupDashboardRouter(reader ArtifactReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewDashboardHandler(reader, nil)
	router.GET("/api/comparison-data", handler.GetComparisonData)
	router.GET("/api/uncorrelated-coins", handler.GetUncorrelatedCoins)
	router.GET("/api/price-distance-coins", handler.GetPriceDistanceCoins)
	router.GET("/api/average-returns", handler.GetAverageReturns)
	router.GET("/api/run-log", handler.GetRunLog)
	return router
}

func TestDashboardHandler_ServesArtifactsVerbatim(t *testing.T) {
	dir := t.TempDir()
	artifacts := map[string]string{
		"/api/comparison-data":      storage.ComparisonDataFile,
		"/api/uncorrelated-coins":   storage.UncorrelatedCoinsFile,
		"/api/price-distance-coins": storage.PriceDistanceCoinsFile,
		"/api/average-returns":      storage.AverageReturnsFile,
		"/api/run-log":              storage.RunLogFile,
	}
	bodies := make(map[string]string)
	for path, name := range artifacts {
		// Unusual spacing proves the bytes are not re-encoded.
		body := `{ "artifact" :  "` + name + `" }`
		bodies[path] = body
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	router := setupDashboardRouter(storage.NewArtifactStore(dir))

	for path := range artifacts {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, bodies[path], w.Body.String())
		})
	}
}

func TestDashboardHandler_MissingArtifact(t *testing.T) {
	router := setupDashboardRouter(storage.NewArtifactStore(t.TempDir()))

	tests := []struct {
		path    string
		message string
	}{
		{"/api/comparison-data", "Comparison data not found"},
		{"/api/uncorrelated-coins", "Uncorrelated coins data not found"},
		{"/api/price-distance-coins", "Price distance coins data not found"},
		{"/api/average-returns", "Average returns data not found"},
		{"/api/run-log", "Run log not found"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, http.StatusNotFound, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body["error"])
		})
	}
}

func TestDashboardHandler_UnreadableArtifact(t *testing.T) {
	reader := &MockArtifactReader{}
	reader.On("Read", storage.AverageReturnsFile).Return(nil, assert.AnError)

	router := setupDashboardRouter(reader)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/average-returns", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), storage.AverageReturnsFile)
	reader.AssertExpectations(t)
}

func TestDashboardHandler_ReadsFilePerRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, storage.UncorrelatedCoinsFile)
	router := setupDashboardRouter(storage.NewArtifactStore(dir))

	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/uncorrelated-coins", nil))
	assert.Equal(t, `[]`, w.Body.String())

	require.NoError(t, os.WriteFile(path, []byte(`[{"symbol":"XMR"}]`), 0o644))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/uncorrelated-coins", nil))
	assert.Equal(t, `[{"symbol":"XMR"}]`, w.Body.String())
}
