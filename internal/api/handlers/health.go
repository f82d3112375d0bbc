package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

var startTime = time.Now()

// HealthChecker is implemented by the optional Postgres and Redis clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ArtifactInspector reports which artifacts are absent.
type ArtifactInspector interface {
	Missing(names ...string) []string
}

type HealthHandler struct {
	artifacts ArtifactInspector
	required  []string
	db        HealthChecker
	redis     HealthChecker
	version   string
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

// NewHealthHandler builds a handler. db and redis may be nil when the
// pipeline runs without them.
func NewHealthHandler(artifacts ArtifactInspector, required []string, db, redis HealthChecker, version string) *HealthHandler {
	return &HealthHandler{
		artifacts: artifacts,
		required:  required,
		db:        db,
		redis:     redis,
		version:   version,
	}
}

func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]string)

	if missing := h.artifacts.Missing(h.required...); len(missing) > 0 {
		services["artifacts"] = "missing: " + strings.Join(missing, ", ")
	} else {
		services["artifacts"] = "healthy"
	}

	if h.db != nil {
		services["database"] = checkStatus(r.Context(), h.db)
	}
	if h.redis != nil {
		services["redis"] = checkStatus(r.Context(), h.redis)
	}

	overallStatus := "healthy"
	for _, status := range services {
		if status != "healthy" {
			overallStatus = "degraded"
			break
		}
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  services,
		Version:   h.version,
		Uptime:    time.Since(startTime).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if overallStatus == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// LivenessCheck only reports that the process is serving.
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	}); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func checkStatus(ctx context.Context, checker HealthChecker) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := checker.HealthCheck(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}
