package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-correlation-go/internal/database"
	"github.com/irfndi/celebrum-correlation-go/internal/middleware"
	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// RunHistory is the read side of the run repository.
type RunHistory interface {
	GetRun(ctx context.Context, id string) (*models.RunLog, error)
	ListRecentRuns(ctx context.Context, limit int) ([]models.RunLog, error)
}

// RunsHandler exposes past pipeline runs recorded in Postgres.
type RunsHandler struct {
	runs   RunHistory
	logger *logrus.Logger
}

func NewRunsHandler(runs RunHistory, logger *logrus.Logger) *RunsHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &RunsHandler{runs: runs, logger: logger}
}

// ListRuns handles GET /api/runs?limit=N.
func (h *RunsHandler) ListRuns(c *gin.Context) {
	limit := defaultRunLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunLimit)
	}

	middleware.AddSpanAttribute(c, "runs.limit", limit)
	runs, err := h.runs.ListRecentRuns(c.Request.Context(), limit)
	if err != nil {
		middleware.RecordError(c, err, "list runs failed")
		h.logger.WithError(err).Error("Failed to list pipeline runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}
	if runs == nil {
		runs = []models.RunLog{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// GetRun handles GET /api/runs/:id.
func (h *RunsHandler) GetRun(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run id"})
		return
	}

	run, err := h.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		middleware.RecordError(c, err, "get run failed")
		h.logger.WithError(err).WithField("run_id", id).Error("Failed to load pipeline run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load run"})
		return
	}
	c.JSON(http.StatusOK, run)
}
