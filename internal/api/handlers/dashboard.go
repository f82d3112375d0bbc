package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-correlation-go/internal/middleware"
	"github.com/irfndi/celebrum-correlation-go/internal/storage"
)

// ArtifactReader is the read side of the artifact store.
type ArtifactReader interface {
	Read(name string) ([]byte, error)
}

// DashboardHandler serves the exported analysis artifacts verbatim.
type DashboardHandler struct {
	artifacts ArtifactReader
	logger    *logrus.Logger
}

func NewDashboardHandler(artifacts ArtifactReader, logger *logrus.Logger) *DashboardHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &DashboardHandler{artifacts: artifacts, logger: logger}
}

// GetComparisonData handles GET /api/comparison-data.
func (h *DashboardHandler) GetComparisonData(c *gin.Context) {
	h.serveArtifact(c, storage.ComparisonDataFile, "Comparison data not found")
}

// GetUncorrelatedCoins handles GET /api/uncorrelated-coins.
func (h *DashboardHandler) GetUncorrelatedCoins(c *gin.Context) {
	h.serveArtifact(c, storage.UncorrelatedCoinsFile, "Uncorrelated coins data not found")
}

// GetPriceDistanceCoins handles GET /api/price-distance-coins.
func (h *DashboardHandler) GetPriceDistanceCoins(c *gin.Context) {
	h.serveArtifact(c, storage.PriceDistanceCoinsFile, "Price distance coins data not found")
}

// GetAverageReturns handles GET /api/average-returns.
func (h *DashboardHandler) GetAverageReturns(c *gin.Context) {
	h.serveArtifact(c, storage.AverageReturnsFile, "Average returns data not found")
}

// GetRunLog handles GET /api/run-log.
func (h *DashboardHandler) GetRunLog(c *gin.Context) {
	h.serveArtifact(c, storage.RunLogFile, "Run log not found")
}

func (h *DashboardHandler) serveArtifact(c *gin.Context, name, notFound string) {
	middleware.AddSpanAttribute(c, "artifact.name", name)
	data, err := h.artifacts.Read(name)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": notFound})
			return
		}
		middleware.RecordError(c, err, "artifact read failed")
		h.logger.WithError(err).WithField("artifact", name).Error("Failed to read artifact")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read " + name})
		return
	}
	middleware.AddSpanAttribute(c, "artifact.bytes", len(data))
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}
