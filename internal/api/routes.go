package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/celebrum-correlation-go/internal/api/handlers"
	"github.com/irfndi/celebrum-correlation-go/internal/middleware"
	"github.com/irfndi/celebrum-correlation-go/internal/storage"
	"github.com/irfndi/celebrum-correlation-go/web"
)

// ArtifactSource is what the dashboard reads exported results from.
type ArtifactSource interface {
	handlers.ArtifactReader
	handlers.ArtifactInspector
}

// RouteConfig collects the dependencies of the dashboard routes. DB, Redis
// and Runs are optional and must be left as untyped nil when disabled.
type RouteConfig struct {
	Artifacts            ArtifactSource
	DB                   handlers.HealthChecker
	Redis                handlers.HealthChecker
	Runs                 handlers.RunHistory
	Version              string
	Title                string
	CorrelationThreshold float64
	DistanceThreshold    float64
	Logger               *logrus.Logger
}

// NewRouter returns a gin engine with the standard middleware stack.
func NewRouter(serviceName string, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.RequestLogger(logger))
	return router
}

func SetupRoutes(router *gin.Engine, cfg RouteConfig) error {
	tmpl, err := web.Templates()
	if err != nil {
		return fmt.Errorf("failed to parse dashboard templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	healthHandler := handlers.NewHealthHandler(cfg.Artifacts, storage.DashboardArtifacts, cfg.DB, cfg.Redis, cfg.Version)
	dashboardHandler := handlers.NewDashboardHandler(cfg.Artifacts, cfg.Logger)

	router.GET("/health", gin.WrapF(healthHandler.HealthCheck))
	router.HEAD("/health", gin.WrapF(healthHandler.HealthCheck))
	router.GET("/health/live", gin.WrapF(healthHandler.LivenessCheck))

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/comparison-data", dashboardHandler.GetComparisonData)
		apiGroup.GET("/uncorrelated-coins", dashboardHandler.GetUncorrelatedCoins)
		apiGroup.GET("/price-distance-coins", dashboardHandler.GetPriceDistanceCoins)
		apiGroup.GET("/average-returns", dashboardHandler.GetAverageReturns)
		apiGroup.GET("/run-log", dashboardHandler.GetRunLog)

		if cfg.Runs != nil {
			runsHandler := handlers.NewRunsHandler(cfg.Runs, cfg.Logger)
			apiGroup.GET("/runs", runsHandler.ListRuns)
			apiGroup.GET("/runs/:id", runsHandler.GetRun)
		}
	}

	router.StaticFS("/static", web.StaticFS())

	page := web.PageData{
		Title:                cfg.Title,
		Version:              cfg.Version,
		CorrelationThreshold: cfg.CorrelationThreshold,
		DistanceThreshold:    cfg.DistanceThreshold,
	}
	if page.Title == "" {
		page.Title = "Crypto Correlation Dashboard"
	}
	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, web.IndexTemplate, page)
	})

	return nil
}
