// Package api serves the LeafNet REST API with echo.
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/leafnet"
	"github.com/leafnet/leafnet-go/internal/logger"
	"github.com/leafnet/leafnet-go/internal/observability"
)

const (
	defaultStatsCacheTTL = time.Minute
	statsCacheKey        = "disease_stats"
)

// Controller holds the handlers for /api/v1.
type Controller struct {
	Group        *echo.Group
	DS           datastore.Interface
	Preprocessor *leafnet.Preprocessor
	Classifier   *leafnet.Classifier
	Settings     *conf.Settings

	metrics    *observability.Metrics
	statsCache *cache.Cache
	startTime  time.Time
	now        func() time.Time
	log        logger.Logger
}

// NewController creates the controller and registers its routes on e.
func NewController(e *echo.Echo, ds datastore.Interface, pre *leafnet.Preprocessor,
	classifier *leafnet.Classifier, settings *conf.Settings, m *observability.Metrics,
) *Controller {
	ttl := defaultStatsCacheTTL
	if settings != nil && settings.WebServer.StatsCacheTTL > 0 {
		ttl = settings.WebServer.StatsCacheTTL
	}

	c := &Controller{
		Group:        e.Group("/api/v1"),
		DS:           ds,
		Preprocessor: pre,
		Classifier:   classifier,
		Settings:     settings,
		metrics:      m,
		statsCache:   cache.New(ttl, 2*ttl),
		startTime:    time.Now(),
		now:          time.Now,
		log:          GetLogger(),
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	c.Group.Any("/test", c.TestModel)
	cors := detectCORS()
	c.Group.POST("/detect", c.DetectDisease, cors)
	c.Group.OPTIONS("/detect", func(ctx echo.Context) error { return ctx.NoContent(http.StatusNoContent) }, cors)
	c.Group.GET("/stats", c.GetStats)

	c.Group.POST("/images", c.CreateImage)
	c.Group.GET("/images/:id", c.GetImage)
	c.Group.GET("/devices/:id", c.GetDevice)
	c.Group.GET("/devices/:id/alerts", c.ListDeviceAlerts)
	c.Group.PUT("/alerts/:id/read", c.MarkAlertRead)
}

// InvalidateStats drops the cached stats so the next request recounts.
func (c *Controller) InvalidateStats() {
	c.statsCache.Delete(statsCacheKey)
}
