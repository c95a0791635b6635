package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/leafnet"
)

// GetStats returns 30-day disease counts and percentages over completed records.
func (c *Controller) GetStats(ctx echo.Context) error {
	if cached, found := c.statsCache.Get(statsCacheKey); found {
		if stats, ok := cached.(*datastore.DiseaseStats); ok {
			return ctx.JSON(http.StatusOK, stats)
		}
	}

	stats, err := datastore.DiseaseStatsSince(ctx.Request().Context(), c.DS, c.labels(), c.now())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute disease statistics", http.StatusInternalServerError)
	}

	c.statsCache.SetDefault(statsCacheKey, stats)
	return ctx.JSON(http.StatusOK, stats)
}

func (c *Controller) labels() []string {
	if c.Classifier != nil {
		return c.Classifier.Labels()
	}
	return leafnet.DefaultLabels()
}
