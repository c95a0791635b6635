package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/leafnet/leafnet-go/internal/diskmanager"
)

// HealthCheck reports model state, uptime, host memory and scratch disk space.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	uptime := time.Since(c.startTime)
	response := map[string]any{
		"status":         "healthy",
		"model_loaded":   c.Classifier != nil && c.Classifier.Cache().Loaded(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
		"goroutines":     runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx.Request().Context()); err == nil {
		response["memory"] = map[string]any{
			"total":        vm.Total,
			"available":    vm.Available,
			"used_percent": vm.UsedPercent,
		}
	}

	if c.Settings != nil {
		if usage, err := diskmanager.GetUsage(ctx.Request().Context(), c.Settings.Pipeline.ScratchDirectory()); err == nil {
			response["scratch_disk"] = usage
		}
	}

	if c.DS != nil {
		if _, err := c.DS.ListPendingImages(ctx.Request().Context(), 1); err != nil {
			response["status"] = "degraded"
			response["database_status"] = "disconnected"
			response["database_error"] = err.Error()
		} else {
			response["database_status"] = "connected"
		}
	}

	return ctx.JSON(http.StatusOK, response)
}
