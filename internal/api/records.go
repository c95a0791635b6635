package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/logger"
)

const maxAlertLimit = 500

// CreateImageRequest registers an uploaded image for analysis.
type CreateImageRequest struct {
	ImagePath string `json:"image_path"`
	DeviceID  string `json:"device_id"`
}

// CreateImage inserts a pending_analysis record.
func (c *Controller) CreateImage(ctx echo.Context) error {
	var req CreateImageRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	req.ImagePath = strings.TrimSpace(req.ImagePath)
	if req.ImagePath == "" {
		return c.HandleError(ctx, nil, "image_path is required", http.StatusBadRequest)
	}

	rec := &datastore.ImageRecord{
		ImagePath: req.ImagePath,
		DeviceID:  strings.TrimSpace(req.DeviceID),
	}
	if err := c.DS.CreateImage(ctx.Request().Context(), rec); err != nil {
		return c.HandleError(ctx, err, "Failed to create image record", statusFor(err))
	}

	c.log.Info("image record created",
		logger.String("record_id", rec.ID),
		logger.String("device_id", rec.DeviceID))
	return ctx.JSON(http.StatusCreated, rec)
}

// GetImage returns one image record.
func (c *Controller) GetImage(ctx echo.Context) error {
	rec, err := c.DS.GetImage(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Image record not available", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, rec)
}

// GetDevice returns the latest result summary for a device.
func (c *Controller) GetDevice(ctx echo.Context) error {
	summary, err := c.DS.GetDeviceSummary(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Device not available", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, summary)
}

// ListDeviceAlerts returns a device's alerts, newest first.
// Query parameters: unread=true, limit=N.
func (c *Controller) ListDeviceAlerts(ctx echo.Context) error {
	unreadOnly := false
	if v := ctx.QueryParam("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid unread parameter", http.StatusBadRequest)
		}
		unreadOnly = b
	}

	limit := 0
	if v := ctx.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.HandleError(ctx, err, "Invalid limit parameter", http.StatusBadRequest)
		}
		limit = min(n, maxAlertLimit)
	}

	alerts, err := c.DS.ListAlerts(ctx.Request().Context(), ctx.Param("id"), unreadOnly, limit)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list alerts", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, alerts)
}

// MarkAlertRead flags an alert as read.
func (c *Controller) MarkAlertRead(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := c.DS.MarkAlertRead(ctx.Request().Context(), id); err != nil {
		return c.HandleError(ctx, err, "Failed to mark alert read", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, map[string]any{"id": id, "read": true})
}
