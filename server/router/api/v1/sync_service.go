package v1

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/etlabplus/internal/errors"
	"github.com/hrygo/etlabplus/server/service/loader"
)

// GetCacheStatus reports every known cache key.
// GET /api/v1/cache/status
func (s *APIV1Service) GetCacheStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Cache.Status(c.Request().Context()))
}

// ClearCache removes every cached dataset, the theme included.
// DELETE /api/v1/cache
func (s *APIV1Service) ClearCache(c echo.Context) error {
	if !s.Cache.ClearAll(c.Request().Context()) {
		return respondError(c, apperrors.StorageFailure("failed to clear cache", nil))
	}
	return c.NoContent(http.StatusNoContent)
}

// SyncRequest selects the load order.
type SyncRequest struct {
	Preset string `json:"preset"`
}

// Sync loads every dataset from the portal in preset order. The report is
// returned even when some datasets failed.
// POST /api/v1/sync?preset=daily
func (s *APIV1Service) Sync(c echo.Context) error {
	var req SyncRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apperrors.InvalidArgument("invalid sync request"))
	}
	if req.Preset == "" {
		req.Preset = c.QueryParam("preset")
	}
	if req.Preset == "" {
		req.Preset = s.Profile.LoadPreset
	}
	if !slices.Contains(loader.Presets(), req.Preset) {
		return respondError(c, apperrors.InvalidArgument("unknown preset "+req.Preset))
	}

	ctx := c.Request().Context()
	report, err := s.Loader.LoadAll(ctx, req.Preset)
	if ctx.Err() != nil {
		return respondError(c, apperrors.FromContext(ctx.Err()))
	}
	if len(report.Results) > 0 && apperrors.IsCode(report.Results[0].Err, apperrors.ErrCodeUnauthorized) {
		return respondError(c, report.Results[0].Err)
	}
	status := http.StatusOK
	if err != nil || report.Failed() > 0 {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, report)
}

// GetSyncStatus returns the state of every dataset since start.
// GET /api/v1/sync/status
func (s *APIV1Service) GetSyncStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Loader.States())
}
