package v1

import (
	"math"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/etlabplus/internal/observability"
)

// MetricsOverviewResponse represents the overview response of portal fetch metrics
type MetricsOverviewResponse struct {
	FetchTotal   int64                           `json:"fetch_total"`
	FetchFailed  int64                           `json:"fetch_failed"`
	SuccessRate  float64                         `json:"success_rate"`
	AvgLatencyMs int64                           `json:"avg_latency_ms"`
	Datasets     []observability.DatasetSnapshot `json:"datasets"`
}

// GetMetricsOverview returns fetch counters since the process started
// GET /api/v1/system/metrics
func (s *APIV1Service) GetMetricsOverview(c echo.Context) error {
	snap := s.Loader.Metrics().Snapshot()

	resp := MetricsOverviewResponse{
		FetchTotal:  snap.FetchTotal,
		FetchFailed: snap.FetchFailed,
		SuccessRate: math.Round(snap.SuccessRate()*100) / 100,
		Datasets:    snap.Datasets,
	}
	var weighted int64
	for _, ds := range snap.Datasets {
		weighted += ds.AverageDurationMs * ds.FetchCount
	}
	if snap.FetchTotal > 0 {
		resp.AvgLatencyMs = weighted / snap.FetchTotal
	}
	return c.JSON(http.StatusOK, resp)
}
