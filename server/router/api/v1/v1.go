package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/etlabplus/internal/observability"
	"github.com/hrygo/etlabplus/internal/profile"
	ratelimit "github.com/hrygo/etlabplus/server/middleware"
	"github.com/hrygo/etlabplus/server/service/academic"
	"github.com/hrygo/etlabplus/server/service/loader"
	"github.com/hrygo/etlabplus/store/cache"
)

// CacheAdmin is the cache surface exposed for diagnostics.
type CacheAdmin interface {
	Status(ctx context.Context) map[string]cache.Status
	ClearAll(ctx context.Context) bool
}

// Syncer refreshes datasets from the portal. *loader.Loader satisfies it.
type Syncer interface {
	LoadAll(ctx context.Context, preset string) (*loader.Report, error)
	States() []loader.DatasetState
	Metrics() *observability.Metrics
}

type APIV1Service struct {
	Profile  *profile.Profile
	Academic *academic.Service
	Cache    CacheAdmin
	Loader   Syncer
	Location *time.Location

	limiter *ratelimit.RateLimiter
}

func NewAPIV1Service(profile *profile.Profile, academicService *academic.Service, cacheAdmin CacheAdmin, syncer Syncer, loc *time.Location) *APIV1Service {
	if loc == nil {
		loc = time.UTC
	}
	return &APIV1Service{
		Profile:  profile,
		Academic: academicService,
		Cache:    cacheAdmin,
		Loader:   syncer,
		Location: loc,
		limiter:  ratelimit.NewRateLimiter(ratelimit.DefaultRequestsPerSecond, ratelimit.DefaultBurst),
	}
}

// RegisterRoutes mounts the health check and the /api/v1 routes.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	echoServer.GET("/healthz", s.Healthz)

	// The API serves a local client; any origin may read it.
	apiGroup := echoServer.Group("/api/v1",
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOriginFunc: func(_ string) (bool, error) {
				return true, nil
			},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		}),
		s.limiter.Middleware(),
	)

	apiGroup.GET("/cache/status", s.GetCacheStatus)
	apiGroup.DELETE("/cache", s.ClearCache)

	apiGroup.GET("/attendance", s.GetAttendance)
	apiGroup.GET("/timetable", s.GetTimetable)
	apiGroup.GET("/timetable/summary", s.GetTimetableSummary)
	apiGroup.GET("/analysis", s.GetAnalysis)
	apiGroup.GET("/next-class", s.GetNextClass)
	apiGroup.GET("/results/analysis", s.GetResultsAnalysis)

	apiGroup.POST("/sync", s.Sync)
	apiGroup.GET("/sync/status", s.GetSyncStatus)

	apiGroup.POST("/ai/query", s.AskAI)
	apiGroup.GET("/ai/history", s.GetChatHistory)
	apiGroup.GET("/theme", s.GetTheme)
	apiGroup.PUT("/theme", s.SetTheme)

	apiGroup.GET("/system/metrics", s.GetMetricsOverview)
}

// Healthz reports liveness.
// GET /healthz
func (s *APIV1Service) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.Profile.Version,
	})
}
