package refresh

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/hrygo/etlabplus/internal/errors"
	"github.com/hrygo/etlabplus/internal/observability"
	"github.com/hrygo/etlabplus/server/service/loader"
	"github.com/hrygo/etlabplus/store/cache"
)

// DefaultInterval is how often stale datasets are looked for.
const DefaultInterval = 15 * time.Minute

// Loader loads one dataset. *loader.Loader satisfies it.
type Loader interface {
	Load(ctx context.Context, name string) error
}

// Cache reads entries without deleting expired ones.
type Cache interface {
	GetWithFallback(ctx context.Context, key string) *cache.Entry
}

// Runner reloads datasets whose cache entry is missing or expired while
// the local API server runs.
type Runner struct {
	loader   Loader
	cache    Cache
	interval time.Duration
	datasets []string
}

// NewRunner creates a refresh runner. A non-positive interval uses
// DefaultInterval.
func NewRunner(l Loader, c Cache, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	datasets := make([]string, 0, len(loader.DefaultEndpoints))
	for _, ep := range loader.Order(loader.DefaultEndpoints, loader.PresetDefault) {
		datasets = append(datasets, ep.Name)
	}
	return &Runner{
		loader:   l,
		cache:    c,
		interval: interval,
		datasets: datasets,
	}
}

// Run starts the background task.
func (r *Runner) Run(ctx context.Context) {
	// Process once on startup
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			slog.Info("refresh runner stopped")
			return
		}
	}
}

// RunOnce reloads every stale dataset once and returns how many loaded.
// It stops early when signed out.
func (r *Runner) RunOnce(ctx context.Context) int {
	refreshed := 0
	for _, name := range r.datasets {
		if ctx.Err() != nil {
			return refreshed
		}
		if !r.stale(ctx, name) {
			continue
		}

		err := r.loader.Load(ctx, name)
		switch {
		case err == nil:
			refreshed++
		case apperrors.IsCode(err, apperrors.ErrCodeUnauthorized):
			slog.Debug("skipping refresh while signed out")
			return refreshed
		default:
			slog.Warn("dataset refresh failed",
				slog.String(observability.LogFieldDataset, name),
				slog.String("error", err.Error()),
			)
		}
	}
	if refreshed > 0 {
		slog.Info("stale datasets refreshed", slog.Int("count", refreshed))
	}
	return refreshed
}

func (r *Runner) stale(ctx context.Context, name string) bool {
	key, ok := cache.KeyFor(name)
	if !ok {
		return false
	}
	entry := r.cache.GetWithFallback(ctx, key)
	return entry == nil || entry.IsFallback
}
