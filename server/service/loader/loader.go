// Package loader fetches the portal datasets into the cache: in preset
// order, one attempt at a time per dataset with a timeout and retries, and
// with concurrent refreshes of the same dataset coalesced.
package loader

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/hrygo/etlabplus/internal/errors"
	"github.com/hrygo/etlabplus/internal/observability"
	"github.com/hrygo/etlabplus/plugin/portal"
	"github.com/hrygo/etlabplus/store/cache"
)

// Status of a dataset load.
type Status string

const (
	StatusPending Status = "pending"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Fetcher returns the raw payload of a portal endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, token, endpoint string) (json.RawMessage, error)
}

// TokenSource supplies the bearer token. *session.Service satisfies it.
type TokenSource interface {
	Token() (string, error)
}

// Cache is the part of the cache manager the loader writes through.
type Cache interface {
	SaveDataset(ctx context.Context, name string, data any) bool
	GetWithFallback(ctx context.Context, key string) *cache.Entry
}

// Config tunes a load run.
type Config struct {
	Endpoints []Endpoint
	// Delay separates consecutive calls and consecutive retries.
	Delay time.Duration
	// ContinueOnError keeps loading the remaining datasets after a failure.
	ContinueOnError bool
	// MaxConcurrentLoads of 1 loads sequentially.
	MaxConcurrentLoads int64
}

// DefaultConfig returns the default load configuration.
func DefaultConfig() Config {
	return Config{
		Endpoints:          DefaultEndpoints,
		Delay:              500 * time.Millisecond,
		ContinueOnError:    true,
		MaxConcurrentLoads: 1,
	}
}

// DatasetState is the load state of one dataset.
type DatasetState struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitzero"`
	IsCached    bool      `json:"isCached"`
	IsFresh     bool      `json:"isFresh"`
	Attempts    int       `json:"attempts,omitempty"`
}

// Result is the outcome of one dataset in a run.
type Result struct {
	Name     string        `json:"name"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report summarizes a load run.
type Report struct {
	RunID    string        `json:"runId"`
	Preset   string        `json:"preset"`
	Results  []Result      `json:"results"`
	Duration time.Duration `json:"duration"`
}

// Failed returns the number of datasets that did not load.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Loader runs dataset loads.
type Loader struct {
	fetcher Fetcher
	tokens  TokenSource
	cache   Cache
	metrics *observability.Metrics
	config  Config

	sem   *semaphore.Weighted
	group singleflight.Group

	mu     sync.Mutex
	states map[string]*DatasetState
}

// New creates a Loader. metrics may be nil.
func New(fetcher Fetcher, tokens TokenSource, c Cache, metrics *observability.Metrics, config Config) *Loader {
	if len(config.Endpoints) == 0 {
		config.Endpoints = DefaultEndpoints
	}
	if config.MaxConcurrentLoads < 1 {
		config.MaxConcurrentLoads = 1
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	l := &Loader{
		fetcher: fetcher,
		tokens:  tokens,
		cache:   c,
		metrics: metrics,
		config:  config,
		sem:     semaphore.NewWeighted(config.MaxConcurrentLoads),
		states:  make(map[string]*DatasetState),
	}
	l.Reset()
	return l
}

// Metrics returns the fetch metrics.
func (l *Loader) Metrics() *observability.Metrics {
	return l.metrics
}

// Reset marks every dataset pending and uncached.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ep := range l.config.Endpoints {
		l.states[ep.Name] = &DatasetState{Name: ep.Name, DisplayName: ep.DisplayName, Status: StatusPending}
	}
}

// States returns a snapshot of every dataset state in table order.
func (l *Loader) States() []DatasetState {
	l.mu.Lock()
	defer l.mu.Unlock()

	states := make([]DatasetState, 0, len(l.config.Endpoints))
	for _, ep := range l.config.Endpoints {
		states = append(states, *l.states[ep.Name])
	}
	return states
}

func (l *Loader) update(name string, fn func(*DatasetState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.states[name])
}

// WarmStart marks every dataset found in the cache as loaded, stale entries
// included, so callers can show data before the network answers.
func (l *Loader) WarmStart(ctx context.Context) []DatasetState {
	for _, ep := range l.config.Endpoints {
		key, ok := cache.KeyFor(ep.Name)
		if !ok {
			continue
		}
		entry := l.cache.GetWithFallback(ctx, key)
		if entry == nil {
			continue
		}
		l.update(ep.Name, func(s *DatasetState) {
			s.Status = StatusSuccess
			s.LastUpdated = entry.WrittenAt
			s.IsCached = true
			s.IsFresh = !entry.IsFallback
		})
	}
	return l.States()
}

// LoadAll loads the datasets of preset. It returns an error only when ctx
// ends or when a dataset fails and ContinueOnError is off; per-dataset
// failures are in the report.
func (l *Loader) LoadAll(ctx context.Context, preset string) (*Report, error) {
	report := &Report{RunID: shortuuid.New(), Preset: preset}
	start := time.Now()
	logger := slog.With(slog.String("run_id", report.RunID), slog.String("preset", preset))
	logger.Info("load run started")

	order := Order(l.config.Endpoints, preset)
	results := make([]Result, len(order))
	var (
		wg     sync.WaitGroup
		failMu sync.Mutex
		failed error
	)

	runErr := func() error {
		for i, ep := range order {
			if i > 0 {
				if err := sleep(ctx, l.config.Delay); err != nil {
					return err
				}
			}
			if err := l.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			failMu.Lock()
			stop := failed != nil && !l.config.ContinueOnError
			failMu.Unlock()
			if stop {
				l.sem.Release(1)
				return failed
			}

			wg.Add(1)
			go func(i int, ep Endpoint) {
				defer wg.Done()
				defer l.sem.Release(1)

				began := time.Now()
				err := l.Load(ctx, ep.Name)
				results[i] = Result{Name: ep.Name, Err: err, Duration: time.Since(began)}
				if err != nil {
					results[i].Error = err.Error()
					failMu.Lock()
					if failed == nil {
						failed = err
					}
					failMu.Unlock()
				}
			}(i, ep)
		}
		return nil
	}()
	wg.Wait()

	for _, res := range results {
		if res.Name != "" {
			report.Results = append(report.Results, res)
		}
	}
	report.Duration = time.Since(start)
	logger.Info("load run finished",
		slog.Int("datasets", len(report.Results)),
		slog.Int("failed", report.Failed()),
		slog.Int64(observability.LogFieldDuration, report.Duration.Milliseconds()))

	if ctx.Err() != nil {
		return report, apperrors.FromContext(ctx.Err())
	}
	if runErr != nil {
		return report, runErr
	}
	if failed != nil && !l.config.ContinueOnError {
		return report, failed
	}
	return report, nil
}

// Load fetches one dataset and writes it to the cache. Concurrent calls for
// the same dataset share one fetch.
func (l *Loader) Load(ctx context.Context, name string) error {
	ep, ok := find(l.config.Endpoints, name)
	if !ok {
		return apperrors.InvalidArgument("unknown dataset " + name)
	}
	_, err, _ := l.group.Do(name, func() (any, error) {
		return nil, l.load(ctx, ep)
	})
	return err
}

func (l *Loader) load(ctx context.Context, ep Endpoint) error {
	if _, ok := cache.KeyFor(ep.Name); !ok {
		return apperrors.InvalidArgument("dataset " + ep.Name + " has no cache key")
	}
	token, err := l.tokens.Token()
	if err != nil {
		l.fail(ep.Name, err, 0)
		return err
	}

	l.update(ep.Name, func(s *DatasetState) {
		s.Status = StatusLoading
		s.Error = ""
	})

	start := time.Now()
	data, attempts, err := l.fetchWithRetry(ctx, ep, token)
	l.metrics.RecordFetch(ep.Name, time.Since(start), err)
	if err != nil {
		l.fail(ep.Name, err, attempts)
		return err
	}

	// A canceled run must not overwrite what is cached.
	if err := ctx.Err(); err != nil {
		err = apperrors.FromContext(err)
		l.fail(ep.Name, err, attempts)
		return err
	}
	if !l.cache.SaveDataset(ctx, ep.Name, data) {
		err := apperrors.StorageFailure("failed to cache "+ep.Name, nil)
		l.fail(ep.Name, err, attempts)
		return err
	}

	l.update(ep.Name, func(s *DatasetState) {
		s.Status = StatusSuccess
		s.LastUpdated = time.Now()
		s.IsCached = true
		s.IsFresh = true
		s.Attempts = attempts
	})
	slog.Debug("dataset loaded",
		slog.String(observability.LogFieldDataset, ep.Name),
		slog.Int("attempts", attempts),
		slog.Int("bytes", len(data)))
	return nil
}

func (l *Loader) fetchWithRetry(ctx context.Context, ep Endpoint, token string) (json.RawMessage, int, error) {
	var lastErr error
	for attempt := 1; attempt <= ep.RetryCount+1; attempt++ {
		if attempt > 1 {
			l.metrics.RecordRetry(ep.Name)
			if err := sleep(ctx, l.config.Delay*time.Duration(attempt-1)); err != nil {
				return nil, attempt - 1, apperrors.FromContext(err)
			}
		}

		data, err := l.fetchOnce(ctx, ep, token)
		if err == nil {
			return data, attempt, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, attempt, apperrors.FromContext(ctx.Err())
		}
		if portal.IsUnauthorized(err) {
			return nil, attempt, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, ep.DisplayName+" rejected the session")
		}
		slog.Warn("dataset fetch failed",
			slog.String(observability.LogFieldDataset, ep.Name),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}
	return nil, ep.RetryCount + 1, classify(ep, lastErr)
}

func (l *Loader) fetchOnce(ctx context.Context, ep Endpoint, token string) (json.RawMessage, error) {
	if ep.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ep.Timeout)
		defer cancel()
	}
	return l.fetcher.Fetch(ctx, token, ep.Path)
}

func (l *Loader) fail(name string, err error, attempts int) {
	l.update(name, func(s *DatasetState) {
		s.Status = StatusError
		s.Error = err.Error()
		s.Attempts = attempts
	})
}

func classify(ep Endpoint, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout(ep.DisplayName+" timed out", err).WithContext("timeout", ep.Timeout.String())
	}
	return apperrors.ServiceUnavailable(ep.DisplayName+" could not be loaded", err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
