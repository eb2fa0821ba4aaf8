package loader

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hrygo/etlabplus/internal/errors"
	"github.com/hrygo/etlabplus/internal/profile"
	"github.com/hrygo/etlabplus/plugin/portal"
	"github.com/hrygo/etlabplus/store"
	"github.com/hrygo/etlabplus/store/cache"
	"github.com/hrygo/etlabplus/store/db/memory"
)

type fetchFunc func(ctx context.Context, attempt int) (json.RawMessage, error)

type fakeFetcher struct {
	mu       sync.Mutex
	handlers map[string]fetchFunc
	calls    []string
	attempts map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{handlers: make(map[string]fetchFunc), attempts: make(map[string]int)}
}

func (f *fakeFetcher) on(path string, fn fetchFunc) *fakeFetcher {
	f.handlers[path] = fn
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ string, endpoint string) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, endpoint)
	f.attempts[endpoint]++
	attempt := f.attempts[endpoint]
	fn := f.handlers[endpoint]
	f.mu.Unlock()

	if fn == nil {
		return json.RawMessage(`{"endpoint": "` + endpoint + `"}`), nil
	}
	return fn(ctx, attempt)
}

func (f *fakeFetcher) callCount(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[endpoint]
}

type staticToken struct{ err error }

func (s staticToken) Token() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "tok", nil
}

func testConfig() Config {
	endpoints := make([]Endpoint, len(DefaultEndpoints))
	copy(endpoints, DefaultEndpoints)
	for i := range endpoints {
		endpoints[i].Timeout = time.Second
	}
	return Config{Endpoints: endpoints, ContinueOnError: true, MaxConcurrentLoads: 1}
}

func newTestLoader(t *testing.T, fetcher Fetcher, config Config) (*Loader, *cache.Manager) {
	t.Helper()
	s := store.New(memory.NewDB(), &profile.Profile{Driver: "memory"})
	manager := cache.NewManager(s)
	return New(fetcher, staticToken{}, manager, nil, config), manager
}

func TestOrder(t *testing.T) {
	names := func(eps []Endpoint) []string {
		var out []string
		for _, ep := range eps {
			out = append(out, ep.Name)
		}
		return out
	}

	assert.Equal(t, []string{DatasetAttendance, DatasetTimetable, DatasetEndSemResults, DatasetResults}, names(Order(DefaultEndpoints, PresetDefault)))
	assert.Equal(t, []string{DatasetResults, DatasetEndSemResults, DatasetAttendance, DatasetTimetable}, names(Order(DefaultEndpoints, PresetAcademic)))
	assert.Equal(t, []string{DatasetTimetable, DatasetAttendance, DatasetResults, DatasetEndSemResults}, names(Order(DefaultEndpoints, PresetDaily)))
	assert.Equal(t, []string{DatasetAttendance, DatasetTimetable}, names(Order(DefaultEndpoints, PresetFast)))
	assert.Equal(t, names(Order(DefaultEndpoints, PresetDefault)), names(Order(DefaultEndpoints, "bogus")))

	// The table itself is left in place.
	assert.Equal(t, DatasetAttendance, DefaultEndpoints[0].Name)
	assert.Equal(t, DatasetResults, DefaultEndpoints[2].Name)
}

func TestLoadAll(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	l, manager := newTestLoader(t, fetcher, testConfig())

	report, err := l.LoadAll(ctx, PresetDefault)
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Len(t, report.Results, 4)
	assert.Equal(t, 0, report.Failed())
	assert.Equal(t, []string{portal.EndpointAttendance, portal.EndpointTimetable, portal.EndpointEndSemResults, portal.EndpointResults}, fetcher.calls)

	entry := manager.GetAttendance(ctx)
	require.NotNil(t, entry)
	assert.JSONEq(t, `{"endpoint": "/app/attendance"}`, string(entry.Data))
	require.NotNil(t, entry.MaxAge)
	assert.Equal(t, cache.TTLAttendance, *entry.MaxAge)

	for _, s := range l.States() {
		assert.Equal(t, StatusSuccess, s.Status, s.Name)
		assert.True(t, s.IsCached)
		assert.True(t, s.IsFresh)
		assert.Equal(t, 1, s.Attempts)
	}
	assert.Equal(t, int64(4), l.Metrics().Snapshot().FetchTotal)
}

func TestLoad_RetriesThenSucceeds(t *testing.T) {
	fetcher := newFakeFetcher().on(portal.EndpointAttendance, func(_ context.Context, attempt int) (json.RawMessage, error) {
		if attempt < 3 {
			return nil, &portal.StatusError{Endpoint: portal.EndpointAttendance, Code: http.StatusBadGateway}
		}
		return json.RawMessage(`{}`), nil
	})
	l, _ := newTestLoader(t, fetcher, testConfig())

	require.NoError(t, l.Load(context.Background(), DatasetAttendance))
	assert.Equal(t, 3, fetcher.callCount(portal.EndpointAttendance))
	assert.Equal(t, 3, l.States()[0].Attempts)

	snap := l.Metrics().Snapshot()
	require.Len(t, snap.Datasets, 1)
	assert.Equal(t, int64(2), snap.Datasets[0].RetryCount)
	assert.Equal(t, int64(1), snap.Datasets[0].FetchCount)
}

func TestLoadAll_ContinueOnError(t *testing.T) {
	fail := func(context.Context, int) (json.RawMessage, error) {
		return nil, errors.New("connection reset")
	}
	fetcher := newFakeFetcher().on(portal.EndpointAttendance, fail)
	l, manager := newTestLoader(t, fetcher, testConfig())

	report, err := l.LoadAll(context.Background(), PresetFast)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())
	assert.True(t, apperrors.IsCode(report.Results[0].Err, apperrors.ErrCodeServiceUnavailable))
	assert.Equal(t, 3, fetcher.callCount(portal.EndpointAttendance))
	assert.Equal(t, 1, fetcher.callCount(portal.EndpointTimetable))

	states := l.States()
	assert.Equal(t, StatusError, states[0].Status)
	assert.NotEmpty(t, states[0].Error)
	assert.Equal(t, StatusSuccess, states[1].Status)
	assert.Nil(t, manager.GetAttendance(context.Background()))
}

func TestLoadAll_StopOnError(t *testing.T) {
	fetcher := newFakeFetcher().on(portal.EndpointAttendance, func(context.Context, int) (json.RawMessage, error) {
		return nil, errors.New("connection reset")
	})
	config := testConfig()
	config.ContinueOnError = false
	l, _ := newTestLoader(t, fetcher, config)

	report, err := l.LoadAll(context.Background(), PresetDefault)
	require.Error(t, err)
	assert.Len(t, report.Results, 1)
	assert.Equal(t, 0, fetcher.callCount(portal.EndpointTimetable))
	assert.Equal(t, StatusPending, l.States()[1].Status)
}

func TestLoad_Timeout(t *testing.T) {
	fetcher := newFakeFetcher().on(portal.EndpointResults, func(ctx context.Context, _ int) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, errors.Wrap(ctx.Err(), "request to /app/results failed")
	})
	config := testConfig()
	for i := range config.Endpoints {
		config.Endpoints[i].Timeout = 20 * time.Millisecond
	}
	l, _ := newTestLoader(t, fetcher, config)

	err := l.Load(context.Background(), DatasetResults)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTimeout))
	assert.Equal(t, 2, fetcher.callCount(portal.EndpointResults))
}

func TestLoad_UnauthorizedIsNotRetried(t *testing.T) {
	fetcher := newFakeFetcher().on(portal.EndpointTimetable, func(context.Context, int) (json.RawMessage, error) {
		return nil, &portal.StatusError{Endpoint: portal.EndpointTimetable, Code: http.StatusUnauthorized}
	})
	l, _ := newTestLoader(t, fetcher, testConfig())

	err := l.Load(context.Background(), DatasetTimetable)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))
	assert.Equal(t, 1, fetcher.callCount(portal.EndpointTimetable))
}

func TestLoad_NoSession(t *testing.T) {
	fetcher := newFakeFetcher()
	s := store.New(memory.NewDB(), &profile.Profile{Driver: "memory"})
	l := New(fetcher, staticToken{err: apperrors.Unauthorized("not signed in")}, cache.NewManager(s), nil, testConfig())

	err := l.Load(context.Background(), DatasetAttendance)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))
	assert.Equal(t, 0, fetcher.callCount(portal.EndpointAttendance))
	assert.Equal(t, StatusError, l.States()[0].Status)
}

func TestLoad_UnknownDataset(t *testing.T) {
	l, _ := newTestLoader(t, newFakeFetcher(), testConfig())
	err := l.Load(context.Background(), "grades")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
}

func TestLoad_CanceledKeepsCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := newFakeFetcher().on(portal.EndpointAttendance, func(context.Context, int) (json.RawMessage, error) {
		cancel()
		return json.RawMessage(`{"new": true}`), nil
	})
	l, manager := newTestLoader(t, fetcher, testConfig())
	require.True(t, manager.SaveAttendance(context.Background(), map[string]bool{"old": true}))

	err := l.Load(ctx, DatasetAttendance)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeContextCanceled))

	entry := manager.GetAttendance(context.Background())
	require.NotNil(t, entry)
	assert.JSONEq(t, `{"old": true}`, string(entry.Data))
}

func TestLoadAll_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := newFakeFetcher()
	l, _ := newTestLoader(t, fetcher, testConfig())

	_, err := l.LoadAll(ctx, PresetDefault)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeContextCanceled))
	assert.Empty(t, fetcher.calls)
}

func TestLoad_CoalescesConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	fetcher := newFakeFetcher().on(portal.EndpointAttendance, func(context.Context, int) (json.RawMessage, error) {
		started <- struct{}{}
		<-release
		return json.RawMessage(`{}`), nil
	})
	l, _ := newTestLoader(t, fetcher, testConfig())

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- l.Load(context.Background(), DatasetAttendance)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- l.Load(context.Background(), DatasetAttendance)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, fetcher.callCount(portal.EndpointAttendance))
}

func TestWarmStart(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.NewDB(), &profile.Profile{Driver: "memory"})
	now := time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)

	past := cache.NewManager(s, cache.WithClock(func() time.Time { return now.Add(-2 * time.Hour) }))
	require.True(t, past.SaveAttendance(ctx, map[string]any{}))
	require.True(t, past.SaveTimetable(ctx, map[string]any{}))

	current := cache.NewManager(s, cache.WithClock(func() time.Time { return now }))
	l := New(newFakeFetcher(), staticToken{}, current, nil, testConfig())

	states := l.WarmStart(ctx)
	require.Len(t, states, 4)

	attendance, timetable, results := states[0], states[1], states[2]
	assert.Equal(t, StatusSuccess, attendance.Status)
	assert.True(t, attendance.IsCached)
	assert.False(t, attendance.IsFresh)
	assert.Equal(t, now.Add(-2*time.Hour).UnixMilli(), attendance.LastUpdated.UnixMilli())

	assert.True(t, timetable.IsCached)
	assert.True(t, timetable.IsFresh)

	assert.Equal(t, StatusPending, results.Status)
	assert.False(t, results.IsCached)

	// The stale entry is still there after the warm start.
	assert.NotNil(t, current.Get(ctx, cache.KeyAttendance, true))
}
