package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/etlabplus/internal/observability"
	"github.com/hrygo/etlabplus/internal/profile"
	apiv1 "github.com/hrygo/etlabplus/server/router/api/v1"
	"github.com/hrygo/etlabplus/server/service/academic"
	"github.com/hrygo/etlabplus/server/service/loader"
	"github.com/hrygo/etlabplus/store"
	"github.com/hrygo/etlabplus/store/cache"
	"github.com/hrygo/etlabplus/store/db/memory"
)

type idleSyncer struct{}

func (idleSyncer) LoadAll(context.Context, string) (*loader.Report, error) {
	return &loader.Report{}, nil
}

func (idleSyncer) States() []loader.DatasetState { return nil }

func (idleSyncer) Metrics() *observability.Metrics { return observability.NewMetrics() }

func TestServer_StartAndShutdown(t *testing.T) {
	p := &profile.Profile{Mode: "dev", Addr: "127.0.0.1", Port: 0, Driver: "memory", Version: "test"}
	manager := cache.NewManager(store.New(memory.NewDB(), p))
	api := apiv1.NewAPIV1Service(p, academic.NewService(manager, nil), manager, idleSyncer{}, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := NewServer(p, api, nil, logger)
	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown(context.Background())

	url := fmt.Sprintf("http://%s/healthz", s.Addr())
	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get(url)
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 10*time.Millisecond)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestServer_StartFailsOnBusyPort(t *testing.T) {
	p := &profile.Profile{Mode: "dev", Addr: "127.0.0.1", Port: 0, Driver: "memory"}
	manager := cache.NewManager(store.New(memory.NewDB(), p))
	api := apiv1.NewAPIV1Service(p, academic.NewService(manager, nil), manager, idleSyncer{}, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first := NewServer(p, api, nil, logger)
	require.NoError(t, first.Start(context.Background()))
	defer first.Shutdown(context.Background())

	busy := *p
	busy.Port = first.Addr().(*net.TCPAddr).Port
	second := NewServer(&busy, api, nil, logger)
	assert.Error(t, second.Start(context.Background()))
}
