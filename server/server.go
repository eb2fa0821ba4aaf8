// Package server runs the local JSON API over the cached portal datasets.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/etlabplus/internal/observability"
	"github.com/hrygo/etlabplus/internal/profile"
	apiv1 "github.com/hrygo/etlabplus/server/router/api/v1"
	"github.com/hrygo/etlabplus/server/runner/refresh"
)

// Server is the local API server and its background refresh.
type Server struct {
	Profile *profile.Profile

	echoServer *echo.Echo
	refresher  *refresh.Runner

	runnerCancelFuncs []context.CancelFunc
}

// NewServer wires the API routes. A nil refresher disables background
// refreshes.
func NewServer(profile *profile.Profile, api *apiv1.APIV1Service, refresher *refresh.Runner, logger *slog.Logger) *Server {
	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	echoServer.Use(observability.RequestLogger(logger))
	api.RegisterRoutes(echoServer)

	return &Server{
		Profile:    profile,
		echoServer: echoServer,
		refresher:  refresher,
	}
}

// Start listens on the profile address and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", address)
	}
	s.echoServer.Listener = listener

	if s.refresher != nil {
		runnerCtx, cancel := context.WithCancel(ctx)
		s.runnerCancelFuncs = append(s.runnerCancelFuncs, cancel)
		go s.refresher.Run(runnerCtx)
	}

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", slog.String("error", err.Error()))
		}
	}()
	slog.Info("local API started", slog.String("address", listener.Addr().String()))
	return nil
}

// Shutdown stops background work and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")
	for _, cancelFunc := range s.runnerCancelFuncs {
		if cancelFunc != nil {
			cancelFunc()
		}
	}
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
	slog.Info("server stopped properly")
}

// Addr returns the bound listener address, useful with port 0.
func (s *Server) Addr() net.Addr {
	if s.echoServer.Listener == nil {
		return nil
	}
	return s.echoServer.Listener.Addr()
}
