package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hrygo/etlabplus/internal/observability"
	"github.com/hrygo/etlabplus/internal/profile"
	"github.com/hrygo/etlabplus/plugin/portal"
	"github.com/hrygo/etlabplus/plugin/secret"
	"github.com/hrygo/etlabplus/server/service/academic"
	"github.com/hrygo/etlabplus/server/service/loader"
	"github.com/hrygo/etlabplus/server/service/session"
	"github.com/hrygo/etlabplus/server/timezone"
	"github.com/hrygo/etlabplus/store"
	"github.com/hrygo/etlabplus/store/cache"
	"github.com/hrygo/etlabplus/store/db"
)

// app holds the services one command invocation needs.
type app struct {
	profile  *profile.Profile
	logger   *slog.Logger
	location *time.Location

	store    *store.Store
	cache    *cache.Manager
	portal   *portal.Client
	session  *session.Service
	loader   *loader.Loader
	academic *academic.Service
}

func newApp(ctx context.Context) (*app, error) {
	p, err := loadProfile()
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(p, os.Stderr)
	slog.SetDefault(logger)

	loc, err := timezone.ParseTimezone(p.Timezone)
	if err != nil {
		slog.Warn("falling back to UTC", slog.String("timezone", p.Timezone), slog.String("error", err.Error()))
	}

	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	s := store.New(driver, p)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	manager := cache.NewManager(s, cache.WithLocation(loc))
	client := portal.NewClient(&portal.Config{
		BaseURL:           p.PortalBaseURL,
		AIBaseURL:         p.AIBaseURL,
		Timeout:           portal.DefaultConfig().Timeout,
		RequestsPerSecond: p.RequestsPerSecond,
	})
	vault := secret.NewVault(s, p.SecretPassphrase)
	sessions := session.NewService(client, vault, manager)

	return &app{
		profile:  p,
		logger:   logger,
		location: loc,
		store:    s,
		cache:    manager,
		portal:   client,
		session:  sessions,
		loader:   loader.New(client, sessions, manager, nil, loader.DefaultConfig()),
		academic: academic.NewService(manager, client, academic.WithLocation(loc)),
	}, nil
}

// restore loads the stored session. Commands that only read the cache do
// not need it.
func (a *app) restore(ctx context.Context) (*session.State, error) {
	return a.session.Restore(ctx)
}

func (a *app) Close() {
	a.session.CancelAll()
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close store", slog.String("error", err.Error()))
	}
}
