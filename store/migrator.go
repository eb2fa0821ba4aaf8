package store

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
)

// Migrate prepares the schema on first use.
//
// The item table holds JSON envelopes that carry their own version tag, so
// schema changes to cached payloads never need a table migration. Only the
// table layout itself is versioned here, through the driver's Migrate.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		return nil
	}

	slog.Info("initializing storage schema", slog.String("driver", s.profile.Driver))
	if err := s.driver.Migrate(ctx); err != nil {
		return errors.Wrap(err, "failed to migrate")
	}
	return nil
}
