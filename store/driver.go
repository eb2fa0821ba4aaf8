package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	// GetDB returns the underlying database handle, nil for in-memory drivers.
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)
	// Migrate creates the schema. It must be idempotent.
	Migrate(ctx context.Context) error

	// Item model related methods.
	UpsertItem(ctx context.Context, upsert *Item) (*Item, error)
	// GetItem returns nil without error when the key is absent.
	GetItem(ctx context.Context, find *FindItem) (*Item, error)
	ListItemKeys(ctx context.Context) ([]string, error)
	DeleteItems(ctx context.Context, delete *DeleteItem) error

	// Secret model related methods.
	UpsertSecret(ctx context.Context, upsert *Secret) (*Secret, error)
	// GetSecret returns nil without error when the key is absent.
	GetSecret(ctx context.Context, find *FindSecret) (*Secret, error)
	DeleteSecret(ctx context.Context, delete *DeleteSecret) error
}
