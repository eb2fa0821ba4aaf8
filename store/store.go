package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/etlabplus/internal/profile"
)

// Store provides durable access to cached datasets and encrypted secrets.
//
// Besides the model methods it exposes a string key-value surface
// (GetItemValue, SetItemValue, RemoveItemValue, MultiRemove) that the TTL
// cache consumes as its storage backend.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) UpsertItem(ctx context.Context, upsert *Item) (*Item, error) {
	return s.driver.UpsertItem(ctx, upsert)
}

func (s *Store) GetItem(ctx context.Context, find *FindItem) (*Item, error) {
	return s.driver.GetItem(ctx, find)
}

func (s *Store) ListItemKeys(ctx context.Context) ([]string, error) {
	return s.driver.ListItemKeys(ctx)
}

func (s *Store) DeleteItems(ctx context.Context, delete *DeleteItem) error {
	return s.driver.DeleteItems(ctx, delete)
}

func (s *Store) UpsertSecret(ctx context.Context, upsert *Secret) (*Secret, error) {
	return s.driver.UpsertSecret(ctx, upsert)
}

func (s *Store) GetSecret(ctx context.Context, find *FindSecret) (*Secret, error) {
	return s.driver.GetSecret(ctx, find)
}

func (s *Store) DeleteSecret(ctx context.Context, delete *DeleteSecret) error {
	return s.driver.DeleteSecret(ctx, delete)
}

// GetItemValue returns the stored string and whether the key exists.
func (s *Store) GetItemValue(ctx context.Context, key string) (string, bool, error) {
	item, err := s.driver.GetItem(ctx, &FindItem{Key: key})
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to get item %s", key)
	}
	if item == nil {
		return "", false, nil
	}
	return item.Value, true, nil
}

// SetItemValue stores value under key, replacing any previous value.
func (s *Store) SetItemValue(ctx context.Context, key, value string) error {
	if _, err := s.driver.UpsertItem(ctx, &Item{Key: key, Value: value}); err != nil {
		return errors.Wrapf(err, "failed to set item %s", key)
	}
	return nil
}

// RemoveItemValue deletes key. Removing a missing key is not an error.
func (s *Store) RemoveItemValue(ctx context.Context, key string) error {
	return s.MultiRemove(ctx, []string{key})
}

// MultiRemove deletes every key in keys.
func (s *Store) MultiRemove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.driver.DeleteItems(ctx, &DeleteItem{Keys: keys}); err != nil {
		return errors.Wrapf(err, "failed to remove %d items", len(keys))
	}
	return nil
}
