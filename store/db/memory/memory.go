// Package memory provides a process-local store driver. Nothing survives a
// restart; it backs tests and the --driver=memory mode of the CLI.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/hrygo/etlabplus/store"
)

// DB is an in-memory store.Driver guarded by a RWMutex.
type DB struct {
	mu      sync.RWMutex
	items   map[string]store.Item
	secrets map[string]store.Secret
}

var _ store.Driver = (*DB)(nil)

// NewDB creates an empty in-memory driver.
func NewDB() *DB {
	return &DB{
		items:   make(map[string]store.Item),
		secrets: make(map[string]store.Secret),
	}
}

func (*DB) GetDB() *sql.DB {
	return nil
}

func (*DB) Close() error {
	return nil
}

func (*DB) IsInitialized(context.Context) (bool, error) {
	return true, nil
}

func (*DB) Migrate(context.Context) error {
	return nil
}

func (d *DB) UpsertItem(_ context.Context, upsert *store.Item) (*store.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	item := store.Item{Key: upsert.Key, Value: upsert.Value, UpdatedTs: time.Now().Unix()}
	d.items[upsert.Key] = item
	return &item, nil
}

func (d *DB) GetItem(_ context.Context, find *store.FindItem) (*store.Item, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	item, ok := d.items[find.Key]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (d *DB) ListItemKeys(context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]string, 0, len(d.items))
	for key := range d.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (d *DB) DeleteItems(_ context.Context, del *store.DeleteItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, key := range del.Keys {
		delete(d.items, key)
	}
	return nil
}

func (d *DB) UpsertSecret(_ context.Context, upsert *store.Secret) (*store.Secret, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	secret := store.Secret{
		Key:        upsert.Key,
		Ciphertext: append([]byte(nil), upsert.Ciphertext...),
		UpdatedTs:  time.Now().Unix(),
	}
	d.secrets[upsert.Key] = secret
	return &secret, nil
}

func (d *DB) GetSecret(_ context.Context, find *store.FindSecret) (*store.Secret, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	secret, ok := d.secrets[find.Key]
	if !ok {
		return nil, nil
	}
	secret.Ciphertext = append([]byte(nil), secret.Ciphertext...)
	return &secret, nil
}

func (d *DB) DeleteSecret(_ context.Context, del *store.DeleteSecret) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.secrets, del.Key)
	return nil
}
