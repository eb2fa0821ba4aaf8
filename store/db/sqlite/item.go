package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/etlabplus/store"
)

func (d *DB) UpsertItem(ctx context.Context, upsert *store.Item) (*store.Item, error) {
	stmt := `
		INSERT INTO kv_item (key, value, updated_ts)
		VALUES (` + placeholders(3) + `)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_ts = excluded.updated_ts
		RETURNING key, value, updated_ts
	`

	item := &store.Item{}
	if err := d.db.QueryRowContext(ctx, stmt, upsert.Key, upsert.Value, time.Now().Unix()).Scan(
		&item.Key,
		&item.Value,
		&item.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert item")
	}
	return item, nil
}

func (d *DB) GetItem(ctx context.Context, find *store.FindItem) (*store.Item, error) {
	query := `SELECT key, value, updated_ts FROM kv_item WHERE key = ` + placeholder(1)

	item := &store.Item{}
	if err := d.db.QueryRowContext(ctx, query, find.Key).Scan(
		&item.Key,
		&item.Value,
		&item.UpdatedTs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get item")
	}
	return item, nil
}

func (d *DB) ListItemKeys(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT key FROM kv_item ORDER BY key`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list item keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, "failed to scan item key")
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (d *DB) DeleteItems(ctx context.Context, delete *store.DeleteItem) error {
	if len(delete.Keys) == 0 {
		return nil
	}

	marks := make([]string, 0, len(delete.Keys))
	args := make([]any, 0, len(delete.Keys))
	for i, key := range delete.Keys {
		marks = append(marks, placeholder(i+1))
		args = append(args, key)
	}
	stmt := `DELETE FROM kv_item WHERE key IN (` + strings.Join(marks, ", ") + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to delete items")
	}
	return nil
}
