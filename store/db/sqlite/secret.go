package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/etlabplus/store"
)

func (d *DB) UpsertSecret(ctx context.Context, upsert *store.Secret) (*store.Secret, error) {
	stmt := `
		INSERT INTO secret (key, ciphertext, updated_ts)
		VALUES (` + placeholders(3) + `)
		ON CONFLICT(key) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			updated_ts = excluded.updated_ts
		RETURNING key, ciphertext, updated_ts
	`

	secret := &store.Secret{}
	if err := d.db.QueryRowContext(ctx, stmt, upsert.Key, upsert.Ciphertext, time.Now().Unix()).Scan(
		&secret.Key,
		&secret.Ciphertext,
		&secret.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert secret")
	}
	return secret, nil
}

func (d *DB) GetSecret(ctx context.Context, find *store.FindSecret) (*store.Secret, error) {
	query := `SELECT key, ciphertext, updated_ts FROM secret WHERE key = ` + placeholder(1)

	secret := &store.Secret{}
	if err := d.db.QueryRowContext(ctx, query, find.Key).Scan(
		&secret.Key,
		&secret.Ciphertext,
		&secret.UpdatedTs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get secret")
	}
	return secret, nil
}

func (d *DB) DeleteSecret(ctx context.Context, delete *store.DeleteSecret) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM secret WHERE key = `+placeholder(1), delete.Key); err != nil {
		return errors.Wrap(err, "failed to delete secret")
	}
	return nil
}
