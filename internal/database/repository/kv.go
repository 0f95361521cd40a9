package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jask/offlinesync/internal/database"
)

// Entry is one kv_store row.
type Entry struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// KVRepo handles kv_store, the durable backing for every namespace of the layer.
// Each write replaces a whole value; there are no partial updates at this level.
type KVRepo struct {
	db *sql.DB
}

func NewKVRepo(db *sql.DB) *KVRepo { return &KVRepo{db: db} }

// Get returns the value stored under key. ok is false when the key is absent.
func (r *KVRepo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (r *KVRepo) Set(ctx context.Context, key string, value []byte) error {
	return setValue(ctx, r.db, key, value)
}

func (r *KVRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key)
	return err
}

// DeletePrefix removes every key starting with prefix and reports how many were removed.
func (r *KVRepo) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM kv_store WHERE substr(key, 1, length(?)) = ?`, prefix, prefix)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// List returns every entry whose key starts with prefix, ordered by key.
func (r *KVRepo) List(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT key, value, updated_at FROM kv_store
	WHERE substr(key, 1, length(?)) = ?
	ORDER BY key`, prefix, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Update reads key and writes back whatever fn returns, inside one transaction.
// fn receives ok=false when the key is absent. Returning a nil value deletes the key.
// If fn fails nothing is written.
func (r *KVRepo) Update(ctx context.Context, key string, fn func(old []byte, ok bool) ([]byte, error)) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var old []byte
		ok := true
		err := tx.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&old)
		if errors.Is(err, sql.ErrNoRows) {
			ok = false
		} else if err != nil {
			return err
		}

		next, err := fn(old, ok)
		if err != nil {
			return err
		}
		if next == nil {
			_, err = tx.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key)
			return err
		}
		return setValue(ctx, tx, key, next)
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setValue(ctx context.Context, db execer, key string, value []byte) error {
	_, err := db.ExecContext(ctx, `
	INSERT INTO kv_store(key, value, updated_at) VALUES(?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, database.Now())
	return err
}
