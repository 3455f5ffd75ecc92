package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"filehub/internal/storage"
)

// NewStore 返回基于 *sql.DB 的 Postgres 实现。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Store 实现 storage.Store，数据位于 kv_entries 表。
type Store struct {
	db *sql.DB
}

// List 按前缀检索 key。
func (s *Store) List(ctx context.Context, prefix string, shared bool) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("postgres store uninitialized")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv_entries WHERE scope = $1 AND starts_with(key, $2)`,
		storage.ScopeFor(shared), prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Get 通过主键查询值。
func (s *Store) Get(ctx context.Context, key string, shared bool) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("postgres store uninitialized")
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE scope = $1 AND key = $2`,
		storage.ScopeFor(shared), key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set 以单行 upsert 写入。
func (s *Store) Set(ctx context.Context, key, value string, shared bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store uninitialized")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (scope, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (scope, key) DO UPDATE SET value = EXCLUDED.value`,
		storage.ScopeFor(shared), key, value,
	)
	return err
}

// Delete 删除一行；不存在时不报错。
func (s *Store) Delete(ctx context.Context, key string, shared bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store uninitialized")
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE scope = $1 AND key = $2`,
		storage.ScopeFor(shared), key,
	)
	return err
}
