package datastore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"filehub/internal/storage"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	dssync "github.com/ipfs/go-datastore/sync"
	badger "github.com/ipfs/go-ds-badger"
)

// Store 基于 go-datastore 实现 storage.Store。
// key 形如 /<scope>/<escaped key>，shared 与 private 互不可见。
type Store struct {
	dstore ds.Datastore
}

// New 包装任意 go-datastore 实现。
func New(dstore ds.Datastore) *Store {
	return &Store{dstore: dstore}
}

// NewMemory 返回进程内的线程安全存储，适合单实例部署与测试。
func NewMemory() *Store {
	return New(dssync.MutexWrap(ds.NewMapDatastore()))
}

// OpenBadger 打开（或创建）位于 path 的 badger 数据库。
func OpenBadger(path string) (*Store, error) {
	opts := badger.DefaultOptions
	dstore, err := badger.NewDatastore(path, &opts)
	if err != nil {
		return nil, fmt.Errorf("open badger datastore: %w", err)
	}
	return New(dstore), nil
}

func (s *Store) List(ctx context.Context, prefix string, shared bool) ([]string, error) {
	if s == nil || s.dstore == nil {
		return nil, fmt.Errorf("datastore uninitialized")
	}

	scope := "/" + storage.ScopeFor(shared)
	results, err := s.dstore.Query(ctx, query.Query{
		Prefix:   scope,
		KeysOnly: true,
		Filters: []query.Filter{
			query.FilterKeyPrefix{Prefix: scope + "/" + url.PathEscape(prefix)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query datastore: %w", err)
	}
	defer results.Close()

	entries, err := results.Rest()
	if err != nil {
		return nil, fmt.Errorf("read query results: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name, err := url.PathUnescape(strings.TrimPrefix(entry.Key, scope+"/"))
		if err != nil {
			return nil, fmt.Errorf("decode key %q: %w", entry.Key, err)
		}
		keys = append(keys, name)
	}
	return keys, nil
}

func (s *Store) Get(ctx context.Context, key string, shared bool) (string, error) {
	dkey, err := datastoreKey(key, shared)
	if err != nil {
		return "", err
	}

	value, err := s.dstore.Get(ctx, dkey)
	if err != nil {
		if errors.Is(err, ds.ErrNotFound) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return string(value), nil
}

func (s *Store) Set(ctx context.Context, key, value string, shared bool) error {
	dkey, err := datastoreKey(key, shared)
	if err != nil {
		return err
	}
	if err := s.dstore.Put(ctx, dkey, []byte(value)); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string, shared bool) error {
	dkey, err := datastoreKey(key, shared)
	if err != nil {
		return err
	}
	if err := s.dstore.Delete(ctx, dkey); err != nil && !errors.Is(err, ds.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close 释放底层数据库。
func (s *Store) Close() error {
	if s == nil || s.dstore == nil {
		return nil
	}
	return s.dstore.Close()
}

func datastoreKey(key string, shared bool) (ds.Key, error) {
	if key == "" || key == "." || key == ".." {
		return ds.Key{}, fmt.Errorf("invalid key %q", key)
	}
	return ds.NewKey("/" + storage.ScopeFor(shared) + "/" + url.PathEscape(key)), nil
}
