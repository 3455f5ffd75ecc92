package storage

import (
	"context"
	"errors"
)

// ErrNotFound 表示 key 在存储中不存在。
var ErrNotFound = errors.New("storage: key not found")

// 后端用于区分共享与私有 key 的命名空间。
const (
	ScopeShared  = "shared"
	ScopePrivate = "private"
)

// Lister 按前缀枚举 key，不保证顺序。
type Lister interface {
	List(ctx context.Context, prefix string, shared bool) ([]string, error)
}

// Reader 读取单个 key，不存在时返回 ErrNotFound。
type Reader interface {
	Get(ctx context.Context, key string, shared bool) (string, error)
}

// Writer 定义单 key 的原子写入与删除。
type Writer interface {
	Set(ctx context.Context, key, value string, shared bool) error
	Delete(ctx context.Context, key string, shared bool) error
}

// Store 是共享键值存储的完整契约。
type Store interface {
	Lister
	Reader
	Writer
}

// ScopeFor 将 shared 标志映射为后端命名空间。
func ScopeFor(shared bool) string {
	if shared {
		return ScopeShared
	}
	return ScopePrivate
}
