package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound 表示目标记录不存在。
	ErrRecordNotFound = errors.New("registry: record not found")
	// ErrInvalidRecord 表示创建参数不合法。
	ErrInvalidRecord = errors.New("registry: invalid record")
	// ErrIDCollision 表示多次生成的 ID 均已被占用。
	ErrIDCollision = errors.New("registry: could not allocate an unused id")
)

// StoreReadError 表示 list 或单条 get 失败。
type StoreReadError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("registry: store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreReadError) Unwrap() error { return e.Err }

// StoreWriteError 表示 set 或 delete 失败。
type StoreWriteError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("registry: store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// EncodingError 表示本地文件无法读取或编码，此时不会触发任何存储调用。
type EncodingError struct {
	Name string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("registry: encode %q: %v", e.Name, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
