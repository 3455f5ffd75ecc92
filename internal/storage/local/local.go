package local

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"filehub/internal/storage"

	"github.com/spf13/afero"
)

const entrySuffix = ".json"

// Store 将每个 key 保存为 BaseDir/<scope>/<escaped key>.json 文件。
type Store struct {
	fs      afero.Fs
	BaseDir string
}

// New 在 fs 上创建存储；fs 为 nil 时使用操作系统文件系统。
func New(fs afero.Fs, baseDir string) (*Store, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	for _, scope := range []string{storage.ScopeShared, storage.ScopePrivate} {
		if err := fs.MkdirAll(filepath.Join(baseDir, scope), 0o755); err != nil {
			return nil, fmt.Errorf("ensure dir: %w", err)
		}
	}
	return &Store{fs: fs, BaseDir: baseDir}, nil
}

func (s *Store) List(ctx context.Context, prefix string, shared bool) ([]string, error) {
	if s == nil || s.fs == nil {
		return nil, fmt.Errorf("local store uninitialized")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	entries, err := afero.ReadDir(s.fs, filepath.Join(s.BaseDir, storage.ScopeFor(shared)))
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, entrySuffix) {
			continue
		}
		key, err := url.QueryUnescape(strings.TrimSuffix(name, entrySuffix))
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *Store) Get(ctx context.Context, key string, shared bool) (string, error) {
	if s == nil || s.fs == nil {
		return "", fmt.Errorf("local store uninitialized")
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	data, err := afero.ReadFile(s.fs, s.path(key, shared))
	if err != nil {
		if os.IsNotExist(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

// Set 先写临时文件再重命名，读者看不到写了一半的记录。
func (s *Store) Set(ctx context.Context, key, value string, shared bool) error {
	if s == nil || s.fs == nil {
		return fmt.Errorf("local store uninitialized")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	targetPath := s.path(key, shared)
	tempPath := targetPath + ".tmp"
	file, err := s.fs.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := file.WriteString(value); err != nil {
		file.Close()
		s.fs.Remove(tempPath)
		return fmt.Errorf("write file: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		s.fs.Remove(tempPath)
		return fmt.Errorf("sync file: %w", err)
	}

	if err := file.Close(); err != nil {
		s.fs.Remove(tempPath)
		return fmt.Errorf("close file: %w", err)
	}

	if err := s.fs.Rename(tempPath, targetPath); err != nil {
		s.fs.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string, shared bool) error {
	if s == nil || s.fs == nil {
		return fmt.Errorf("local store uninitialized")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := s.fs.Remove(s.path(key, shared)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *Store) path(key string, shared bool) string {
	return filepath.Join(s.BaseDir, storage.ScopeFor(shared), url.QueryEscape(key)+entrySuffix)
}
