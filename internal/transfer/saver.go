package transfer

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Saver 接收下载完成后解码出的文件内容。
type Saver interface {
	Save(ctx context.Context, name, mediaType string, content []byte) error
}

// SaverFunc 让普通函数实现 Saver。
type SaverFunc func(ctx context.Context, name, mediaType string, content []byte) error

func (f SaverFunc) Save(ctx context.Context, name, mediaType string, content []byte) error {
	return f(ctx, name, mediaType, content)
}

// FileSaver 把内容写入文件系统。Path 为空时写到 Dir 下以文件名命名的文件。
type FileSaver struct {
	Fs   afero.Fs
	Dir  string
	Path string
}

func (s FileSaver) Save(_ context.Context, name, _ string, content []byte) error {
	fs := s.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	target := s.Path
	if target == "" {
		target = filepath.Join(s.Dir, SafeName(name))
	}
	if dir := filepath.Dir(target); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(fs, target, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

// WriterSaver 把内容原样写入 W。
type WriterSaver struct {
	W io.Writer
}

func (s WriterSaver) Save(_ context.Context, _, _ string, content []byte) error {
	_, err := s.W.Write(content)
	return err
}

// SafeName 把记录中的文件名收敛为单个路径段，文件名不可信，不能当路径使用。
func SafeName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	switch base {
	case "", ".", "..", "/":
		return "download"
	}
	return base
}
