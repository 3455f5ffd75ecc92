package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New 创建结构化日志器。pretty 为 true 时输出便于阅读的控制台格式（CLI），否则输出 JSON（服务端）。
func New(level string, pretty bool) zerolog.Logger {
	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	return NewWithWriter(out, level)
}

// NewWithWriter 允许调用方指定输出，例如测试中的 bytes.Buffer。
func NewWithWriter(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("service", "filehub").
		Logger()
}

// ParseLevel 解析日志级别，无法识别时回退到 info。
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
