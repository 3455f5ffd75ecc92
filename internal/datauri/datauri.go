// Package datauri 把文件内容编码为 RFC 2397 data URI：data:<媒体类型>;base64,<内容>。
package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// DefaultMediaType 在客户端未提供类型时使用。
const DefaultMediaType = "application/octet-stream"

var ErrMalformed = errors.New("datauri: malformed data uri")

// Encode 返回 content 的 base64 data URI。
func Encode(mediaType string, content []byte) string {
	if mediaType == "" {
		mediaType = DefaultMediaType
	}
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mediaType) + base64.StdEncoding.EncodedLen(len(content)))
	b.WriteString("data:")
	b.WriteString(mediaType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(content))
	return b.String()
}

// EncodeReader 读完 r 后编码，同时返回读取的字节数。
func EncodeReader(mediaType string, r io.Reader) (string, int64, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	return Encode(mediaType, content), int64(len(content)), nil
}

// Decode 拆出媒体类型与原始字节，支持 base64 与百分号编码两种内容。
func Decode(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: scheme", ErrMalformed)
	}

	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing comma", ErrMalformed)
	}

	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if mediaType == "" {
		mediaType = "text/plain;charset=US-ASCII"
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return mediaType, data, nil
	}

	text, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return mediaType, []byte(text), nil
}
