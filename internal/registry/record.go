package registry

import (
	"fmt"
	"strings"

	"filehub/internal/datauri"
)

// KeyPrefix 是文件记录在共享存储中的保留前缀；记录 ID 即存储 key。
const KeyPrefix = "file:"

// FileRecord 是一次上传在共享存储中的完整表示。字段名需与其他读取方保持一致。
type FileRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	MediaType  string `json:"type"`
	UploadedAt string `json:"uploadedAt"`
	UploadedBy string `json:"uploadedBy"`
	Data       string `json:"data,omitempty"`
}

// Content 解码记录中的 data URI，返回原始字节。
func (r FileRecord) Content() ([]byte, error) {
	_, data, err := datauri.Decode(r.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.ID, err)
	}
	return data, nil
}

// Summary 返回不含负载的副本，用于列表展示。
func (r FileRecord) Summary() FileRecord {
	r.Data = ""
	return r
}

// NewFile 描述创建记录所需的信息，Data 须为已编码的 data URI。
type NewFile struct {
	Name       string
	Size       int64
	MediaType  string
	UploadedBy string
	Data       string
}

func (in NewFile) validate() error {
	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidRecord)
	case in.Size < 0:
		return fmt.Errorf("%w: size must not be negative", ErrInvalidRecord)
	case strings.TrimSpace(in.UploadedBy) == "":
		return fmt.Errorf("%w: uploadedBy is required", ErrInvalidRecord)
	case !strings.HasPrefix(in.Data, "data:"):
		return fmt.Errorf("%w: data must be a data uri", ErrInvalidRecord)
	default:
		return nil
	}
}

// IsRecordKey 判断 key 是否属于文件目录。
func IsRecordKey(key string) bool {
	return strings.HasPrefix(key, KeyPrefix) && len(key) > len(KeyPrefix)
}
