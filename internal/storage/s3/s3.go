package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"filehub/internal/storage"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config 包含 S3/MinIO 存储所需的配置。
type Config struct {
	Endpoint  string // 不含协议，如 "localhost:9000" 或 "s3.amazonaws.com"
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool // 是否使用 HTTPS
	PathStyle bool // 是否使用路径风格（MinIO 需要 true）
}

// Store 实现了 storage.Store，每个 key 对应一个对象 <scope>/<key>。
type Store struct {
	client *minio.Client
	bucket string
}

// New 创建新的 S3 存储实例。
func New(ctx context.Context, cfg Config) (*Store, error) {
	lookup := minio.BucketLookupAuto
	if cfg.PathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	// 检查 bucket 是否存在，不存在则创建
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{
			Region: cfg.Region,
		}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// List 列出 <scope>/<prefix> 下的全部对象。
func (s *Store) List(ctx context.Context, prefix string, shared bool) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("s3 storage uninitialized")
	}

	scopePrefix := storage.ScopeFor(shared) + "/"
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    scopePrefix + prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		keys = append(keys, strings.TrimPrefix(obj.Key, scopePrefix))
	}
	return keys, nil
}

// Get 读取对象内容。
func (s *Store) Get(ctx context.Context, key string, shared bool) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("s3 storage uninitialized")
	}

	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(key, shared), minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("read object: %w", err)
	}
	return string(data), nil
}

// Set 以单次 PutObject 写入，对象存储保证单 key 原子可见。
func (s *Store) Set(ctx context.Context, key, value string, shared bool) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("s3 storage uninitialized")
	}

	_, err := s.client.PutObject(ctx, s.bucket, objectKey(key, shared), strings.NewReader(value), int64(len(value)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Delete 删除对象；S3 对不存在的对象同样返回成功。
func (s *Store) Delete(ctx context.Context, key string, shared bool) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("s3 storage uninitialized")
	}

	if err := s.client.RemoveObject(ctx, s.bucket, objectKey(key, shared), minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func objectKey(key string, shared bool) string {
	return storage.ScopeFor(shared) + "/" + key
}
