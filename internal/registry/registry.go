package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"filehub/internal/storage"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeLayout 对应浏览器 toLocaleString 的常见 en-US 输出。
const DefaultTimeLayout = "1/2/2006, 3:04:05 PM"

// Options 调整目录行为，零值字段使用默认值。
type Options struct {
	FetchConcurrency int
	SuffixLength     int
	MaxIDAttempts    int
	TimeLayout       string
	Now              func() time.Time
}

func (o Options) withDefaults() Options {
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = 16
	}
	if o.SuffixLength <= 0 {
		o.SuffixLength = DefaultSuffixLength
	}
	if o.MaxIDAttempts <= 0 {
		o.MaxIDAttempts = 3
	}
	if o.TimeLayout == "" {
		o.TimeLayout = DefaultTimeLayout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Registry 将无版本的键值存储映射为可枚举的文件目录。除配置外不持有状态。
type Registry struct {
	store storage.Store
	log   zerolog.Logger
	opts  Options
	ids   IDGenerator
}

func New(store storage.Store, logger zerolog.Logger, opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		store: store,
		log:   logger.With().Str("component", "registry").Logger(),
		opts:  opts,
		ids:   IDGenerator{SuffixLength: opts.SuffixLength, Now: opts.Now},
	}
}

// FetchResult 是单个 key 的读取结果，Err 非空时 Record 无效。
type FetchResult struct {
	Key    string
	Record FileRecord
	Err    error
}

// ListResult 汇总一次列表的全部结果。
type ListResult struct {
	Items   []FetchResult
	ScanErr error
}

// Records 返回读取成功的记录，按 ID 倒序（新记录在前）。
func (r ListResult) Records() []FileRecord {
	records := make([]FileRecord, 0, len(r.Items))
	for _, item := range r.Items {
		if item.Err == nil {
			records = append(records, item.Record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID > records[j].ID })
	return records
}

// Failed 返回读取失败的条目。
func (r ListResult) Failed() []FetchResult {
	var failed []FetchResult
	for _, item := range r.Items {
		if item.Err != nil {
			failed = append(failed, item)
		}
	}
	return failed
}

// List 返回当前可读的全部记录，从不失败；失败细节见 ListDetailed。
func (r *Registry) List(ctx context.Context) []FileRecord {
	return r.ListDetailed(ctx).Records()
}

// ListDetailed 扫描保留前缀下的全部 key 并并发读取，单个 key 的失败只影响该条目。
func (r *Registry) ListDetailed(ctx context.Context) ListResult {
	keys, err := r.store.List(ctx, KeyPrefix, true)
	if err != nil {
		scanErr := &StoreReadError{Op: "list", Key: KeyPrefix, Err: err}
		r.log.Error().Err(err).Msg("scan file keys failed")
		listTotal.WithLabelValues("scan_failed").Inc()
		return ListResult{ScanErr: scanErr}
	}

	items := make([]FetchResult, len(keys))
	var g errgroup.Group
	g.SetLimit(r.opts.FetchConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			items[i] = r.fetch(ctx, key)
			return nil
		})
	}
	_ = g.Wait()

	result := ListResult{Items: items}
	for _, failed := range result.Failed() {
		r.log.Warn().Err(failed.Err).Str("key", failed.Key).Msg("omitting record from listing")
		fetchFailuresTotal.Inc()
	}
	listTotal.WithLabelValues("ok").Inc()
	return result
}

// Get 读取单条记录。
func (r *Registry) Get(ctx context.Context, id string) (FileRecord, error) {
	if !IsRecordKey(id) {
		return FileRecord{}, ErrRecordNotFound
	}
	res := r.fetch(ctx, id)
	return res.Record, res.Err
}

func (r *Registry) fetch(ctx context.Context, key string) FetchResult {
	value, err := r.store.Get(ctx, key, true)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = ErrRecordNotFound
		}
		return FetchResult{Key: key, Err: &StoreReadError{Op: "get", Key: key, Err: err}}
	}

	var record FileRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return FetchResult{Key: key, Err: &StoreReadError{Op: "decode", Key: key, Err: err}}
	}
	if record.ID == "" {
		record.ID = key
	}
	return FetchResult{Key: key, Record: record}
}

// Create 生成 ID 并写入一条新记录。记录一经写入不可修改。
func (r *Registry) Create(ctx context.Context, in NewFile) (FileRecord, error) {
	if err := in.validate(); err != nil {
		return FileRecord{}, err
	}

	record, err := r.create(ctx, in)
	writesTotal.WithLabelValues("create", outcome(err)).Inc()
	if err != nil {
		r.log.Error().Err(err).Str("name", in.Name).Msg("create record failed")
		return FileRecord{}, err
	}

	r.log.Info().
		Str("id", record.ID).
		Str("name", record.Name).
		Int64("size", record.Size).
		Str("uploaded_by", record.UploadedBy).
		Msg("record created")
	return record, nil
}

func (r *Registry) create(ctx context.Context, in NewFile) (FileRecord, error) {
	for attempt := 0; attempt < r.opts.MaxIDAttempts; attempt++ {
		id, err := r.ids.Next()
		if err != nil {
			return FileRecord{}, &StoreWriteError{Op: "create", Err: err}
		}

		// 存储不提供 CAS，这里只能尽力避免覆盖已有 key
		_, err = r.store.Get(ctx, id, true)
		if err == nil {
			r.log.Warn().Str("id", id).Msg("generated id already in use")
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return FileRecord{}, &StoreWriteError{Op: "create", Key: id, Err: err}
		}

		record := FileRecord{
			ID:         id,
			Name:       in.Name,
			Size:       in.Size,
			MediaType:  in.MediaType,
			UploadedAt: r.opts.Now().Format(r.opts.TimeLayout),
			UploadedBy: in.UploadedBy,
			Data:       in.Data,
		}

		payload, err := json.Marshal(record)
		if err != nil {
			return FileRecord{}, fmt.Errorf("marshal record: %w", err)
		}
		if err := r.store.Set(ctx, id, string(payload), true); err != nil {
			return FileRecord{}, &StoreWriteError{Op: "set", Key: id, Err: err}
		}
		return record, nil
	}
	return FileRecord{}, &StoreWriteError{Op: "create", Err: ErrIDCollision}
}

// Delete 删除记录；记录不存在时同样视为成功。
func (r *Registry) Delete(ctx context.Context, id string) error {
	if !IsRecordKey(id) {
		return nil
	}

	err := r.store.Delete(ctx, id, true)
	if err != nil && errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	writesTotal.WithLabelValues("delete", outcome(err)).Inc()
	if err != nil {
		r.log.Error().Err(err).Str("id", id).Msg("delete record failed")
		return &StoreWriteError{Op: "delete", Key: id, Err: err}
	}

	r.log.Info().Str("id", id).Msg("record deleted")
	return nil
}
