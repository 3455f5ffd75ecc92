package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"filehub/internal/datauri"
	"filehub/internal/registry"
)

// ErrInvalidTransfer 表示传输请求缺少必要字段。
var ErrInvalidTransfer = errors.New("transfer: invalid request")

// Creator 是上传提交时依赖的目录能力。
type Creator interface {
	Create(ctx context.Context, in registry.NewFile) (registry.FileRecord, error)
}

// Options 调整动画节奏；零值字段使用默认值。
type Options struct {
	Clock         clock.Clock
	TickInterval  time.Duration
	MaxIncrement  float64
	MaxTicks      int
	MinUploadTime time.Duration
	// Rand 为每个操作提供独立的随机源。
	Rand func() *rand.Rand
	// Reporter 接收引擎上全部操作的事件，例如 websocket 广播。
	Reporter Reporter
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.MaxIncrement <= 0 {
		o.MaxIncrement = DefaultMaxIncrement
	}
	if o.MaxTicks <= 0 {
		o.MaxTicks = DefaultMaxTicks
	}
	if o.MinUploadTime <= 0 {
		o.MinUploadTime = DefaultMinUploadTime
	}
	if o.Rand == nil {
		o.Rand = func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
	}
	if o.Reporter == nil {
		o.Reporter = NopReporter{}
	}
	return o
}

// Engine 在目录读写外层包裹模拟进度。进度只是展示，数据完整性由目录保证：
// 提交前不会有任何部分记录写入存储。
type Engine struct {
	creator Creator
	log     zerolog.Logger
	opts    Options
}

func New(creator Creator, logger zerolog.Logger, opts Options) *Engine {
	return &Engine{
		creator: creator,
		log:     logger.With().Str("component", "transfer").Logger(),
		opts:    opts.withDefaults(),
	}
}

// Upload 描述一次上传。Content 会被完整读入内存。
type Upload struct {
	TransferID string
	Name       string
	MediaType  string
	UploadedBy string
	Content    io.Reader
}

// Download 描述一次下载。Record 必须已包含 data 字段，下载不会再读存储。
type Download struct {
	TransferID string
	Record     registry.FileRecord
	Saver      Saver
}

type encodeResult struct {
	data string
	size int64
	err  error
}

// Upload 读取并编码文件，同时播放进度动画；进度到 100、最短时长已过且编码完成后
// 才调用 Create。失败后再次调用 Upload 即可重试，进度从 0 重新开始。
// 编码与动画并行，编码完成前上报的事件带 Encoding 标记。
func (e *Engine) Upload(ctx context.Context, up Upload, reporters ...Reporter) (registry.FileRecord, error) {
	if up.Name == "" || strings.TrimSpace(up.UploadedBy) == "" || up.Content == nil {
		return registry.FileRecord{}, fmt.Errorf("%w: name, uploader and content are required", ErrInvalidTransfer)
	}

	op := e.newOperation(up.TransferID, KindUpload, up.Name, reporters)
	started := e.opts.Clock.Now()
	logger := e.log.With().Str("transfer_id", op.ID).Str("name", up.Name).Logger()

	op.setEncoding(true)
	op.enter(StateEncoding, 0)
	encoded := make(chan encodeResult, 1)
	encodeFailed := make(chan struct{})
	go func() {
		data, size, err := datauri.EncodeReader(up.MediaType, up.Content)
		op.setEncoding(false)
		if err != nil {
			close(encodeFailed)
		}
		encoded <- encodeResult{data: data, size: size, err: err}
	}()

	floor := e.opts.Clock.Timer(e.opts.MinUploadTime)
	defer floor.Stop()

	op.enter(StateAnimating, 0)
	finish := e.animate(op, Signals{Snap: floor.C, Abort: encodeFailed})
	if finish == FinishReached {
		select {
		case <-floor.C:
		case <-encodeFailed:
		}
	}

	res := <-encoded
	if res.err != nil {
		err := &registry.EncodingError{Name: up.Name, Err: res.err}
		return registry.FileRecord{}, e.failed(op, logger, started, err)
	}

	op.enter(StateCommitting, 100)
	record, err := e.creator.Create(ctx, registry.NewFile{
		Name:       up.Name,
		Size:       res.size,
		MediaType:  up.MediaType,
		UploadedBy: up.UploadedBy,
		Data:       res.data,
	})
	if err != nil {
		return registry.FileRecord{}, e.failed(op, logger, started, err)
	}

	op.complete(record.ID)
	observe(KindUpload, nil, e.opts.Clock.Since(started).Seconds())
	logger.Info().Str("id", record.ID).Int64("size", record.Size).Msg("upload complete")
	return record, nil
}

// Download 播放进度动画，到 100 后解码记录内容并交给 Saver。
func (e *Engine) Download(ctx context.Context, dl Download, reporters ...Reporter) error {
	if dl.Saver == nil || dl.Record.ID == "" {
		return fmt.Errorf("%w: record and saver are required", ErrInvalidTransfer)
	}

	rec := dl.Record
	op := e.newOperation(dl.TransferID, KindDownload, rec.Name, reporters)
	started := e.opts.Clock.Now()
	logger := e.log.With().Str("transfer_id", op.ID).Str("id", rec.ID).Logger()

	op.enter(StateAnimating, 0)
	e.animate(op, Signals{})

	op.enter(StateSaving, 100)
	content, err := rec.Content()
	if err != nil {
		return e.failed(op, logger, started, &registry.EncodingError{Name: rec.Name, Err: err})
	}
	if err := dl.Saver.Save(ctx, rec.Name, rec.MediaType, content); err != nil {
		return e.failed(op, logger, started, fmt.Errorf("save %q: %w", rec.Name, err))
	}

	op.complete(rec.ID)
	observe(KindDownload, nil, e.opts.Clock.Since(started).Seconds())
	logger.Info().Int("bytes", len(content)).Msg("download complete")
	return nil
}

func (e *Engine) newOperation(id string, kind Kind, name string, reporters []Reporter) *Operation {
	if id == "" {
		id = uuid.NewString()
	}
	all := make(MultiReporter, 0, len(reporters)+1)
	all = append(all, e.opts.Reporter)
	all = append(all, reporters...)
	return newOperation(id, kind, name, all)
}

func (e *Engine) animate(op *Operation, sig Signals) Finish {
	steps := Steps(e.opts.Rand(), StepOptions{
		MaxIncrement: e.opts.MaxIncrement,
		MaxTicks:     e.opts.MaxTicks,
	})
	anim := Animator{Clock: e.opts.Clock, Interval: e.opts.TickInterval}
	return anim.Run(steps, sig, op.advance)
}

func (e *Engine) failed(op *Operation, logger zerolog.Logger, started time.Time, err error) error {
	op.fail(err)
	observe(op.Kind, err, e.opts.Clock.Since(started).Seconds())
	logger.Error().Err(err).Str("kind", string(op.Kind)).Msg("transfer failed")
	return err
}
