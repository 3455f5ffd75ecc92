// Package session 保存单个用户界面会话的显式状态，并把用户操作转交给文件目录与传输引擎。
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"filehub/internal/registry"
	"filehub/internal/transfer"
)

// 面向用户的错误提示。
const (
	UploadFailedMessage   = "Failed to upload file. Please try again."
	DeleteFailedMessage   = "Failed to delete file."
	DownloadFailedMessage = "Failed to download file."
)

var (
	ErrNoIdentity         = errors.New("session: user name is not set")
	ErrNoFileSelected     = errors.New("session: no file selected")
	ErrNoRecordSelected   = errors.New("session: no record selected")
	ErrUnknownRecord      = errors.New("session: record is not in the current listing")
	ErrUnknownMode        = errors.New("session: unknown mode")
	ErrUploadInProgress   = errors.New("session: upload already in progress")
	ErrUploadComplete     = errors.New("session: selected file was already uploaded")
	ErrDownloadInProgress = errors.New("session: download already in progress")
	ErrDownloadComplete   = errors.New("session: selected record was already downloaded")
	ErrRefreshInProgress  = errors.New("session: refresh already in progress")
)

// Mode 对应界面上的两个视图。
type Mode string

const (
	ModeClient Mode = "client"
	ModeServer Mode = "server"
)

// Catalog 是会话依赖的目录能力。
type Catalog interface {
	List(ctx context.Context) []registry.FileRecord
	Delete(ctx context.Context, id string) error
}

// Transfers 是会话依赖的传输能力。
type Transfers interface {
	Upload(ctx context.Context, up transfer.Upload, reporters ...transfer.Reporter) (registry.FileRecord, error)
	Download(ctx context.Context, dl transfer.Download, reporters ...transfer.Reporter) error
}

// FileInfo 描述本地选中、尚未上传的文件。
type FileInfo struct {
	Name      string `json:"name"`
	MediaType string `json:"type"`
	Size      int64  `json:"size"`
}

// State 是会话的完整可见状态。
type State struct {
	UserName         string                `json:"userName"`
	Mode             Mode                  `json:"mode"`
	SelectedFile     *FileInfo             `json:"selectedFile,omitempty"`
	Uploading        bool                  `json:"uploading"`
	UploadProgress   float64               `json:"uploadProgress"`
	UploadComplete   bool                  `json:"uploadComplete"`
	Files            []registry.FileRecord `json:"files"`
	Loading          bool                  `json:"loading"`
	SelectedRecord   string                `json:"selectedRecord,omitempty"`
	Downloading      bool                  `json:"downloading"`
	DownloadProgress float64               `json:"downloadProgress"`
	DownloadComplete bool                  `json:"downloadComplete"`
	Error            string                `json:"error,omitempty"`
}

// Controller 串行化会话状态的修改；目录与引擎调用在锁外执行。
type Controller struct {
	catalog   Catalog
	transfers Transfers
	log       zerolog.Logger

	mu      sync.Mutex
	state   State
	content []byte
}

// New 返回的会话列表为空且不处于加载状态，不会读取目录；调用方在展示前先 Refresh 一次。
func New(catalog Catalog, transfers Transfers, logger zerolog.Logger) *Controller {
	return &Controller{
		catalog:   catalog,
		transfers: transfers,
		log:       logger.With().Str("component", "session").Logger(),
		state:     State{Mode: ModeClient, Files: []registry.FileRecord{}},
	}
}

// Snapshot 返回当前状态的副本。
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Files = make([]registry.FileRecord, len(c.state.Files))
	copy(s.Files, c.state.Files)
	if c.state.SelectedFile != nil {
		f := *c.state.SelectedFile
		s.SelectedFile = &f
	}
	return s
}

func (c *Controller) SetIdentity(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNoIdentity
	}
	c.mu.Lock()
	c.state.UserName = name
	c.mu.Unlock()
	return nil
}

func (c *Controller) SetMode(mode Mode) error {
	if mode != ModeClient && mode != ModeServer {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	c.mu.Lock()
	c.state.Mode = mode
	c.mu.Unlock()
	return nil
}

// SelectFile 替换待上传文件，并清除上一次上传的完成状态与进度。
func (c *Controller) SelectFile(name, mediaType string, content []byte) error {
	if name == "" {
		return fmt.Errorf("%w: empty file name", ErrNoFileSelected)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Uploading {
		return ErrUploadInProgress
	}
	c.content = content
	c.state.SelectedFile = &FileInfo{Name: name, MediaType: mediaType, Size: int64(len(content))}
	c.state.UploadComplete = false
	c.state.UploadProgress = 0
	return nil
}

// Upload 上传选中的文件，成功后刷新列表。失败时保留选中文件以便重试。
func (c *Controller) Upload(ctx context.Context) (registry.FileRecord, error) {
	c.mu.Lock()
	switch {
	case c.state.UserName == "":
		c.mu.Unlock()
		return registry.FileRecord{}, ErrNoIdentity
	case c.state.SelectedFile == nil:
		c.mu.Unlock()
		return registry.FileRecord{}, ErrNoFileSelected
	case c.state.Uploading:
		c.mu.Unlock()
		return registry.FileRecord{}, ErrUploadInProgress
	case c.state.UploadComplete:
		c.mu.Unlock()
		return registry.FileRecord{}, ErrUploadComplete
	}
	c.state.Uploading = true
	c.state.UploadProgress = 0
	up := transfer.Upload{
		Name:       c.state.SelectedFile.Name,
		MediaType:  c.state.SelectedFile.MediaType,
		UploadedBy: c.state.UserName,
		Content:    bytes.NewReader(c.content),
	}
	c.mu.Unlock()

	progress := transfer.ReporterFunc(func(ev transfer.Event) {
		c.mu.Lock()
		if ev.Progress > c.state.UploadProgress {
			c.state.UploadProgress = ev.Progress
		}
		c.mu.Unlock()
	})

	record, err := c.transfers.Upload(ctx, up, progress)
	c.mu.Lock()
	c.state.Uploading = false
	if err != nil {
		c.state.Error = UploadFailedMessage
		c.mu.Unlock()
		c.log.Error().Err(err).Str("name", up.Name).Msg("upload failed")
		return registry.FileRecord{}, err
	}
	c.state.UploadComplete = true
	c.mu.Unlock()

	if err := c.Refresh(ctx); err != nil {
		c.log.Debug().Err(err).Msg("refresh after upload skipped")
	}
	return record, nil
}

// Refresh 重新读取目录。目录读取失败只会表现为记录缺失，不会产生错误提示。
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Loading {
		c.mu.Unlock()
		return ErrRefreshInProgress
	}
	c.state.Loading = true
	c.state.Error = ""
	c.mu.Unlock()

	files := c.catalog.List(ctx)

	c.mu.Lock()
	c.state.Files = files
	c.state.Loading = false
	c.mu.Unlock()
	return nil
}

// SelectRecord 选中当前列表中的记录，并清除上一次下载的完成状态。
func (c *Controller) SelectRecord(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Downloading {
		return ErrDownloadInProgress
	}
	if _, ok := c.findLocked(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	c.state.SelectedRecord = id
	c.state.DownloadComplete = false
	c.state.DownloadProgress = 0
	return nil
}

// Download 把选中记录交给 saver。记录取自当前列表，不再读取存储。
func (c *Controller) Download(ctx context.Context, saver transfer.Saver) error {
	c.mu.Lock()
	if c.state.SelectedRecord == "" {
		c.mu.Unlock()
		return ErrNoRecordSelected
	}
	if c.state.Downloading {
		c.mu.Unlock()
		return ErrDownloadInProgress
	}
	if c.state.DownloadComplete {
		c.mu.Unlock()
		return ErrDownloadComplete
	}
	record, ok := c.findLocked(c.state.SelectedRecord)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRecord, c.state.SelectedRecord)
	}
	c.state.Downloading = true
	c.state.DownloadProgress = 0
	c.mu.Unlock()

	progress := transfer.ReporterFunc(func(ev transfer.Event) {
		c.mu.Lock()
		if ev.Progress > c.state.DownloadProgress {
			c.state.DownloadProgress = ev.Progress
		}
		c.mu.Unlock()
	})

	err := c.transfers.Download(ctx, transfer.Download{Record: record, Saver: saver}, progress)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Downloading = false
	if err != nil {
		c.state.Error = DownloadFailedMessage
		c.log.Error().Err(err).Str("id", record.ID).Msg("download failed")
		return err
	}
	c.state.DownloadComplete = true
	return nil
}

// Delete 删除记录并刷新列表；被删除的记录若处于选中状态则取消选中。
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.catalog.Delete(ctx, id); err != nil {
		c.mu.Lock()
		c.state.Error = DeleteFailedMessage
		c.mu.Unlock()
		c.log.Error().Err(err).Str("id", id).Msg("delete failed")
		return err
	}

	if err := c.Refresh(ctx); err != nil {
		c.log.Debug().Err(err).Msg("refresh after delete skipped")
	}

	c.mu.Lock()
	if c.state.SelectedRecord == id {
		c.state.SelectedRecord = ""
		c.state.DownloadComplete = false
		c.state.DownloadProgress = 0
	}
	c.mu.Unlock()
	return nil
}

func (c *Controller) DismissError() {
	c.mu.Lock()
	c.state.Error = ""
	c.mu.Unlock()
}

func (c *Controller) findLocked(id string) (registry.FileRecord, bool) {
	for _, f := range c.state.Files {
		if f.ID == id {
			return f, true
		}
	}
	return registry.FileRecord{}, false
}
