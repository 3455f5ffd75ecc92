package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"filehub/internal/middleware"
	"filehub/internal/registry"
	"filehub/internal/transfer"
)

// TransferHeader 允许客户端预先指定传输 ID，以便先订阅 websocket 再发起请求。
const TransferHeader = "X-Transfer-ID"

// Catalog 是 HTTP 层依赖的目录能力。
type Catalog interface {
	List(ctx context.Context) []registry.FileRecord
	Get(ctx context.Context, id string) (registry.FileRecord, error)
	Delete(ctx context.Context, id string) error
}

// Transfers 是 HTTP 层依赖的传输能力。
type Transfers interface {
	Upload(ctx context.Context, up transfer.Upload, reporters ...transfer.Reporter) (registry.FileRecord, error)
	Download(ctx context.Context, dl transfer.Download, reporters ...transfer.Reporter) error
}

// FileHandler 提供文件目录相关的 HTTP 端点。
type FileHandler struct {
	catalog       Catalog
	transfers     Transfers
	log           zerolog.Logger
	maxUploadSize int64
}

func NewFileHandler(catalog Catalog, transfers Transfers, maxUploadSize int64, logger zerolog.Logger) *FileHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &FileHandler{
		catalog:       catalog,
		transfers:     transfers,
		log:           logger.With().Str("component", "api").Logger(),
		maxUploadSize: maxUploadSize,
	}
}

func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Route("/files", func(r chi.Router) {
		r.Get("/", h.ListFiles)
		r.Get("/{id}", h.GetFile)
		r.Get("/{id}/download", h.DownloadFile)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireIdentity())
			r.Post("/", h.CreateFile)
		})
		r.Delete("/{id}", h.DeleteFile)
	})
}

type envelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

const (
	// 记录以 base64 文本整体存入单个 key，上限比普通对象存储小得多
	defaultMaxUploadSize  int64 = 10 * 1024 * 1024
	multipartMemoryBudget int64 = 16 * 1024 * 1024
)

// CreateFile 接受 multipart/form-data 上传，播放上传动画后写入目录。
func (h *FileHandler) CreateFile(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is empty")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartMemoryBudget)
	defer r.Body.Close()

	if err := r.ParseMultipartForm(multipartMemoryBudget); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds size limit (%d bytes)", h.maxUploadSize))
		return
	}

	mediaType, err := resolveMimeType(header, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := header.Filename
	if override := strings.TrimSpace(r.FormValue("original_name")); override != "" {
		name = override
	}

	record, err := h.transfers.Upload(r.Context(), transfer.Upload{
		TransferID: r.Header.Get(TransferHeader),
		Name:       name,
		MediaType:  mediaType,
		UploadedBy: middleware.GetUser(r.Context()),
		Content:    file,
	})
	if err != nil {
		status, message := uploadErrorStatus(err)
		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Data: record.Summary()})
}

func uploadErrorStatus(err error) (int, string) {
	var encErr *registry.EncodingError
	switch {
	case errors.Is(err, transfer.ErrInvalidTransfer), errors.Is(err, registry.ErrInvalidRecord):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &encErr):
		return http.StatusBadRequest, "unable to read uploaded file"
	default:
		return http.StatusInternalServerError, "Failed to upload file. Please try again."
	}
}

// ListFiles 返回目录中的全部记录摘要，按创建时间倒序。可用 uploaded_by 过滤。
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	uploadedBy := strings.TrimSpace(r.URL.Query().Get("uploaded_by"))

	records := h.catalog.List(r.Context())
	out := make([]registry.FileRecord, 0, len(records))
	for _, rec := range records {
		if uploadedBy != "" && rec.UploadedBy != uploadedBy {
			continue
		}
		out = append(out, rec.Summary())
	}

	writeJSON(w, http.StatusOK, envelope{Data: out})
}

// GetFile 返回单条记录的摘要。
func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	record, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: record.Summary()})
}

// DownloadFile 播放下载动画后把解码内容作为附件返回。
func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	record, ok := h.lookup(w, r)
	if !ok {
		return
	}

	saver := &responseSaver{w: w}
	err := h.transfers.Download(r.Context(), transfer.Download{
		TransferID: r.Header.Get(TransferHeader),
		Record:     record,
		Saver:      saver,
	})
	if err != nil && !saver.started {
		writeError(w, http.StatusInternalServerError, "Failed to download file.")
	}
}

// DeleteFile 删除记录；不存在的记录同样返回成功。
func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "file id is required")
		return
	}

	if err := h.catalog.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete file.")
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"id": id, "deleted": true}})
}

func (h *FileHandler) lookup(w http.ResponseWriter, r *http.Request) (registry.FileRecord, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "file id is required")
		return registry.FileRecord{}, false
	}

	record, err := h.catalog.Get(r.Context(), id)
	if errors.Is(err, registry.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "file not found")
		return registry.FileRecord{}, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("get record failed")
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return registry.FileRecord{}, false
	}
	return record, true
}

// responseSaver 把下载内容写成 HTTP 附件。
type responseSaver struct {
	w       http.ResponseWriter
	started bool
}

func (s *responseSaver) Save(_ context.Context, name, mediaType string, content []byte) error {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	s.started = true
	s.w.Header().Set("Content-Type", mediaType)
	s.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", transfer.SafeName(name)))
	s.w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	s.w.WriteHeader(http.StatusOK)
	// 客户端可能已断开，此时无法再写入错误响应
	_, err := s.w.Write(content)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: message})
}

func resolveMimeType(header *multipart.FileHeader, file multipart.File) (string, error) {
	if header != nil {
		if value := header.Header.Get("Content-Type"); value != "" {
			return value, nil
		}
	}

	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("detect mime: %w", err)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	if n == 0 {
		return "", nil
	}
	return http.DetectContentType(buf[:n]), nil
}
