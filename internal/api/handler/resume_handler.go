package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"resume-scanner/internal/constants"
	"resume-scanner/internal/logger"
	"resume-scanner/internal/processor"
	"resume-scanner/internal/storage"
	"resume-scanner/internal/types"
)

const (
	defaultMaxUploadBytes = 20 << 20
	defaultSearchLimit    = 5
	maxSearchLimit        = 50
)

// Scanner 执行一次扫描流水线
type Scanner interface {
	Run(ctx context.Context, doc types.RawDocument) (*processor.RunResult, error)
	SinkName() string
}

// Archive flat 模式下的归档读取
type Archive interface {
	Latest(ctx context.Context) (types.StructuredRecord, error)
}

// Searcher indexed 模式下的相似度查询
type Searcher interface {
	Query(ctx context.Context, text string, limit int) ([]types.SimilarResume, error)
}

var (
	_ Scanner  = (*processor.Pipeline)(nil)
	_ Archive  = (*storage.FlatFileSink)(nil)
	_ Searcher = (*storage.IndexedStoreSink)(nil)
)

// ResumeHandler 简历扫描相关的HTTP处理器
type ResumeHandler struct {
	scanner        Scanner
	archive        Archive
	searcher       Searcher
	maxUploadBytes int64
}

// HandlerOption 配置选项
type HandlerOption func(*ResumeHandler)

// WithArchive 启用最新记录下载
func WithArchive(archive Archive) HandlerOption {
	return func(h *ResumeHandler) {
		h.archive = archive
	}
}

// WithSearcher 启用相似度查询
func WithSearcher(searcher Searcher) HandlerOption {
	return func(h *ResumeHandler) {
		h.searcher = searcher
	}
}

// WithMaxUploadMB 上传大小上限
func WithMaxUploadMB(mb int) HandlerOption {
	return func(h *ResumeHandler) {
		if mb > 0 {
			h.maxUploadBytes = int64(mb) << 20
		}
	}
}

// NewResumeHandler 创建处理器
func NewResumeHandler(scanner Scanner, options ...HandlerOption) *ResumeHandler {
	h := &ResumeHandler{
		scanner:        scanner,
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, option := range options {
		option(h)
	}
	return h
}

// ScanResponse 扫描接口的响应体
type ScanResponse struct {
	*processor.RunResult
	Error string `json:"error,omitempty"`
}

// HandleScan 上传一份PDF并同步执行流水线
// POST /api/v1/resume/scan  (multipart, 字段 file)
func (h *ResumeHandler) HandleScan(ctx context.Context, c *app.RequestContext) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "只支持PDF文件"})
		return
	}
	if fileHeader.Size > h.maxUploadBytes {
		c.JSON(consts.StatusRequestEntityTooLarge, utils.H{"error": fmt.Sprintf("文件超过 %d MB", h.maxUploadBytes>>20)})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取文件失败"})
		return
	}

	result, runErr := h.scanner.Run(ctx, types.RawDocument{
		Filename:   fileHeader.Filename,
		Data:       data,
		UploadedAt: time.Now(),
	})
	if result == nil {
		result = &processor.RunResult{State: processor.StateFailed}
	}

	resp := ScanResponse{RunResult: result}
	if runErr != nil {
		resp.Error = runErr.Error()
		logger.Warn().
			Err(runErr).
			Str("run_id", result.RunID).
			Str("filename", fileHeader.Filename).
			Str("kind", string(processor.KindOf(runErr))).
			Msg("简历扫描失败")
	} else {
		logger.Info().
			Str("run_id", result.RunID).
			Str("filename", fileHeader.Filename).
			Str("outcome", string(result.Outcome)).
			Str("key", result.Key).
			Msg("简历扫描完成")
	}
	c.JSON(StatusForRunError(runErr), resp)
}

// StatusForRunError 把流水线错误映射为HTTP状态码
func StatusForRunError(err error) int {
	switch {
	case err == nil:
		return consts.StatusOK
	case errors.Is(err, processor.ErrExtractionFailure), errors.Is(err, processor.ErrNormalizationFailure):
		return consts.StatusUnprocessableEntity
	case errors.Is(err, processor.ErrModelFailure):
		return consts.StatusBadGateway
	default:
		return consts.StatusInternalServerError
	}
}

// HandleLatest 以附件形式下载最近一次归档的记录
// GET /api/v1/resume/latest
func (h *ResumeHandler) HandleLatest(ctx context.Context, c *app.RequestContext) {
	if h.archive == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "当前持久化模式不支持下载"})
		return
	}
	record, err := h.archive.Latest(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrArchiveEmpty) {
			c.JSON(consts.StatusNotFound, utils.H{"error": "暂无已归档的简历"})
			return
		}
		logger.Error().Err(err).Msg("读取归档失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取归档失败"})
		return
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(record); err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "序列化记录失败"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", constants.DownloadFilename))
	c.Data(consts.StatusOK, "application/json", buf.Bytes())
}

// HandleSearch 相似度查询
// GET /api/v1/resume/search?q=...&limit=5
func (h *ResumeHandler) HandleSearch(ctx context.Context, c *app.RequestContext) {
	if h.searcher == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "当前持久化模式不支持查询"})
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "q 不能为空"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultSearchLimit)))
	if err != nil || limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	results, err := h.searcher.Query(ctx, query, limit)
	if err != nil {
		logger.Error().Err(err).Str("query", query).Msg("相似度查询失败")
		c.JSON(consts.StatusBadGateway, utils.H{"error": "查询失败"})
		return
	}
	c.JSON(consts.StatusOK, utils.H{
		"query":   query,
		"limit":   limit,
		"results": results,
	})
}

// HandleHealth 健康检查
func (h *ResumeHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"status": "ok", "sink": h.scanner.SinkName()})
}
