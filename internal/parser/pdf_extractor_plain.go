package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// PlainPDFTextExtractor 基于 ledongthuc/pdf 的备用提取策略。
// 单页失败时该页贡献空文本，不中断整个文档。
type PlainPDFTextExtractor struct {
	logger *log.Logger
}

// PlainPDFOption 配置选项
type PlainPDFOption func(*PlainPDFTextExtractor)

// WithPlainLogger 配置自定义日志记录器
func WithPlainLogger(logger *log.Logger) PlainPDFOption {
	return func(e *PlainPDFTextExtractor) {
		e.logger = logger
	}
}

var _ TextStrategy = (*PlainPDFTextExtractor)(nil)

// NewPlainPDFTextExtractor 创建备用PDF提取器
func NewPlainPDFTextExtractor(options ...PlainPDFOption) *PlainPDFTextExtractor {
	extractor := &PlainPDFTextExtractor{
		logger: log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor
}

// Name 策略名称
func (e *PlainPDFTextExtractor) Name() string {
	return "plain"
}

// ExtractText 逐页提取纯文本并按页序拼接
func (e *PlainPDFTextExtractor) ExtractText(ctx context.Context, data []byte, uri string) (string, int, error) {
	startTime := time.Now()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("failed to read pdf %s: %w", uri, err)
	}

	numPages := reader.NumPage()
	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", numPages, fmt.Errorf("extraction of %s cancelled at page %d: %w", uri, i, err)
		}
		sb.WriteString(e.pageText(reader, i))
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		e.logger.Printf("PDF无可提取文本: %s (页数 %d)", uri, numPages)
		return "", numPages, fmt.Errorf("no text found in %d page(s) of %s", numPages, uri)
	}

	e.logger.Printf("PDF提取完成: %d 页, %d 个字符 (用时 %.2f秒)", numPages, len(text), time.Since(startTime).Seconds())
	return text, numPages, nil
}

// pageText 提取单页文本，任何失败都返回空字符串
func (e *PlainPDFTextExtractor) pageText(reader *pdf.Reader, index int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("第 %d 页解析异常，按空页处理: %v", index, r)
			text = ""
		}
	}()

	page := reader.Page(index)
	if page.V.IsNull() {
		return ""
	}
	content, err := page.GetPlainText(nil)
	if err != nil {
		e.logger.Printf("第 %d 页提取失败，按空页处理: %v", index, err)
		return ""
	}
	return content
}
