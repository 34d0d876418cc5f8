package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	dpdf "github.com/dslipak/pdf"
)

// EinoPDFTextExtractor 使用 Eino PDF Parser 按页提取文本，作为首选策略
type EinoPDFTextExtractor struct {
	parser  *pdf.PDFParser
	logger  *log.Logger
	timeout time.Duration
}

// EinoPDFOption PDF提取器的配置选项
type EinoPDFOption func(*EinoPDFTextExtractor)

// WithEinoLogger 配置自定义日志记录器
func WithEinoLogger(logger *log.Logger) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.logger = logger
	}
}

// WithEinoTimeout 配置单次解析超时
func WithEinoTimeout(timeout time.Duration) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

var _ TextStrategy = (*EinoPDFTextExtractor)(nil)

// NewEinoPDFTextExtractor 初始化 Eino PDF 文本提取器。
// 使用 ToPages 模式，每页一个文档，便于按页拼接。
func NewEinoPDFTextExtractor(ctx context.Context, options ...EinoPDFOption) (*EinoPDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}

	extractor := &EinoPDFTextExtractor{
		parser:  p,
		logger:  log.New(io.Discard, "", 0),
		timeout: 30 * time.Second,
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor, nil
}

// Name 策略名称
func (e *EinoPDFTextExtractor) Name() string {
	return "eino"
}

// ExtractText 解析PDF并按页序拼接文本，返回文本和页数。
// 整本解析在某一页失败时改为逐页解析，失败的页贡献空文本
func (e *EinoPDFTextExtractor) ExtractText(ctx context.Context, data []byte, uri string) (string, int, error) {
	startTime := time.Now()
	e.logger.Printf("开始提取PDF文本 (URI: %s, 大小: %d 字节)", uri, len(data))

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	text, pages, err := e.parseDocument(ctx, data, uri, startTime)
	if err != nil {
		e.logger.Printf("整本解析失败，改为逐页解析: %v", err)
		text, pages, err = e.parsePages(ctx, data, uri)
	}
	duration := time.Since(startTime)
	if err != nil {
		e.logger.Printf("PDF解析失败: %s (用时 %.2f秒)", err, duration.Seconds())
		return "", 0, fmt.Errorf("eino PDF parser failed for URI %s: %w", uri, err)
	}

	if strings.TrimSpace(text) == "" {
		e.logger.Printf("PDF解析无文本 (页数 %d, 用时 %.2f秒)", pages, duration.Seconds())
		return "", pages, fmt.Errorf("eino PDF parser returned no text for URI %s", uri)
	}

	e.logger.Printf("PDF提取完成: %d 页, %d 个字符 (用时 %.2f秒)", pages, len(text), duration.Seconds())
	return text, pages, nil
}

// parseDocument 使用 Eino Parser 一次解析整本文档
func (e *EinoPDFTextExtractor) parseDocument(ctx context.Context, data []byte, uri string, startTime time.Time) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pages, err = "", 0, fmt.Errorf("eino parser panicked: %v", r)
		}
	}()

	docs, err := e.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(map[string]any{
			"extraction_time": startTime.Format(time.RFC3339),
		}),
	)
	if err != nil {
		return "", 0, err
	}

	var sb strings.Builder
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		sb.WriteString(doc.Content)
	}
	return sb.String(), len(docs), nil
}

// parsePages 与 Eino Parser 使用同一底层读取器，逐页提取并隔离单页失败
func (e *EinoPDFTextExtractor) parsePages(ctx context.Context, data []byte, uri string) (string, int, error) {
	reader, err := openEinoReader(data)
	if err != nil {
		return "", 0, fmt.Errorf("create new pdf reader failed: %w", err)
	}

	numPages := reader.NumPage()
	fonts := make(map[string]*dpdf.Font)
	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", numPages, fmt.Errorf("extraction of %s cancelled at page %d: %w", uri, i, err)
		}
		sb.WriteString(e.pageText(reader, i, fonts))
	}
	return sb.String(), numPages, nil
}

// openEinoReader 打开PDF，底层库对损坏的xref可能直接panic
func openEinoReader(data []byte) (reader *dpdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader, err = nil, fmt.Errorf("pdf reader panicked: %v", r)
		}
	}()
	return dpdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// pageText 提取单页文本，任何失败都返回空字符串
func (e *EinoPDFTextExtractor) pageText(reader *dpdf.Reader, index int, fonts map[string]*dpdf.Font) (text string) {
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
	for _, name := range page.Fonts() {
		if _, ok := fonts[name]; !ok {
			font := page.Font(name)
			fonts[name] = &font
		}
	}
	content, err := page.GetPlainText(fonts)
	if err != nil {
		e.logger.Printf("第 %d 页提取失败，按空页处理: %v", index, err)
		return ""
	}
	return content
}
