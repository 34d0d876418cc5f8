package parser

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEinoPDFTextExtractor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	extractor, err := NewEinoPDFTextExtractor(ctx)
	require.NoError(t, err, "创建PDF提取器不应返回错误")
	require.NotNil(t, extractor.parser, "PDF提取器内部的parser不应为nil")
	require.NotNil(t, extractor.logger, "PDF提取器应该有默认的logger")
	assert.Equal(t, "eino", extractor.Name())

	customLogger := log.New(os.Stdout, "[测试PDF提取器] ", log.LstdFlags)
	withLogger, err := NewEinoPDFTextExtractor(ctx, WithEinoLogger(customLogger), WithEinoTimeout(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, customLogger, withLogger.logger, "应该使用提供的自定义logger")
	assert.Equal(t, 3*time.Second, withLogger.timeout)
}

func TestPDFStrategies_RejectNonPDF(t *testing.T) {
	ctx := context.Background()
	garbage := []byte("this is definitely not a pdf document")

	eino, err := NewEinoPDFTextExtractor(ctx)
	require.NoError(t, err)
	plain := NewPlainPDFTextExtractor()

	for _, strategy := range []TextStrategy{eino, plain} {
		t.Run(strategy.Name(), func(t *testing.T) {
			chain, err := NewFallbackTextExtractor([]TextStrategy{strategy})
			require.NoError(t, err)
			text, _, err := chain.runStrategy(ctx, strategy, garbage, "garbage.pdf")
			assert.Error(t, err, "非PDF内容应返回错误")
			assert.Empty(t, text)
		})
	}
}

func TestPDFStrategies_PageOrder(t *testing.T) {
	ctx := context.Background()
	data := buildPDF(textPage("John Doe"), textPage("Skills Go Rust"))

	eino, err := NewEinoPDFTextExtractor(ctx)
	require.NoError(t, err)

	for _, strategy := range []TextStrategy{eino, NewPlainPDFTextExtractor()} {
		t.Run(strategy.Name(), func(t *testing.T) {
			text, pages, err := strategy.ExtractText(ctx, data, "two-pages.pdf")
			require.NoError(t, err)
			assert.Equal(t, 2, pages)
			first := strings.Index(text, "John Doe")
			second := strings.Index(text, "Skills Go Rust")
			require.GreaterOrEqual(t, first, 0, "应包含第一页文本")
			require.GreaterOrEqual(t, second, 0, "应包含第二页文本")
			assert.Less(t, first, second, "按页序拼接")
		})
	}

	text, _, err := eino.ExtractText(ctx, data, "two-pages.pdf")
	require.NoError(t, err)
	assert.Equal(t, "John DoeSkills Go Rust", text, "Eino 策略页间不插入分隔符")
}

func TestPDFStrategies_BrokenPageContributesEmpty(t *testing.T) {
	ctx := context.Background()
	data := buildPDF(textPage("John Doe"), brokenPage("Lost"), textPage("Skills Go Rust"))

	eino, err := NewEinoPDFTextExtractor(ctx)
	require.NoError(t, err)

	t.Run("整本解析失败", func(t *testing.T) {
		_, _, err := eino.parseDocument(ctx, data, "broken.pdf", time.Now())
		assert.Error(t, err, "Eino Parser 在坏页上整体失败")
	})

	for _, strategy := range []TextStrategy{eino, NewPlainPDFTextExtractor()} {
		t.Run(strategy.Name(), func(t *testing.T) {
			text, pages, err := strategy.ExtractText(ctx, data, "broken.pdf")
			require.NoError(t, err, "单页失败不应中断整个提取")
			assert.Equal(t, 3, pages)
			assert.Contains(t, text, "John Doe")
			assert.Contains(t, text, "Skills Go Rust")
			assert.NotContains(t, text, "Lost")
		})
	}

	text, _, err := eino.ExtractText(ctx, data, "broken.pdf")
	require.NoError(t, err)
	assert.Equal(t, "John DoeSkills Go Rust", text)
}

func TestPDFStrategies_ZeroPages(t *testing.T) {
	ctx := context.Background()
	data := buildPDF()

	eino, err := NewEinoPDFTextExtractor(ctx)
	require.NoError(t, err)
	chain, err := NewFallbackTextExtractor([]TextStrategy{eino, NewPlainPDFTextExtractor()})
	require.NoError(t, err)

	result, err := chain.Extract(ctx, data, "empty.pdf")
	assert.ErrorIs(t, err, ErrNoTextFound)
	require.NotNil(t, result)
	assert.Empty(t, result.Text)
	require.Len(t, result.Failures, 2, "两个策略都应记录失败")
	assert.Equal(t, "eino", result.Failures[0].Strategy)
	assert.Equal(t, "plain", result.Failures[1].Strategy)
}

func TestPDFStrategies_SampleFile(t *testing.T) {
	samples, _ := filepath.Glob("testdata/*.pdf")
	if len(samples) == 0 {
		t.Skip("找不到测试PDF文件，跳过测试")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eino, err := NewEinoPDFTextExtractor(ctx)
	require.NoError(t, err)
	chain, err := NewFallbackTextExtractor([]TextStrategy{eino, NewPlainPDFTextExtractor()})
	require.NoError(t, err)

	for _, path := range samples {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		result, err := chain.Extract(ctx, data, path)
		require.NoError(t, err, "样例PDF %s 应可提取文本", path)
		assert.NotEmpty(t, result.Text)
		t.Logf("%s: 策略=%s 页数=%d 字符=%d", path, result.Strategy, result.Pages, len(result.Text))
	}
}

func TestNewTikaPDFExtractor(t *testing.T) {
	extractor := NewTikaPDFExtractor("http://localhost:9998/")
	assert.Equal(t, "http://localhost:9998", extractor.ServerURL, "末尾斜杠应被去掉")
	require.NotNil(t, extractor.Client, "HTTP客户端不应为nil")
	assert.Equal(t, 60*time.Second, extractor.Client.Timeout, "HTTP客户端超时应为60秒")
	assert.True(t, extractor.extractAnnotations, "默认应提取注释文本")

	customLogger := log.New(os.Stdout, "[测试] ", log.LstdFlags)
	custom := NewTikaPDFExtractor("http://tika:9998",
		WithAnnotations(false),
		WithTikaLogger(customLogger),
		WithTimeout(30*time.Second),
	)
	assert.False(t, custom.extractAnnotations)
	assert.Equal(t, customLogger, custom.logger)
	assert.Equal(t, 30*time.Second, custom.Client.Timeout)
}

func TestTikaPDFExtractor_ExtractText(t *testing.T) {
	var gotMethod, gotPath, gotAccept, gotAnnotations string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		gotAnnotations = r.Header.Get("X-Tika-PDFExtractAnnotationText")
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("John Doe\nGo Engineer"))
	}))
	defer server.Close()

	extractor := NewTikaPDFExtractor(server.URL, WithAnnotations(false))
	text, pages, err := extractor.ExtractText(context.Background(), []byte("%PDF-1.4"), "resume.pdf")
	require.NoError(t, err)
	assert.Equal(t, "John Doe\nGo Engineer", text)
	assert.Equal(t, 0, pages)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/tika", gotPath)
	assert.Equal(t, "text/plain", gotAccept)
	assert.Equal(t, "false", gotAnnotations)
}

func TestTikaPDFExtractor_Errors(t *testing.T) {
	t.Run("服务端错误", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		_, _, err := NewTikaPDFExtractor(server.URL).ExtractText(context.Background(), []byte("x"), "a.pdf")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "422")
	})

	t.Run("空白文本", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("  \n\t "))
		}))
		defer server.Close()

		_, _, err := NewTikaPDFExtractor(server.URL).ExtractText(context.Background(), []byte("x"), "a.pdf")
		assert.Error(t, err)
	})
}
