package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"resume-scanner/internal/constants"
	"resume-scanner/internal/tracing"
)

var parserTracer = otel.Tracer("resume-scanner/parser")

// ErrNoTextFound 所有提取策略都没有得到可用文本
var ErrNoTextFound = errors.New("no text found in document")

// TextStrategy 单一PDF文本提取策略。
// 返回的文本为空或全为空白时必须返回错误。
type TextStrategy interface {
	Name() string
	ExtractText(ctx context.Context, data []byte, uri string) (text string, pages int, err error)
}

// StrategyFailure 某个策略失败的记录，调用方据此发出非致命警告
type StrategyFailure struct {
	Strategy string
	Err      error
}

// ExtractionResult 文本提取结果
type ExtractionResult struct {
	Text     string
	Strategy string
	Pages    int
	Failures []StrategyFailure
}

// FallbackTextExtractor 按顺序尝试多个策略，前一个失败才尝试下一个
type FallbackTextExtractor struct {
	strategies []TextStrategy
	timeout    time.Duration
	logger     *log.Logger
}

// FallbackOption 配置选项
type FallbackOption func(*FallbackTextExtractor)

// WithFallbackLogger 配置自定义日志记录器
func WithFallbackLogger(logger *log.Logger) FallbackOption {
	return func(f *FallbackTextExtractor) {
		f.logger = logger
	}
}

// WithStrategyTimeout 单个策略的最长执行时间，<=0 时使用默认值
func WithStrategyTimeout(timeout time.Duration) FallbackOption {
	return func(f *FallbackTextExtractor) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// NewFallbackTextExtractor 创建策略链，strategies[0] 为首选策略
func NewFallbackTextExtractor(strategies []TextStrategy, options ...FallbackOption) (*FallbackTextExtractor, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("至少需要一个文本提取策略")
	}
	f := &FallbackTextExtractor{
		strategies: strategies,
		timeout:    constants.DefaultExtractTimeout,
		logger:     log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(f)
	}
	return f, nil
}

// Extract 依次执行策略直到得到非空文本。全部失败时返回 ErrNoTextFound，
// 结果中仍带有每个策略的失败记录。
func (f *FallbackTextExtractor) Extract(ctx context.Context, data []byte, uri string) (*ExtractionResult, error) {
	ctx, span := parserTracer.Start(ctx, "TextExtractor.Extract")
	defer span.End()
	span.SetAttributes(
		attribute.Int("document.size", len(data)),
		attribute.Int("strategies.count", len(f.strategies)),
	)

	result := &ExtractionResult{}
	var lastErr error
	for _, strategy := range f.strategies {
		text, pages, err := f.runStrategy(ctx, strategy, data, uri)
		if err == nil && strings.TrimSpace(text) == "" {
			err = fmt.Errorf("strategy %s returned empty text", strategy.Name())
		}
		if err != nil {
			f.logger.Printf("策略 %s 提取失败: %v", strategy.Name(), err)
			result.Failures = append(result.Failures, StrategyFailure{Strategy: strategy.Name(), Err: err})
			lastErr = err
			continue
		}

		result.Text = text
		result.Strategy = strategy.Name()
		result.Pages = pages
		span.SetAttributes(
			attribute.String("extraction.strategy", strategy.Name()),
			attribute.Int("extraction.pages", pages),
			attribute.Int("extraction.text_length", len(text)),
		)
		span.SetStatus(codes.Ok, "")
		return result, nil
	}

	err := fmt.Errorf("%w: %v", ErrNoTextFound, lastErr)
	tracing.RecordError(span, err, tracing.ErrorTypeParse)
	return result, err
}

type strategyOutput struct {
	text  string
	pages int
	err   error
}

// runStrategy 在超时内执行单个策略，把解析库内部的 panic 转成错误。
// 解析库不一定响应ctx，超时后不再等待其返回，后台goroutine结束后结果被丢弃
func (f *FallbackTextExtractor) runStrategy(ctx context.Context, strategy TextStrategy, data []byte, uri string) (string, int, error) {
	if len(data) == 0 {
		return "", 0, fmt.Errorf("empty document")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	done := make(chan strategyOutput, 1)
	go func() {
		out := strategyOutput{}
		defer func() {
			if r := recover(); r != nil {
				out = strategyOutput{err: fmt.Errorf("strategy %s panicked: %v", strategy.Name(), r)}
			}
			done <- out
		}()
		out.text, out.pages, out.err = strategy.ExtractText(ctx, data, uri)
	}()

	select {
	case out := <-done:
		return out.text, out.pages, out.err
	case <-ctx.Done():
		return "", 0, fmt.Errorf("strategy %s: %w", strategy.Name(), ctx.Err())
	}
}
