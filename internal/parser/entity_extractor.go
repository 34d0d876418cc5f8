package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"resume-scanner/internal/tracing"
)

const (
	// EntitySystemPrompt 约束模型只输出JSON
	EntitySystemPrompt = "You are an AI that extracts structured data from resumes. Output should be in JSON format only. Exclude descriptions and work done in job. Do not give anything else as output."

	// EntityUserPromptPrefix 用户指令，后接简历全文
	EntityUserPromptPrefix = "Extract key information (like name, contact, skills, education, projects, certifications, and experience) from the following resume:\n"

	defaultEntityTimeout = 60 * time.Second
)

var (
	// ErrModelUnavailable 模型在超时内没有返回可用内容
	ErrModelUnavailable = errors.New("language model unavailable")
	// ErrModelTransport 调用模型时发生传输或服务端错误
	ErrModelTransport = errors.New("language model transport error")
)

// LLMEntityExtractor 调用语言模型把简历文本转为JSON文本
type LLMEntityExtractor struct {
	llm     model.BaseChatModel
	timeout time.Duration
	logger  *log.Logger
}

// EntityExtractorOption 配置选项
type EntityExtractorOption func(*LLMEntityExtractor)

// WithEntityTimeout 设置单次模型调用的超时
func WithEntityTimeout(timeout time.Duration) EntityExtractorOption {
	return func(e *LLMEntityExtractor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithEntityLogger 配置自定义日志记录器
func WithEntityLogger(logger *log.Logger) EntityExtractorOption {
	return func(e *LLMEntityExtractor) {
		e.logger = logger
	}
}

// NewLLMEntityExtractor 创建实体抽取器
func NewLLMEntityExtractor(llm model.BaseChatModel, options ...EntityExtractorOption) (*LLMEntityExtractor, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm 不能为空")
	}
	e := &LLMEntityExtractor{
		llm:     llm,
		timeout: defaultEntityTimeout,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(e)
	}
	return e, nil
}

// BuildEntityMessages 构造固定的 system + user 两段提示
func BuildEntityMessages(resumeText string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(EntitySystemPrompt),
		schema.UserMessage(EntityUserPromptPrefix + resumeText),
	}
}

// Extract 单次同步调用模型，不重试。超时或空响应返回 ErrModelUnavailable，
// 其他错误返回 ErrModelTransport。
func (e *LLMEntityExtractor) Extract(ctx context.Context, resumeText string) (string, error) {
	ctx, span := parserTracer.Start(ctx, "EntityExtractor.Extract")
	defer span.End()
	span.SetAttributes(
		attribute.Int("resume.text_length", len(resumeText)),
		attribute.String("llm.timeout", e.timeout.String()),
	)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	startTime := time.Now()
	msg, err := e.llm.Generate(callCtx, BuildEntityMessages(resumeText))
	duration := time.Since(startTime)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			wrapped := fmt.Errorf("%w: no response within %s: %v", ErrModelUnavailable, e.timeout, err)
			tracing.RecordError(span, wrapped, tracing.ErrorTypeTimeout)
			e.logger.Printf("模型调用超时 (用时 %.2f秒): %v", duration.Seconds(), err)
			return "", wrapped
		}
		wrapped := fmt.Errorf("%w: %v", ErrModelTransport, err)
		tracing.RecordError(span, wrapped, tracing.ErrorTypeLLM)
		e.logger.Printf("模型调用失败 (用时 %.2f秒): %v", duration.Seconds(), err)
		return "", wrapped
	}

	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		err := fmt.Errorf("%w: empty response", ErrModelUnavailable)
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return "", err
	}

	span.SetAttributes(attribute.Int("llm.response_length", len(msg.Content)))
	span.SetStatus(codes.Ok, "")
	e.logger.Printf("模型调用完成: 响应 %d 个字符 (用时 %.2f秒)", len(msg.Content), duration.Seconds())
	return msg.Content, nil
}
