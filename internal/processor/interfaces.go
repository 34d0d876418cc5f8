package processor

import (
	"context"

	"resume-scanner/internal/parser"
)

// TextExtractor PDF文本提取，实现为按顺序回退的策略链
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, uri string) (*parser.ExtractionResult, error)
}

// EntityExtractor 调用语言模型，返回模型原始输出
type EntityExtractor interface {
	Extract(ctx context.Context, resumeText string) (string, error)
}

var (
	_ TextExtractor   = (*parser.FallbackTextExtractor)(nil)
	_ EntityExtractor = (*parser.LLMEntityExtractor)(nil)
)
