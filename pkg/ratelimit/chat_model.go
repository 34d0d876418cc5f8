package ratelimit

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// RateLimitedChatModel 在每次模型调用前等待令牌。只限速，不重试：
// 等待期间 ctx 到期时直接返回 ctx 错误，调用方的超时语义保持不变
type RateLimitedChatModel struct {
	inner   model.BaseChatModel
	limiter *TokenBucket
	logger  *log.Logger
}

// Option 限速代理选项
type Option func(*RateLimitedChatModel)

// WithBurst 设置桶容量
func WithBurst(burst int) Option {
	return func(m *RateLimitedChatModel) {
		if burst > 0 {
			m.limiter.mu.Lock()
			m.limiter.capacity = float64(burst)
			m.limiter.tokens = float64(burst)
			m.limiter.mu.Unlock()
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *log.Logger) Option {
	return func(m *RateLimitedChatModel) {
		m.logger = logger
	}
}

var _ model.BaseChatModel = (*RateLimitedChatModel)(nil)

// NewRateLimitedChatModel 按 qpm 包装模型
func NewRateLimitedChatModel(inner model.BaseChatModel, qpm int, options ...Option) *RateLimitedChatModel {
	m := &RateLimitedChatModel{
		inner:   inner,
		limiter: NewTokenBucket(qpm, 0),
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Generate 等待令牌后调用一次底层模型
func (m *RateLimitedChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if !m.limiter.Allow() {
		m.logger.Printf("模型调用达到限速，等待令牌")
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("等待模型调用令牌失败: %w", err)
		}
	}
	return m.inner.Generate(ctx, messages, opts...)
}

// Stream 等待令牌后调用一次底层模型的流式接口
func (m *RateLimitedChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("等待模型调用令牌失败: %w", err)
	}
	return m.inner.Stream(ctx, messages, opts...)
}
