package parser

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	openai "github.com/sashabaranov/go-openai"

	"resume-scanner/internal/config"
)

// OpenAIEmbedder 通过 OpenAI 兼容接口生成向量，实现 eino embedding.Embedder 接口
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	logger     *log.Logger
}

// EmbedderOption 配置选项
type EmbedderOption func(*OpenAIEmbedder)

// WithEmbedderLogger 配置自定义日志记录器
func WithEmbedderLogger(logger *log.Logger) EmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.logger = logger
	}
}

var _ embedding.Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder 创建向量化客户端
func NewOpenAIEmbedder(cfg config.EmbeddingConfig, options ...EmbedderOption) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("embedding API密钥不能为空")
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultEmbeddingModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	e := &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		dimensions: cfg.Dimensions,
		logger:     log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(e)
	}
	return e, nil
}

// Dimensions 返回配置的向量维度
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// EmbedStrings 将文本转换为向量
func (e *OpenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := embedding.GetCommonOptions(&embedding.Options{}, opts...)
	effectiveModel := e.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(effectiveModel),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("调用embedding接口失败: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding返回数量(%d)与输入数量(%d)不一致", len(resp.Data), len(texts))
	}

	vectors := make([][]float64, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embedding返回了越界的索引 %d", item.Index)
		}
		vec := make([]float64, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float64(v)
		}
		vectors[item.Index] = vec
	}

	e.logger.Printf("生成 %d 个向量, 模型: %s, 维度: %d", len(vectors), effectiveModel, len(vectors[0]))
	return vectors, nil
}
