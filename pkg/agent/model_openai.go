package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultGroqBaseURL Groq 的 OpenAI 兼容接口
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	defaultModelName   = "llama-3.3-70b-versatile"
)

// OpenAIChatModel 实现 eino model.BaseChatModel，
// 通过 OpenAI 兼容的 chat completions 接口（Groq、OpenAI 等）调用模型。
type OpenAIChatModel struct {
	client      *openai.Client
	modelName   string
	temperature float32
	maxTokens   int
	logger      *log.Logger
}

// ChatModelOption 配置选项
type ChatModelOption func(*OpenAIChatModel)

// WithTemperature 设置采样温度
func WithTemperature(t float32) ChatModelOption {
	return func(m *OpenAIChatModel) {
		m.temperature = t
	}
}

// WithMaxTokens 设置最大输出token数
func WithMaxTokens(n int) ChatModelOption {
	return func(m *OpenAIChatModel) {
		m.maxTokens = n
	}
}

// WithChatLogger 配置自定义日志记录器
func WithChatLogger(logger *log.Logger) ChatModelOption {
	return func(m *OpenAIChatModel) {
		m.logger = logger
	}
}

var _ model.BaseChatModel = (*OpenAIChatModel)(nil)

// NewOpenAIChatModel 创建一个新的 OpenAIChatModel 实例
func NewOpenAIChatModel(apiKey, modelName, baseURL string, options ...ChatModelOption) (*OpenAIChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	mn := modelName
	if strings.TrimSpace(mn) == "" {
		mn = defaultModelName
	}
	url := baseURL
	if strings.TrimSpace(url) == "" {
		url = DefaultGroqBaseURL
	}

	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = strings.TrimRight(url, "/")

	m := &OpenAIChatModel{
		client:    openai.NewClientWithConfig(clientCfg),
		modelName: mn,
		logger:    log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(m)
	}
	m.logger.Printf("使用 OpenAI 兼容 LLM 客户端，API URL: %s, 模型: %s", clientCfg.BaseURL, mn)
	return m, nil
}

// ModelName 返回当前模型名
func (m *OpenAIChatModel) ModelName() string {
	return m.modelName
}

// Generate 实现 model.BaseChatModel 接口，单次非流式调用
func (m *OpenAIChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Model:       &m.modelName,
		Temperature: &m.temperature,
		MaxTokens:   &m.maxTokens,
	}, opts...)

	req := openai.ChatCompletionRequest{
		Model:    *options.Model,
		Messages: toOpenAIMessages(messages),
	}
	if options.Temperature != nil {
		req.Temperature = *options.Temperature
	}
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		req.MaxTokens = *options.MaxTokens
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion 请求失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项 (id=%s)", resp.ID)
	}

	choice := resp.Choices[0].Message
	m.logger.Printf("收到响应: 模型=%s, 完成原因=%s, 内容长度=%d, tokens=%d",
		resp.Model, resp.Choices[0].FinishReason, len(choice.Content), resp.Usage.TotalTokens)

	role := schema.RoleType(choice.Role)
	if role == "" {
		role = schema.Assistant
	}
	return &schema.Message{
		Role:    role,
		Content: choice.Content,
	}, nil
}

// Stream 实现 model.BaseChatModel 接口，流式输出不支持
func (m *OpenAIChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("OpenAIChatModel 的 Stream 方法未实现")
}

func toOpenAIMessages(messages []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		var role string
		switch msg.Role {
		case schema.System:
			role = openai.ChatMessageRoleSystem
		case schema.Assistant:
			role = openai.ChatMessageRoleAssistant
		case schema.Tool:
			role = openai.ChatMessageRoleTool
		default:
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return out
}
