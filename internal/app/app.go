// Package app 按配置组装扫描流水线及其依赖，供 HTTP 服务和命令行工具共用。
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cloudwego/eino/components/model"

	"resume-scanner/internal/config"
	"resume-scanner/internal/logger"
	"resume-scanner/internal/outbox"
	"resume-scanner/internal/parser"
	"resume-scanner/internal/processor"
	"resume-scanner/internal/storage"
	"resume-scanner/pkg/agent"
	"resume-scanner/pkg/ratelimit"
)

// App 组装完成的运行时组件
type App struct {
	Config   *config.Config
	Storage  *storage.Storage
	Pipeline *processor.Pipeline

	// 只有与 sink.mode 对应的一个非空
	FlatSink    *storage.FlatFileSink
	IndexedSink *storage.IndexedStoreSink

	relay *outbox.MessageRelay
}

// Option 组装选项
type Option func(*options)

type options struct {
	reporter processor.Reporter
}

// WithReporter 把状态回调透传给流水线
func WithReporter(reporter processor.Reporter) Option {
	return func(o *options) {
		o.reporter = reporter
	}
}

// componentLogger debug 级别时写入全局 zerolog，否则丢弃
func componentLogger(cfg *config.Config, prefix string) *log.Logger {
	if cfg.Logger.Level == "debug" {
		return logger.Std(prefix)
	}
	return log.New(io.Discard, "", 0)
}

// New 按配置创建存储、提取器、模型客户端、持久化目标和流水线
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}
	a := &App{Config: cfg, Storage: storageManager}

	extractor, err := buildTextExtractor(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	chatModel, err := agent.NewOpenAIChatModel(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL,
		agent.WithTemperature(cfg.LLM.Temperature),
		agent.WithMaxTokens(cfg.LLM.MaxTokens),
		agent.WithChatLogger(componentLogger(cfg, "[ChatModel] ")),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("初始化语言模型失败: %w", err)
	}
	var llm model.BaseChatModel = chatModel
	if cfg.LLM.QPM > 0 {
		llm = ratelimit.NewRateLimitedChatModel(chatModel, cfg.LLM.QPM,
			ratelimit.WithBurst(cfg.LLM.Burst),
			ratelimit.WithLogger(componentLogger(cfg, "[RateLimit] ")))
	}
	entities, err := parser.NewLLMEntityExtractor(llm,
		parser.WithEntityTimeout(cfg.LLMTimeout()),
		parser.WithEntityLogger(componentLogger(cfg, "[EntityExtractor] ")),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	var sink storage.PersistenceSink
	switch cfg.Sink.Mode {
	case config.SinkModeIndexed:
		embedder, err := parser.NewOpenAIEmbedder(cfg.Embedding,
			parser.WithEmbedderLogger(componentLogger(cfg, "[Embedder] ")))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("初始化向量化模型失败: %w", err)
		}
		indexedOpts := []storage.IndexedOption{
			storage.WithCollectionName(cfg.Qdrant.Collection),
			storage.WithDefaultSearchLimit(cfg.Qdrant.DefaultSearchLimit),
			storage.WithIndexedLogger(componentLogger(cfg, "[IndexedSink] ")),
		}
		if storageManager.Redis != nil {
			indexedOpts = append(indexedOpts, storage.WithKeyClaimer(storageManager.Redis))
		}
		a.IndexedSink, err = storage.NewIndexedStoreSink(storageManager.Qdrant, embedder, indexedOpts...)
		if err != nil {
			a.Close()
			return nil, err
		}
		sink = a.IndexedSink
	default:
		a.FlatSink = storage.NewFlatFileSink(cfg.Sink.ArchivePath,
			storage.WithFlatFileLogger(logger.Std("[FlatFileSink] ")))
		sink = a.FlatSink
	}

	pipelineOpts := []processor.PipelineOption{
		processor.WithStager(storageManager.Stager),
		processor.WithPipelineLogger(logger.Std("[Pipeline] ")),
		processor.WithReporter(o.reporter),
	}
	if storageManager.MySQL != nil {
		pipelineOpts = append(pipelineOpts, processor.WithRunAuditor(storageManager.MySQL))
	}
	switch {
	case storageManager.RabbitMQ != nil && storageManager.MySQL != nil && cfg.RabbitMQ.UseOutbox:
		a.relay = outbox.NewMessageRelay(storageManager.MySQL, storageManager.RabbitMQ,
			outbox.WithPollingInterval(time.Duration(cfg.RabbitMQ.OutboxPollSeconds)*time.Second),
			outbox.WithLogger(logger.Std("[Outbox] ")))
		a.relay.Start(ctx)
		pipelineOpts = append(pipelineOpts, processor.WithEventPublisher(
			storage.NewOutboxPublisher(storageManager.MySQL, cfg.RabbitMQ.ResumeExchange, cfg.RabbitMQ.PersistedRoutingKey)))
	case storageManager.RabbitMQ != nil:
		pipelineOpts = append(pipelineOpts, processor.WithEventPublisher(storageManager.RabbitMQ))
	}

	a.Pipeline, err = processor.NewPipeline(extractor, entities, sink, pipelineOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info().
		Str("sink", sink.Name()).
		Str("model", chatModel.ModelName()).
		Msg("扫描流水线初始化成功")
	return a, nil
}

// buildTextExtractor eino 为首选策略，ledongthuc/pdf 为回退，配置了 Tika 时作为第三策略
func buildTextExtractor(ctx context.Context, cfg *config.Config) (*parser.FallbackTextExtractor, error) {
	einoExtractor, err := parser.NewEinoPDFTextExtractor(ctx,
		parser.WithEinoLogger(componentLogger(cfg, "[EinoPDF] ")))
	if err != nil {
		return nil, fmt.Errorf("创建Eino PDF提取器失败: %w", err)
	}
	strategies := []parser.TextStrategy{
		einoExtractor,
		parser.NewPlainPDFTextExtractor(parser.WithPlainLogger(componentLogger(cfg, "[PlainPDF] "))),
	}
	if cfg.Tika.ServerURL != "" {
		strategies = append(strategies, parser.NewTikaPDFExtractor(cfg.Tika.ServerURL,
			parser.WithTimeout(time.Duration(cfg.Tika.Timeout)*time.Second),
			parser.WithTikaLogger(componentLogger(cfg, "[TikaPDF] ")),
		))
	}
	return parser.NewFallbackTextExtractor(strategies,
		parser.WithFallbackLogger(logger.Std("[TextExtractor] ")))
}

// Close 停止发件箱中继并释放存储连接
func (a *App) Close() {
	if a.relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.relay.Stop(ctx)
		cancel()
	}
	if a.Storage != nil {
		a.Storage.Close()
	}
}
