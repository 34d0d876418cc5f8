package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"resume-scanner/internal/config"
	"resume-scanner/internal/constants"
	"resume-scanner/internal/parser"
	"resume-scanner/internal/tracing"
	"resume-scanner/internal/types"
)

var indexedTracer = otel.Tracer("resume-scanner/storage/indexed")

// payload 字段
const (
	payloadDocument  = "document"
	payloadName      = "name"
	payloadResumeKey = "resume_key"
)

// IndexedStoreSink 按派生key去重，把记录及其向量写入向量集合
type IndexedStoreSink struct {
	vectors    VectorDatabase
	embedder   embedding.Embedder
	claimer    KeyClaimer
	collection string
	limit      int

	mu     sync.Mutex
	logger *log.Logger
}

// IndexedOption 配置选项
type IndexedOption func(*IndexedStoreSink)

// WithKeyClaimer 启用跨进程的派生key占位
func WithKeyClaimer(claimer KeyClaimer) IndexedOption {
	return func(s *IndexedStoreSink) {
		s.claimer = claimer
	}
}

// WithCollectionName 设置集合名，仅用于结果展示与占位key
func WithCollectionName(name string) IndexedOption {
	return func(s *IndexedStoreSink) {
		if name != "" {
			s.collection = name
		}
	}
}

// WithDefaultSearchLimit 设置 Query 的默认返回条数
func WithDefaultSearchLimit(limit int) IndexedOption {
	return func(s *IndexedStoreSink) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// WithIndexedLogger 配置自定义日志记录器
func WithIndexedLogger(logger *log.Logger) IndexedOption {
	return func(s *IndexedStoreSink) {
		s.logger = logger
	}
}

var _ PersistenceSink = (*IndexedStoreSink)(nil)

// NewIndexedStoreSink 创建向量集合sink
func NewIndexedStoreSink(vectors VectorDatabase, embedder embedding.Embedder, options ...IndexedOption) (*IndexedStoreSink, error) {
	if vectors == nil {
		return nil, fmt.Errorf("向量数据库不能为空")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder不能为空")
	}
	s := &IndexedStoreSink{
		vectors:    vectors,
		embedder:   embedder,
		collection: config.DefaultCollection,
		limit:      5,
		logger:     log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// Name sink名称
func (s *IndexedStoreSink) Name() string {
	return config.SinkModeIndexed
}

// Persist 优先使用模型原始输出重新规范化，原始输出为空时直接使用记录
func (s *IndexedStoreSink) Persist(ctx context.Context, record types.StructuredRecord, raw string) (*PersistResult, error) {
	if strings.TrimSpace(raw) != "" {
		return s.Upsert(ctx, raw)
	}
	return s.UpsertRecord(ctx, record)
}

// Upsert 规范化模型原始输出后按派生key写入
func (s *IndexedStoreSink) Upsert(ctx context.Context, rawResponse string) (*PersistResult, error) {
	record, err := parser.NormalizeResponse(rawResponse)
	if err != nil {
		return nil, err
	}
	return s.UpsertRecord(ctx, record)
}

// UpsertRecord 派生key已存在时跳过（不是错误），否则向量化并插入一个点
func (s *IndexedStoreSink) UpsertRecord(ctx context.Context, record types.StructuredRecord) (*PersistResult, error) {
	ctx, span := indexedTracer.Start(ctx, "IndexedStoreSink.Upsert")
	defer span.End()

	key := DeriveKey(record)
	pointID := PointID(key)
	span.SetAttributes(
		attribute.String("resume.key", tracing.MaskPII(key)),
		attribute.String("db.collection", s.collection),
	)

	// 查询与插入之间不能被同进程的其他请求插队
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.vectors.PointExists(ctx, pointID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("%w: 查询派生key失败: %v", ErrSinkUnavailable, err)
	}
	if exists {
		return s.skipped(span, key, "point_exists"), nil
	}

	if s.claimer != nil {
		claimed, err := s.claimer.ClaimKey(ctx, s.collection, key)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeRedis)
			return nil, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
		}
		if !claimed {
			return s.skipped(span, key, "claim_lost"), nil
		}
		// 占位只覆盖这次写入，写入结束后集合本身就是去重依据
		defer func() {
			if relErr := s.claimer.ReleaseKey(context.WithoutCancel(ctx), s.collection, key); relErr != nil {
				s.logger.Printf("警告: 释放派生key %s 占位失败: %v", key, relErr)
			}
		}()
	}

	if err := s.insert(ctx, pointID, key, record); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}

	span.SetAttributes(attribute.String("persist.outcome", string(types.OutcomeInserted)))
	span.SetStatus(codes.Ok, "")
	s.logger.Printf("已写入集合 %s: key=%s", s.collection, key)
	return &PersistResult{
		Outcome:  types.OutcomeInserted,
		Key:      key,
		Location: s.collection,
	}, nil
}

func (s *IndexedStoreSink) skipped(span trace.Span, key, reason string) *PersistResult {
	span.SetAttributes(
		attribute.String("persist.outcome", string(types.OutcomeSkipped)),
		attribute.String("persist.skip_reason", reason),
	)
	span.SetStatus(codes.Ok, "")
	s.logger.Printf("派生key %s 已存在于集合 %s (%s)，跳过写入", key, s.collection, reason)
	return &PersistResult{
		Outcome:  types.OutcomeSkipped,
		Key:      key,
		Location: s.collection,
	}
}

func (s *IndexedStoreSink) insert(ctx context.Context, pointID, key string, record types.StructuredRecord) error {
	document, err := parser.RenderRecord(record)
	if err != nil {
		return err
	}

	vectors, err := s.embedder.EmbedStrings(ctx, []string{document})
	if err != nil {
		return fmt.Errorf("向量化失败: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return errors.New("embedder返回了空向量")
	}

	name, ok := record.Name()
	if !ok {
		name = constants.UnknownCandidateName
	}
	payload := map[string]interface{}{
		payloadDocument:  document,
		payloadName:      name,
		payloadResumeKey: key,
	}
	return s.vectors.UpsertPoint(ctx, pointID, vectors[0], payload)
}

// Query 按文本相似度检索已入库的简历，limit<=0 时使用默认条数
func (s *IndexedStoreSink) Query(ctx context.Context, text string, limit int) ([]types.SimilarResume, error) {
	ctx, span := indexedTracer.Start(ctx, "IndexedStoreSink.Query")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("查询文本不能为空")
	}
	if limit <= 0 {
		limit = s.limit
	}
	span.SetAttributes(attribute.Int("search.limit", limit))

	vectors, err := s.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, fmt.Errorf("%w: 查询向量化失败: %v", ErrSinkUnavailable, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedder返回了 %d 个向量", ErrSinkUnavailable, len(vectors))
	}

	hits, err := s.vectors.Search(ctx, vectors[0], limit)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}

	results := make([]types.SimilarResume, 0, len(hits))
	for _, hit := range hits {
		item := types.SimilarResume{Score: hit.Score}
		if v, ok := hit.Payload[payloadResumeKey].(string); ok {
			item.Key = v
		}
		if v, ok := hit.Payload[payloadName].(string); ok {
			item.Name = v
		}
		if v, ok := hit.Payload[payloadDocument].(string); ok {
			item.Document = v
		}
		results = append(results, item)
	}

	span.SetAttributes(attribute.Int("search.results.count", len(results)))
	span.SetStatus(codes.Ok, "")
	return results, nil
}

// Count 集合中的记录数
func (s *IndexedStoreSink) Count(ctx context.Context) (int64, error) {
	return s.vectors.CountPoints(ctx)
}
