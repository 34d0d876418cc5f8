package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"resume-scanner/internal/config"
	"resume-scanner/internal/parser"
	"resume-scanner/internal/tracing"
	"resume-scanner/internal/types"
)

var fileTracer = otel.Tracer("resume-scanner/storage/flatfile")

// ErrArchiveEmpty 归档文件不存在或没有任何记录
var ErrArchiveEmpty = errors.New("archive is empty")

// FlatFileSink 把记录追加到磁盘上的JSON数组文件。
// 每次追加都完整重写文件：先写临时文件再rename，读者不会看到半写状态。
type FlatFileSink struct {
	path   string
	mu     sync.Mutex
	logger *log.Logger
}

// FlatFileOption 配置选项
type FlatFileOption func(*FlatFileSink)

// WithFlatFileLogger 配置自定义日志记录器
func WithFlatFileLogger(logger *log.Logger) FlatFileOption {
	return func(s *FlatFileSink) {
		s.logger = logger
	}
}

var _ PersistenceSink = (*FlatFileSink)(nil)

// NewFlatFileSink 创建归档文件sink，path 为空时使用默认文件名
func NewFlatFileSink(path string, options ...FlatFileOption) *FlatFileSink {
	if path == "" {
		path = config.DefaultArchivePath
	}
	s := &FlatFileSink{
		path:   path,
		logger: log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Name sink名称
func (s *FlatFileSink) Name() string {
	return config.SinkModeFlat
}

// Path 归档文件路径
func (s *FlatFileSink) Path() string {
	return s.path
}

// Persist 追加记录
func (s *FlatFileSink) Persist(ctx context.Context, record types.StructuredRecord, raw string) (*PersistResult, error) {
	return s.Append(ctx, record)
}

// Append 读取现有数组，追加一条记录后整体写回（4空格缩进）。
// 文件内容无法解析为数组时按空数组处理，原内容另存为 .corrupt 备份，结果中 Recovered=true。
func (s *FlatFileSink) Append(ctx context.Context, record types.StructuredRecord) (*PersistResult, error) {
	_, span := fileTracer.Start(ctx, "FlatFileSink.Append")
	defer span.End()
	span.SetAttributes(attribute.String("archive.path", s.path))

	s.mu.Lock()
	defer s.mu.Unlock()

	records, recovered, err := s.load()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeFile)
		return nil, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	if recovered {
		backup := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().UnixNano())
		if err := s.backupCorrupt(backup); err != nil {
			s.logger.Printf("警告: 备份损坏的归档文件失败: %v", err)
		}
		s.logger.Printf("警告: 归档文件 %s 无法解析为JSON数组，已按空数组重建 (原内容备份于 %s)", s.path, backup)
		span.AddEvent("archive_recovered")
	}

	records = append(records, record)
	if err := s.write(records); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeFile)
		return nil, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}

	span.SetAttributes(
		attribute.Int("archive.records", len(records)),
		attribute.Bool("archive.recovered", recovered),
	)
	span.SetStatus(codes.Ok, "")
	s.logger.Printf("已追加记录到 %s，当前共 %d 条", s.path, len(records))
	return &PersistResult{
		Outcome:   types.OutcomeAppended,
		Location:  s.path,
		Recovered: recovered,
		Count:     len(records),
	}, nil
}

// Records 返回归档中的全部记录，文件不存在时返回空切片
func (s *FlatFileSink) Records(ctx context.Context) ([]types.StructuredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, recovered, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	if recovered {
		return nil, fmt.Errorf("%w: archive %s is not a JSON array", ErrSinkUnavailable, s.path)
	}
	return records, nil
}

// Latest 返回最近追加的一条非空记录
func (s *FlatFileSink) Latest(ctx context.Context) (types.StructuredRecord, error) {
	records, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}
	// 归档里的 null 元素不算记录
	for i := len(records) - 1; i >= 0; i-- {
		if records[i] != nil {
			return records[i], nil
		}
	}
	return nil, ErrArchiveEmpty
}

// load 读取归档。文件不存在返回空数组；内容损坏返回 recovered=true。
func (s *FlatFileSink) load() (records []types.StructuredRecord, recovered bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []types.StructuredRecord{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("读取归档文件失败: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []types.StructuredRecord{}, false, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil || parser.ExpectEOF(dec) != nil {
		return []types.StructuredRecord{}, true, nil
	}
	if records == nil {
		records = []types.StructuredRecord{}
	}
	return records, false, nil
}

func (s *FlatFileSink) backupCorrupt(backup string) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	return os.WriteFile(backup, data, 0o644)
}

// write 写临时文件后rename替换
func (s *FlatFileSink) write(records []types.StructuredRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("序列化归档失败: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建归档目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("替换归档文件失败: %w", err)
	}
	return nil
}
