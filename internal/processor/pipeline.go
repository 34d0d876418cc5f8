package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"resume-scanner/internal/parser"
	"resume-scanner/internal/storage"
	"resume-scanner/internal/storage/models"
	"resume-scanner/internal/tracing"
	"resume-scanner/internal/types"
)

var pipelineTracer = otel.Tracer("resume-scanner/processor")

const defaultHookTimeout = 5 * time.Second

// RunResult 一次扫描运行的结果，失败时同样返回
type RunResult struct {
	RunID     string                 `json:"run_id"`
	State     State                  `json:"state"`
	Record    types.StructuredRecord `json:"record,omitempty"`
	Outcome   types.PersistOutcome   `json:"outcome,omitempty"`
	Key       string                 `json:"key,omitempty"`
	Location  string                 `json:"location,omitempty"`
	Strategy  string                 `json:"extract_strategy,omitempty"`
	Recovered bool                   `json:"archive_recovered,omitempty"`
	Statuses  []Status               `json:"statuses"`
	Err       error                  `json:"-"`
}

// Pipeline 上传 -> 文本提取 -> 模型抽取 -> 规范化 -> 持久化
type Pipeline struct {
	extractor TextExtractor
	entities  EntityExtractor
	sink      storage.PersistenceSink

	stager    storage.Stager
	auditor   storage.RunAuditor
	publisher storage.EventPublisher
	reporter  Reporter

	logger      *log.Logger
	hookTimeout time.Duration
	now         func() time.Time
}

// NewPipeline 创建流水线
func NewPipeline(extractor TextExtractor, entities EntityExtractor, sink storage.PersistenceSink, options ...PipelineOption) (*Pipeline, error) {
	if extractor == nil {
		return nil, fmt.Errorf("文本提取器不能为空")
	}
	if entities == nil {
		return nil, fmt.Errorf("实体抽取器不能为空")
	}
	if sink == nil {
		return nil, fmt.Errorf("持久化目标不能为空")
	}
	p := &Pipeline{
		extractor:   extractor,
		entities:    entities,
		sink:        sink,
		stager:      storage.NewLocalStager(""),
		logger:      log.New(io.Discard, "", 0),
		hookTimeout: defaultHookTimeout,
		now:         time.Now,
	}
	for _, option := range options {
		option(p)
	}
	return p, nil
}

// SinkName 当前持久化目标
func (p *Pipeline) SinkName() string {
	return p.sink.Name()
}

// run 单次运行的可变状态
type run struct {
	result   *RunResult
	machine  *stateMachine
	statuses *statusLog
	span     trace.Span
}

func (r *run) advance(to State) {
	if err := r.machine.transition(to); err != nil {
		// 迁移表与流水线顺序不一致属于编程错误
		panic(err)
	}
	r.result.State = to
}

func (r *run) fail(err error) {
	r.advance(StateFailed)
	r.result.Err = err
	tracing.RecordError(r.span, err, errorTypeFor(err))
}

// Run 处理一份上传的PDF。返回的 error 与 RunResult.Err 相同。
func (p *Pipeline) Run(ctx context.Context, doc types.RawDocument) (*RunResult, error) {
	runID := uuid.NewString()
	ctx, span := pipelineTracer.Start(ctx, "Pipeline.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("scan.run_id", runID),
		attribute.String("scan.filename", tracing.SafeAttributeValue("filename", doc.Filename, tracing.DefaultMaxLength)),
		attribute.Int("scan.file_size", len(doc.Data)),
		attribute.String("scan.sink", p.sink.Name()),
	)

	startedAt := p.now()
	r := &run{
		result:   &RunResult{RunID: runID, State: StateIdle},
		machine:  newStateMachine(),
		statuses: &statusLog{runID: runID, reporter: p.reporter},
		span:     span,
	}

	r.advance(StateUploaded)
	uri := doc.Filename
	staged, err := p.stager.Stage(ctx, runID, doc)
	if err != nil {
		// 提取直接使用内存中的字节，暂存失败不影响后续步骤
		p.logger.Printf("[%s] 警告: 暂存上传文件失败: %v", runID, err)
	} else {
		uri = staged.URI
		defer func() {
			if cerr := p.stager.Cleanup(context.WithoutCancel(ctx), staged); cerr != nil {
				p.logger.Printf("[%s] 警告: 清理暂存文件失败: %v", runID, cerr)
			}
		}()
	}
	r.statuses.emit(LevelInfo, CodeUploaded, "File uploaded successfully!")

	defer func() {
		r.result.Statuses = r.statuses.snapshot()
		p.finish(ctx, doc, r.result, startedAt)
		if r.result.Err == nil {
			span.SetStatus(codes.Ok, "")
		}
	}()

	// 文本提取
	stageStart := time.Now()
	extraction, err := p.extractor.Extract(ctx, doc.Data, uri)
	StageDuration.WithLabelValues("extract").Observe(time.Since(stageStart).Seconds())
	if extraction != nil {
		for _, f := range extraction.Failures {
			ExtractionStrategyTotal.WithLabelValues(f.Strategy, "failed").Inc()
			r.statuses.emit(LevelWarning, CodePrimaryExtractionFailed,
				fmt.Sprintf("%s extraction failed or returned empty text: %v", f.Strategy, f.Err))
		}
	}
	if err != nil || extraction == nil || extraction.Text == "" {
		if err == nil {
			err = parser.ErrNoTextFound
		}
		r.statuses.emit(LevelError, CodeNoTextExtracted, "Error: No text extracted from the PDF. Check the file content.")
		r.fail(NewExtractionError(runID, err))
		return r.result, r.result.Err
	}
	ExtractionStrategyTotal.WithLabelValues(extraction.Strategy, "ok").Inc()
	r.result.Strategy = extraction.Strategy
	r.advance(StateTextExtracted)
	p.logger.Printf("[%s] 文本提取完成: 策略=%s, 页数=%d, 长度=%d", runID, extraction.Strategy, extraction.Pages, len(extraction.Text))

	// 模型抽取
	stageStart = time.Now()
	raw, err := p.entities.Extract(ctx, extraction.Text)
	StageDuration.WithLabelValues("model").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		kind := KindTransport
		if errors.Is(err, parser.ErrModelUnavailable) {
			kind = KindUnavailable
		}
		r.statuses.emit(LevelError, CodeModelCallFailed, fmt.Sprintf("Error calling language model: %v", err))
		r.fail(NewModelError(runID, kind, err))
		return r.result, r.result.Err
	}
	r.advance(StateModelQueried)

	// 规范化
	record, err := parser.NormalizeResponse(raw)
	if err != nil {
		span.SetAttributes(attribute.String("llm.raw_preview", tracing.TruncateString(raw, tracing.MaxResumeLength)))
		r.statuses.emit(LevelError, CodeMalformedModelOutput, fmt.Sprintf("Error decoding JSON: %v", err))
		r.fail(NewNormalizationError(runID, err))
		return r.result, r.result.Err
	}
	r.result.Record = record
	r.advance(StateNormalized)
	r.statuses.emit(LevelSuccess, CodeExtractionComplete, "Resume information extracted successfully!")

	// 持久化
	stageStart = time.Now()
	persisted, err := p.sink.Persist(ctx, record, raw)
	StageDuration.WithLabelValues("persist").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		PersistOutcomesTotal.WithLabelValues(p.sink.Name(), "error").Inc()
		r.statuses.emit(LevelError, CodePersistenceFailed, fmt.Sprintf("Error saving resume data: %v", err))
		r.fail(NewPersistenceError(runID, err))
		return r.result, r.result.Err
	}
	PersistOutcomesTotal.WithLabelValues(p.sink.Name(), string(persisted.Outcome)).Inc()
	r.result.Outcome = persisted.Outcome
	r.result.Key = persisted.Key
	r.result.Location = persisted.Location
	r.result.Recovered = persisted.Recovered
	if persisted.Recovered {
		p.logger.Printf("[%s] 警告: 归档文件 %s 已损坏并被重建", runID, persisted.Location)
	}
	r.advance(StatePersisted)

	if persisted.Outcome == types.OutcomeSkipped {
		r.statuses.emit(LevelWarning, CodeDuplicateSkipped,
			fmt.Sprintf("Resume for '%s' already exists. Skipping insert.", persisted.Key))
	} else {
		r.statuses.emit(LevelSuccess, CodePersisted, fmt.Sprintf("Resume data saved to %s", persisted.Location))
	}
	return r.result, nil
}

// finish 终态钩子：指标、运行审计、事件。钩子失败只记录日志。
func (p *Pipeline) finish(ctx context.Context, doc types.RawDocument, result *RunResult, startedAt time.Time) {
	finishedAt := p.now()
	kind := string(KindOf(result.Err))
	RunsTotal.WithLabelValues(string(result.State), kind).Inc()

	if p.auditor == nil && p.publisher == nil {
		return
	}
	hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.hookTimeout)
	defer cancel()

	if p.auditor != nil {
		statusesJSON, err := json.Marshal(result.Statuses)
		if err != nil {
			statusesJSON = []byte("[]")
		}
		row := &models.ScanRun{
			RunID:            result.RunID,
			OriginalFilename: doc.Filename,
			FileSize:         int64(len(doc.Data)),
			FinalState:       string(result.State),
			ErrorKind:        kind,
			ExtractStrategy:  result.Strategy,
			SinkMode:         p.sink.Name(),
			PersistOutcome:   string(result.Outcome),
			CandidateKey:     result.Key,
			StatusesJSON:     datatypes.JSON(statusesJSON),
			StartedAt:        startedAt,
			FinishedAt:       finishedAt,
		}
		if result.Err != nil {
			row.ErrorMessage = result.Err.Error()
		}
		if err := p.auditor.RecordScanRun(hookCtx, row); err != nil {
			p.logger.Printf("[%s] 警告: 写入运行审计失败: %v", result.RunID, err)
		}
	}

	if p.publisher != nil {
		event := &storage.ResumePersistedEvent{
			RunID:            result.RunID,
			OriginalFilename: doc.Filename,
			FinalState:       string(result.State),
			SinkMode:         p.sink.Name(),
			Outcome:          string(result.Outcome),
			CandidateKey:     result.Key,
			Location:         result.Location,
			ErrorKind:        kind,
			ExtractStrategy:  result.Strategy,
			FinishedAt:       finishedAt,
		}
		if err := p.publisher.PublishPersisted(hookCtx, event); err != nil {
			p.logger.Printf("[%s] 警告: 发布终态事件失败: %v", result.RunID, err)
		}
	}
}

func errorTypeFor(err error) tracing.ErrorType {
	switch {
	case errors.Is(err, ErrExtractionFailure):
		return tracing.ErrorTypeParse
	case errors.Is(err, ErrModelFailure):
		if KindOf(err) == KindUnavailable {
			return tracing.ErrorTypeTimeout
		}
		return tracing.ErrorTypeLLM
	case errors.Is(err, ErrNormalizationFailure):
		return tracing.ErrorTypeParse
	default:
		return tracing.ErrorTypeFile
	}
}
