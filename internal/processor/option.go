package processor

import (
	"log"
	"time"

	"resume-scanner/internal/storage"
)

// PipelineOption 流水线选项函数类型
type PipelineOption func(*Pipeline)

// WithStager 设置原始上传暂存，默认使用系统临时目录
func WithStager(stager storage.Stager) PipelineOption {
	return func(p *Pipeline) {
		if stager != nil {
			p.stager = stager
		}
	}
}

// WithRunAuditor 终态时写入运行审计
func WithRunAuditor(auditor storage.RunAuditor) PipelineOption {
	return func(p *Pipeline) {
		p.auditor = auditor
	}
}

// WithEventPublisher 终态时发布事件
func WithEventPublisher(publisher storage.EventPublisher) PipelineOption {
	return func(p *Pipeline) {
		p.publisher = publisher
	}
}

// WithReporter 状态产生时的回调
func WithReporter(reporter Reporter) PipelineOption {
	return func(p *Pipeline) {
		p.reporter = reporter
	}
}

// WithPipelineLogger 设置日志记录器
func WithPipelineLogger(logger *log.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHookTimeout 设置终态钩子（审计、事件）的超时
func WithHookTimeout(timeout time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if timeout > 0 {
			p.hookTimeout = timeout
		}
	}
}

// WithClock 替换时间来源，测试使用
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}
