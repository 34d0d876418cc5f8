package processor

import "sync"

// Level 状态消息级别
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// 状态码
const (
	CodeUploaded                = "uploaded"
	CodePrimaryExtractionFailed = "primary-extraction-failed"
	CodeNoTextExtracted         = "no-text-extracted"
	CodeExtractionComplete      = "extraction-complete"
	CodeModelCallFailed         = "model-call-failed"
	CodeMalformedModelOutput    = "malformed-model-output"
	CodePersisted               = "persisted"
	CodeDuplicateSkipped        = "duplicate-skipped"
	CodePersistenceFailed       = "persistence-failed"
)

// Status 面向用户的一条进度消息
type Status struct {
	Level   Level  `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Reporter 在状态产生时接收通知，实现需要是并发安全的
type Reporter interface {
	Report(runID string, status Status)
}

// ReporterFunc 函数适配器
type ReporterFunc func(runID string, status Status)

func (f ReporterFunc) Report(runID string, status Status) {
	f(runID, status)
}

// statusLog 收集一次运行的状态并转发给 Reporter
type statusLog struct {
	mu       sync.Mutex
	runID    string
	statuses []Status
	reporter Reporter
}

func (l *statusLog) emit(level Level, code, message string) {
	st := Status{Level: level, Code: code, Message: message}
	l.mu.Lock()
	l.statuses = append(l.statuses, st)
	l.mu.Unlock()
	if l.reporter != nil {
		l.reporter.Report(l.runID, st)
	}
}

func (l *statusLog) snapshot() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Status, len(l.statuses))
	copy(out, l.statuses)
	return out
}
