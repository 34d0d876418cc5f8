package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrExtractionFailure    = errors.New("提取简历文本失败")
	ErrModelFailure         = errors.New("调用语言模型失败")
	ErrNormalizationFailure = errors.New("模型输出格式错误")
	ErrPersistenceFailure   = errors.New("持久化失败")
	ErrConfigurationFailure = errors.New("配置错误")
)

// ErrorKind 错误的细分类型
type ErrorKind string

const (
	KindNoTextFound       ErrorKind = "NoTextFound"
	KindUnavailable       ErrorKind = "Unavailable"
	KindTransport         ErrorKind = "Transport"
	KindMalformedOutput   ErrorKind = "MalformedOutput"
	KindIOError           ErrorKind = "IOError"
	KindMissingCredential ErrorKind = "MissingCredential"
)

// ScanError 包含详细错误信息的自定义错误
type ScanError struct {
	RunID   string
	Op      string
	Kind    ErrorKind
	BaseErr error
	Detail  string
	Cause   error
}

func (e *ScanError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 类型:%s, RunID:%s): %s", e.BaseErr, e.Op, e.Kind, e.RunID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 类型:%s, RunID:%s)", e.BaseErr, e.Op, e.Kind, e.RunID)
}

func (e *ScanError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.BaseErr, e.Cause}
	}
	return []error{e.BaseErr}
}

// 错误构造函数

func NewExtractionError(runID string, cause error) error {
	return &ScanError{
		RunID:   runID,
		Op:      "extract",
		Kind:    KindNoTextFound,
		BaseErr: ErrExtractionFailure,
		Detail:  errDetail(cause),
		Cause:   cause,
	}
}

func NewModelError(runID string, kind ErrorKind, cause error) error {
	return &ScanError{
		RunID:   runID,
		Op:      "model",
		Kind:    kind,
		BaseErr: ErrModelFailure,
		Detail:  errDetail(cause),
		Cause:   cause,
	}
}

func NewNormalizationError(runID string, cause error) error {
	return &ScanError{
		RunID:   runID,
		Op:      "normalize",
		Kind:    KindMalformedOutput,
		BaseErr: ErrNormalizationFailure,
		Detail:  errDetail(cause),
		Cause:   cause,
	}
}

func NewPersistenceError(runID string, cause error) error {
	return &ScanError{
		RunID:   runID,
		Op:      "persist",
		Kind:    KindIOError,
		BaseErr: ErrPersistenceFailure,
		Detail:  errDetail(cause),
		Cause:   cause,
	}
}

// NewConfigurationError 启动阶段的致命配置错误
func NewConfigurationError(cause error) error {
	return &ScanError{
		Op:      "configure",
		Kind:    KindMissingCredential,
		BaseErr: ErrConfigurationFailure,
		Detail:  errDetail(cause),
		Cause:   cause,
	}
}

// KindOf 返回错误的细分类型，非 ScanError 返回空串
func KindOf(err error) ErrorKind {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
