package storage

import (
	"context"
	"errors"
	"strings"

	"resume-scanner/internal/constants"
	"resume-scanner/internal/types"
)

// ErrSinkUnavailable 持久化目标不可用（读写失败、向量库不可达等）
var ErrSinkUnavailable = errors.New("persistence sink unavailable")

// PersistResult 一次持久化的结果
type PersistResult struct {
	Outcome types.PersistOutcome
	// Key 派生key，仅 indexed 模式有值
	Key string
	// Location 归档文件路径或集合名
	Location string
	// Recovered 归档文件损坏并被当作空数组重建
	Recovered bool
	// Count 写入后归档中的记录总数，仅 flat 模式有值
	Count int
}

// PersistenceSink 结构化记录的持久化目标
type PersistenceSink interface {
	Name() string
	// Persist 持久化一条记录。raw 为模型原始输出，部分实现会用它做向量化文本。
	Persist(ctx context.Context, record types.StructuredRecord, raw string) (*PersistResult, error)
}

// DeriveKey 由记录的 name 字段派生去重key：小写并把空格替换为下划线。
// 缺少 name 时使用 "Unknown"。
func DeriveKey(record types.StructuredRecord) string {
	name, ok := record.Name()
	if !ok {
		name = constants.UnknownCandidateName
	}
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
