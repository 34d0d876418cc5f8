package types

import "time"

// StructuredRecord 模型抽取出的简历结构化数据，字段不固定
// 常见字段: name, contact, skills, education, projects, certifications, experience
type StructuredRecord map[string]interface{}

// Name 返回 name 字段（仅当其为非空字符串时）
func (r StructuredRecord) Name() (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r["name"].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// RawDocument 一次上传的原始PDF
type RawDocument struct {
	Filename   string
	Data       []byte
	UploadedAt time.Time
}

// PersistOutcome 持久化结果类型
type PersistOutcome string

const (
	// OutcomeAppended 已追加到归档文件
	OutcomeAppended PersistOutcome = "appended"
	// OutcomeInserted 已写入向量集合
	OutcomeInserted PersistOutcome = "inserted"
	// OutcomeSkipped 派生key已存在，未写入
	OutcomeSkipped PersistOutcome = "skipped"
)

// SimilarResume 相似度查询结果
type SimilarResume struct {
	Key      string  `json:"key"`
	Name     string  `json:"name"`
	Score    float32 `json:"score"`
	Document string  `json:"document"`
}
