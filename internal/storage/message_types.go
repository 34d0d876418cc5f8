package storage

import (
	"context"
	"time"
)

// ResumePersistedEvent 一次扫描到达终态后发布的事件
type ResumePersistedEvent struct {
	RunID            string `json:"run_id"`
	OriginalFilename string `json:"original_filename"`
	// FinalState Persisted 或 Failed
	FinalState string `json:"final_state"`
	SinkMode   string `json:"sink_mode,omitempty"`
	// Outcome appended / inserted / skipped
	Outcome string `json:"outcome,omitempty"`
	// CandidateKey 派生key，仅 indexed 模式
	CandidateKey    string    `json:"candidate_key,omitempty"`
	Location        string    `json:"location,omitempty"`
	ErrorKind       string    `json:"error_kind,omitempty"`
	ExtractStrategy string    `json:"extract_strategy,omitempty"`
	FinishedAt      time.Time `json:"finished_at"`
}

// EventPublisher 终态事件发布
type EventPublisher interface {
	PublishPersisted(ctx context.Context, event *ResumePersistedEvent) error
}

var _ EventPublisher = (*RabbitMQ)(nil)
