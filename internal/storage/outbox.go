package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"resume-scanner/internal/storage/models"
)

// EventTypeResumePersisted 终态事件类型
const EventTypeResumePersisted = "resume.persisted"

// OutboxEnqueuer 发件箱写入
type OutboxEnqueuer interface {
	EnqueueOutbox(ctx context.Context, msg *models.OutboxMessage) error
}

var _ OutboxEnqueuer = (*MySQL)(nil)

// OutboxPublisher 把终态事件写入发件箱而不是直接发到RabbitMQ，由 outbox.MessageRelay 异步投递
type OutboxPublisher struct {
	store      OutboxEnqueuer
	exchange   string
	routingKey string
}

var _ EventPublisher = (*OutboxPublisher)(nil)

// NewOutboxPublisher 创建发件箱事件发布器
func NewOutboxPublisher(store OutboxEnqueuer, exchange, routingKey string) *OutboxPublisher {
	if routingKey == "" {
		routingKey = EventTypeResumePersisted
	}
	return &OutboxPublisher{store: store, exchange: exchange, routingKey: routingKey}
}

// PublishPersisted 序列化事件并写入发件箱
func (p *OutboxPublisher) PublishPersisted(ctx context.Context, event *ResumePersistedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("JSON序列化失败: %w", err)
	}
	return p.store.EnqueueOutbox(ctx, &models.OutboxMessage{
		AggregateID:      event.RunID,
		EventType:        EventTypeResumePersisted,
		Payload:          string(payload),
		TargetExchange:   p.exchange,
		TargetRoutingKey: p.routingKey,
		Status:           models.OutboxStatusPending,
	})
}
