// Package outbox 轮询发件箱表，把终态事件投递到RabbitMQ。
package outbox

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-scanner/internal/storage"
	"resume-scanner/internal/storage/models"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	defaultMaxRetries      = 5
)

// Store 发件箱存储
type Store interface {
	ProcessOutbox(ctx context.Context, batchSize int, handle func(ctx context.Context, msg *models.OutboxMessage)) (int, error)
}

// Publisher 消息投递
type Publisher interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error
}

var (
	_ Store     = (*storage.MySQL)(nil)
	_ Publisher = (*storage.RabbitMQ)(nil)
)

// MessageRelay 轮询 outbox_messages 并发布 PENDING 消息
type MessageRelay struct {
	store           Store
	publisher       Publisher
	logger          *log.Logger
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	tracer          trace.Tracer
	now             func() time.Time

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Option 中继选项
type Option func(*MessageRelay)

// WithPollingInterval 设置轮询间隔
func WithPollingInterval(d time.Duration) Option {
	return func(r *MessageRelay) {
		if d > 0 {
			r.pollingInterval = d
		}
	}
}

// WithBatchSize 设置每轮处理的条数
func WithBatchSize(n int) Option {
	return func(r *MessageRelay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithMaxRetries 设置标记为 FAILED 前的最大发布失败次数
func WithMaxRetries(n int) Option {
	return func(r *MessageRelay) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *log.Logger) Option {
	return func(r *MessageRelay) {
		r.logger = logger
	}
}

// NewMessageRelay 创建消息中继
func NewMessageRelay(store Store, publisher Publisher, options ...Option) *MessageRelay {
	r := &MessageRelay{
		store:           store,
		publisher:       publisher,
		logger:          log.New(io.Discard, "", 0),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		maxRetries:      defaultMaxRetries,
		tracer:          otel.Tracer("resume-scanner/outbox"),
		now:             time.Now,
		done:            make(chan struct{}),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Start 在后台按间隔轮询，直到 Stop 或 ctx 结束
func (r *MessageRelay) Start(ctx context.Context) {
	r.logger.Println("发件箱中继启动")
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.pollingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.ProcessPending(ctx); err != nil {
					r.logger.Printf("处理发件箱消息失败: %v", err)
				}
			}
		}
	}()
}

// Stop 停止轮询并等待当前一轮结束，之后再投递一轮剩余消息
func (r *MessageRelay) Stop(ctx context.Context) {
	r.once.Do(func() {
		close(r.done)
		r.wg.Wait()
		if n, err := r.ProcessPending(ctx); err != nil {
			r.logger.Printf("停止前投递发件箱消息失败: %v", err)
		} else if n > 0 {
			r.logger.Printf("停止前投递了 %d 条发件箱消息", n)
		}
		r.logger.Println("发件箱中继已停止")
	})
}

// ProcessPending 处理一批待发布消息，返回本轮处理的条数
func (r *MessageRelay) ProcessPending(ctx context.Context) (int, error) {
	return r.store.ProcessOutbox(ctx, r.batchSize, r.publish)
}

func (r *MessageRelay) publish(ctx context.Context, msg *models.OutboxMessage) {
	ctx, span := r.tracer.Start(ctx, "outbox.Publish",
		trace.WithAttributes(
			attribute.Int64("outbox.message_id", int64(msg.ID)),
			attribute.String("outbox.aggregate_id", msg.AggregateID),
			attribute.String("messaging.destination", msg.TargetExchange),
		))
	defer span.End()

	err := r.publisher.PublishMessage(ctx, msg.TargetExchange, msg.TargetRoutingKey, []byte(msg.Payload), true)
	if err != nil {
		msg.RetryCount++
		msg.ErrorMessage = err.Error()
		if msg.RetryCount >= r.maxRetries {
			msg.Status = models.OutboxStatusFailed
		}
		span.RecordError(err)
		r.logger.Printf("发布消息 %d (run=%s) 失败，第 %d 次: %v", msg.ID, msg.AggregateID, msg.RetryCount, err)
		return
	}
	now := r.now()
	msg.Status = models.OutboxStatusSent
	msg.ProcessedAt = &now
	msg.ErrorMessage = ""
}
