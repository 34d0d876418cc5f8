package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"resume-scanner/internal/config"
	"resume-scanner/internal/constants"
	"resume-scanner/internal/tracing"
)

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("resume-scanner/storage/redis")

// KeyClaimer 派生key的跨进程占位
type KeyClaimer interface {
	// ClaimKey 尝试占位，返回 false 表示已被占用
	ClaimKey(ctx context.Context, collection, key string) (bool, error)
	// ReleaseKey 释放占位
	ReleaseKey(ctx context.Context, collection, key string) error
}

var _ KeyClaimer = (*Redis)(nil)

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{Client: client, config: cfg}, nil
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// claimExpiration 占位过期时间，未配置时使用默认值，占位不会永久存在
func (r *Redis) claimExpiration() time.Duration {
	if r.config == nil || r.config.ClaimTTLSeconds <= 0 {
		return config.DefaultClaimTTLSeconds * time.Second
	}
	return time.Duration(r.config.ClaimTTLSeconds) * time.Second
}

// FormatClaimKey 生成占位key: app:resume:key_claim:{collection}:{key}
func FormatClaimKey(collection, key string) string {
	return constants.KeyResumeClaim + collection + ":" + key
}

// ClaimKey 使用 SETNX 原子地占位派生key
func (r *Redis) ClaimKey(ctx context.Context, collection, key string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	redisKey := FormatClaimKey(collection, key)

	ctx, span := redisTracer.Start(ctx, "Redis.ClaimKey", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.operation", "SETNX"),
		attribute.String("redis.key", tracing.SafeAttributeValue("redis.key", redisKey, tracing.DefaultMaxLength)),
	)

	ok, err := r.Client.SetNX(ctx, redisKey, time.Now().UTC().Format(time.RFC3339), r.claimExpiration()).Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return false, fmt.Errorf("占位派生key失败: %w", err)
	}
	span.SetAttributes(attribute.Bool("redis.claimed", ok))
	span.SetStatus(codes.Ok, "")
	return ok, nil
}

// ReleaseKey 删除占位，写入结束后调用
func (r *Redis) ReleaseKey(ctx context.Context, collection, key string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	if err := r.Client.Del(ctx, FormatClaimKey(collection, key)).Err(); err != nil {
		return fmt.Errorf("释放派生key占位失败: %w", err)
	}
	return nil
}
