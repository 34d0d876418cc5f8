package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-scanner/pkg/agent"
)

func TestTokenBucket_Refill(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tb := NewTokenBucket(60, 2)
	tb.now = func() time.Time { return now }
	tb.last = now

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "容量用尽后应拒绝")

	now = now.Add(time.Second)
	assert.True(t, tb.Allow(), "60 qpm 每秒补充一个令牌")
	assert.False(t, tb.Allow())

	now = now.Add(time.Minute)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "补充不超过容量")
}

func TestTokenBucket_DefaultCapacity(t *testing.T) {
	assert.Equal(t, 15.0, NewTokenBucket(30, 0).capacity)
	assert.Equal(t, 1.0, NewTokenBucket(1, 0).capacity)
	assert.Equal(t, 1.0, NewTokenBucket(0, 0).capacity)
}

func TestTokenBucket_WaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimitedChatModel_SingleCall(t *testing.T) {
	mock := agent.NewMockChatClient(`{"name":"Ada"}`, nil)
	limited := NewRateLimitedChatModel(mock, 60, WithBurst(1))

	msg, err := limited.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Ada"}`, msg.Content)
	assert.Equal(t, 1, mock.CallCount())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.Generate(ctx, []*schema.Message{schema.UserMessage("again")})
	assert.ErrorIs(t, err, context.DeadlineExceeded, "令牌不足且超时时不调用模型")
	assert.Equal(t, 1, mock.CallCount())
}
