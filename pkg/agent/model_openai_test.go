package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newChatServer(t *testing.T, status int, body string, captured *capturedRequest, auth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOpenAIChatModel(t *testing.T) {
	_, err := NewOpenAIChatModel("  ", "", "")
	assert.Error(t, err, "API key 为空时应报错")

	m, err := NewOpenAIChatModel("key", "", "")
	require.NoError(t, err)
	assert.Equal(t, defaultModelName, m.ModelName())
}

func TestOpenAIChatModel_Generate(t *testing.T) {
	var captured capturedRequest
	var auth string
	srv := newChatServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "llama-3.3-70b-versatile",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"name\":\"Ada\"}"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`, &captured, &auth)

	m, err := NewOpenAIChatModel("secret", "llama-3.3-70b-versatile", srv.URL+"/",
		WithTemperature(0.2), WithMaxTokens(512))
	require.NoError(t, err)

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("extract"),
		schema.UserMessage("resume text"),
	})
	require.NoError(t, err)
	assert.Equal(t, schema.Assistant, msg.Role)
	assert.Equal(t, `{"name":"Ada"}`, msg.Content)

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "llama-3.3-70b-versatile", captured.Model)
	assert.InDelta(t, 0.2, captured.Temperature, 1e-6)
	assert.Equal(t, 512, captured.MaxTokens)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, "resume text", captured.Messages[1].Content)
}

func TestOpenAIChatModel_GenerateOptionOverride(t *testing.T) {
	var captured capturedRequest
	srv := newChatServer(t, http.StatusOK,
		`{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`, &captured, nil)

	m, err := NewOpenAIChatModel("secret", "base-model", srv.URL)
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")}, model.WithModel("other-model"))
	require.NoError(t, err)
	assert.Equal(t, "other-model", captured.Model)
}

func TestOpenAIChatModel_GenerateErrors(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		srv := newChatServer(t, http.StatusTooManyRequests,
			`{"error":{"message":"rate limit reached","type":"requests"}}`, nil, nil)
		m, err := NewOpenAIChatModel("secret", "", srv.URL)
		require.NoError(t, err)

		_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limit reached")
	})

	t.Run("empty choices", func(t *testing.T) {
		srv := newChatServer(t, http.StatusOK, `{"id":"empty","choices":[]}`, nil, nil)
		m, err := NewOpenAIChatModel("secret", "", srv.URL)
		require.NoError(t, err)

		_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})
}

func TestOpenAIChatModel_StreamUnsupported(t *testing.T) {
	m, err := NewOpenAIChatModel("secret", "", "http://127.0.0.1:1")
	require.NoError(t, err)
	_, err = m.Stream(context.Background(), nil)
	assert.Error(t, err)
}

func TestToOpenAIMessages_SkipsNil(t *testing.T) {
	out := toOpenAIMessages([]*schema.Message{nil, schema.AssistantMessage("a", nil), {Role: schema.Tool, Content: "t"}})
	require.Len(t, out, 2)
	assert.Equal(t, "assistant", out[0].Role)
	assert.Equal(t, "tool", out[1].Role)
}
