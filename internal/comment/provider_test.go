package comment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// fakeCompletions 返回固定回复的 chat/completions 接口
func fakeCompletions(t *testing.T, reply string, status int) (*httptest.Server, func() []chatRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []chatRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   req.Model,
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]interface{}{"role": "assistant", "content": reply},
			}},
			"usage": map[string]interface{}{"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []chatRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]chatRequest(nil), seen...)
	}
}

func newTestProvider(t *testing.T, url string) *OpenAIProvider {
	t.Helper()
	p, err := NewOpenAIProvider(Config{BaseURL: url, APIKey: "test-key", Model: "test-model"}, option.WithMaxRetries(0))
	require.NoError(t, err)
	return p
}

func TestGenerate(t *testing.T) {
	srv, seen := fakeCompletions(t, `  "Great shot!"  `, http.StatusOK)
	p := newTestProvider(t, srv.URL)

	got, err := p.Generate(context.Background(), "Sunset over the bay")
	require.NoError(t, err)
	assert.Equal(t, "Great shot!", got)

	reqs := seen()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, DefaultConfig().MaxTokens, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, DefaultConfig().Prompt, req.Messages[0].Content)
	assert.Equal(t, "Sunset over the bay", req.Messages[1].Content)
}

func TestGenerate_EmptyText(t *testing.T) {
	srv, seen := fakeCompletions(t, "unused", http.StatusOK)
	p := newTestProvider(t, srv.URL)

	_, err := p.Generate(context.Background(), "   ")
	assert.Error(t, err)
	assert.Empty(t, seen())
}

func TestTest(t *testing.T) {
	srv, _ := fakeCompletions(t, "ok", http.StatusOK)
	res := newTestProvider(t, srv.URL).Test(context.Background())
	assert.True(t, res.Success, res.Message)
	assert.Contains(t, res.Message, "test-model")

	bad, _ := fakeCompletions(t, "", http.StatusUnauthorized)
	res = newTestProvider(t, bad.URL).Test(context.Background())
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "连接失败")
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAIProvider(Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	t.Setenv("OPENAI_API_KEY", "env-key")
	p, err := NewOpenAIProvider(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Model, p.Model())
}

func TestCleanReply(t *testing.T) {
	tests := []struct{ in, want string }{
		{`"Nice!"`, "Nice!"},
		{"«Класс»", "Класс"},
		{"“Love it”", "Love it"},
		{"plain", "plain"},
		{`"`, `"`},
		{"  spaced  ", "spaced"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanReply(tt.in), tt.in)
	}
}
