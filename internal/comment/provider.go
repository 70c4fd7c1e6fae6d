// Package comment 评论生成服务的边界: 根据帖子文本生成一条简短评论,并提供连通性测试。
// 批量关注引擎本身不调用它,由 CLI 的 comment 子命令和同级流程使用。
package comment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL OpenAI 兼容接口地址
const DefaultBaseURL = "https://api.openai.com/v1"

// maxInputRunes 帖子文本截断长度
const maxInputRunes = 2000

// Config 评论生成配置
type Config struct {
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"` // 为空时读取 OPENAI_API_KEY
	Prompt    string        `mapstructure:"prompt"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Model:     "gpt-4o-mini",
		Prompt:    "You write one short, friendly comment for a social media post. Match the language of the post. Reply with the comment text only, without quotes or hashtags.",
		MaxTokens: 80,
		Timeout:   30 * time.Second,
	}
}

// ErrNoAPIKey 未配置密钥
var ErrNoAPIKey = errors.New("未配置 API 密钥 (comment.api_key 或 OPENAI_API_KEY)")

// TestResult 连通性测试结果
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Provider 评论生成接口
type Provider interface {
	Generate(ctx context.Context, text string) (string, error)
	Test(ctx context.Context) TestResult
}

// OpenAIProvider 基于 OpenAI 兼容接口的实现
type OpenAIProvider struct {
	cfg    Config
	client openai.Client
}

// NewOpenAIProvider 创建评论生成器,未指定的字段使用默认值
func NewOpenAIProvider(cfg Config, opts ...option.RequestOption) (*OpenAIProvider, error) {
	def := DefaultConfig()
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Prompt == "" {
		cfg.Prompt = def.Prompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/") + "/"),
		option.WithRequestTimeout(cfg.Timeout),
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: openai.NewClient(append(base, opts...)...),
	}, nil
}

// Model 当前使用的模型
func (p *OpenAIProvider) Model() string {
	return p.cfg.Model
}

// Generate 根据帖子文本生成评论
func (p *OpenAIProvider) Generate(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("帖子文本为空")
	}
	if r := []rune(text); len(r) > maxInputRunes {
		text = string(r[:maxInputRunes])
	}
	return p.complete(ctx, p.cfg.Prompt, text)
}

// Test 发送一个最小请求检查密钥、地址和模型是否可用
func (p *OpenAIProvider) Test(ctx context.Context) TestResult {
	start := time.Now()
	reply, err := p.complete(ctx, "Reply with the single word: ok", "ping")
	if err != nil {
		return TestResult{Message: fmt.Sprintf("连接失败: %v", err)}
	}
	return TestResult{
		Success: true,
		Message: fmt.Sprintf("模型 %s 响应正常 (%s): %s", p.cfg.Model, time.Since(start).Round(time.Millisecond), reply),
	}
}

func (p *OpenAIProvider) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens: openai.Int(int64(p.cfg.MaxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("请求评论生成失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("响应中没有候选结果")
	}

	out := cleanReply(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("生成的评论为空")
	}
	log.Debug().
		Str("model", p.cfg.Model).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Msg("评论生成完成")
	return out, nil
}

// quotePairs 模型常在回复外加的引号
var quotePairs = [][2]string{{`"`, `"`}, {"'", "'"}, {"“", "”"}, {"«", "»"}}

// cleanReply 去掉首尾引号
func cleanReply(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range quotePairs {
		if len(s) > len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			return strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
		}
	}
	return s
}
