package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"Trendline/backend/go/internal/config"
	"Trendline/backend/go/internal/metrics"
	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/pkg/circuitbreaker"
)

// LLM 定义了所有大型语言模型客户端必须实现的通用接口。
type LLM interface {
	GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error)
}

// SchemaCapable 由能够强制 JSON 输出结构的客户端实现。
type SchemaCapable interface {
	SupportsSchema() bool
}

// ErrEmptyResponse 表示模型返回了空文本。
var ErrEmptyResponse = errors.New("llm returned an empty response")

// NewClient 根据配置创建客户端，并套上超时、熔断和耗时统计。
func NewClient(ctx context.Context, cfg config.LLMConfig, cb config.CircuitBreakerConfig) (LLM, error) {
	var (
		base LLM
		err  error
	)
	switch cfg.Provider {
	case "openai":
		base, err = NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "ollama":
		base, err = NewOllama(cfg.Ollama.Model, cfg.Ollama.URL)
	case "gemini":
		base, err = NewGemini(ctx, cfg.Gemini.Model, cfg.Gemini.APIKey)
	case "fake":
		base = &Fake{}
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	opts := []Option{WithTimeout(config.Duration(cfg.Timeout, 60*time.Second))}
	if cb.Enabled {
		cooldown := config.Duration(cb.Timeout, 30*time.Second)
		opts = append(opts, WithBreaker(circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, cooldown)))
	}
	return Wrap(cfg.Provider, base, opts...), nil
}

// Guarded 包装一个 LLM：每次调用都有独立超时、可选熔断，并记录耗时。
type Guarded struct {
	provider string
	inner    LLM
	timeout  time.Duration
	breaker  *circuitbreaker.Breaker
}

// Option 配置 Guarded。
type Option func(*Guarded)

// WithTimeout 设置单次调用的超时，0 表示不额外限制。
func WithTimeout(d time.Duration) Option {
	return func(g *Guarded) { g.timeout = d }
}

// WithBreaker 为调用加上熔断器。
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(g *Guarded) { g.breaker = b }
}

// Wrap 创建 Guarded。
func Wrap(provider string, inner LLM, opts ...Option) *Guarded {
	g := &Guarded{provider: provider, inner: inner}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SupportsSchema 透传内部客户端的能力。
func (g *Guarded) SupportsSchema() bool {
	return SupportsSchema(g.inner)
}

// GenerateContent 实现 LLM 接口。
func (g *Guarded) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		metrics.OracleDuration.WithLabelValues(g.provider).Observe(time.Since(start).Seconds())
	}()

	var resp *models.GenerateContentResponse
	call := func(ctx context.Context) error {
		var err error
		resp, err = g.inner.GenerateContent(ctx, req)
		return err
	}
	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// SupportsSchema 报告 m 是否会遵守 ResponseSchema。
func SupportsSchema(m LLM) bool {
	if sc, ok := m.(SchemaCapable); ok {
		return sc.SupportsSchema()
	}
	return false
}

// Complete 发起一次单轮调用：系统指令 + 用户文本 + 可选图片，返回拼接后的文本。
func Complete(ctx context.Context, m LLM, system, user string, schema *models.ResponseSchema, images ...string) (string, error) {
	parts := []*models.Part{models.TextPart(user)}
	for _, img := range images {
		parts = append(parts, models.ImagePart(img))
	}
	resp, err := m.GenerateContent(ctx, &models.GenerateContentRequest{
		SystemInstruction: system,
		Content:           []models.Content{{Role: models.SpeakerUser, Parts: parts}},
		Schema:            schema,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// DecodeJSON 解析模型返回的 JSON，容忍 ```json 代码块包裹。
func DecodeJSON(raw string, v interface{}) error {
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	return json.Unmarshal([]byte(strings.TrimSpace(body)), v)
}

// schemaJSON 把扁平的 ResponseSchema 转换为 JSON Schema 文档。
func schemaJSON(s *models.ResponseSchema) json.RawMessage {
	props := make(map[string]map[string]string, len(s.Properties))
	for name, typ := range s.Properties {
		props[name] = map[string]string{"type": typ}
	}
	doc := map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	raw, _ := json.Marshal(doc)
	return raw
}

// flattenText 把请求里的所有文本片段拼接起来，图片以 URL 的形式附在末尾。
// 供不支持远程图片 URL 的提供方使用。
func flattenText(req *models.GenerateContentRequest) string {
	var sb strings.Builder
	var images []string
	for _, c := range req.Content {
		for _, p := range c.Parts {
			if p == nil {
				continue
			}
			if p.FileData != nil {
				images = append(images, p.FileData.FileURI)
				continue
			}
			sb.WriteString(p.Text)
		}
	}
	if len(images) > 0 {
		sb.WriteString("\n\nImages:\n")
		for _, img := range images {
			sb.WriteString("- ")
			sb.WriteString(img)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
