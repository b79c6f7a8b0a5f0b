package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"Trendline/backend/go/internal/models"
)

// Fake 是一个离线的 LLM 实现，provider 为 "fake" 时使用，也用于测试。
// 默认把请求文本截断后填进 schema 的每个字段返回，例如 {"summary": ...}。
type Fake struct {
	// Respond 覆盖默认行为。
	Respond func(ctx context.Context, req *models.GenerateContentRequest) (string, error)
	// Delay 在响应前等待，期间会响应 ctx 取消。
	Delay time.Duration

	mu        sync.Mutex
	calls     int
	active    int
	maxActive int
	requests  []*models.GenerateContentRequest
}

// SupportsSchema 实现 SchemaCapable。
func (f *Fake) SupportsSchema() bool { return true }

// GenerateContent 实现 LLM 接口。
func (f *Fake) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	f.mu.Lock()
	f.calls++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var (
		text string
		err  error
	)
	if f.Respond != nil {
		text, err = f.Respond(ctx, req)
	} else {
		text, err = defaultFakeResponse(req)
	}
	if err != nil {
		return nil, err
	}
	return &models.GenerateContentResponse{
		Content:      []models.Content{{Parts: []*models.Part{{Text: text}}, Role: models.SpeakerModel}},
		CreateTime:   time.Now(),
		ModelVersion: "fake",
	}, nil
}

func defaultFakeResponse(req *models.GenerateContentRequest) (string, error) {
	body := strings.Join(strings.Fields(flattenText(req)), " ")
	if len(body) > 200 {
		body = body[:200]
	}
	summary := fmt.Sprintf("Summary: %s", body)
	if req.Schema == nil {
		return summary, nil
	}
	reply := make(map[string]string, len(req.Schema.Properties))
	for name := range req.Schema.Properties {
		reply[name] = summary
	}
	raw, err := json.Marshal(reply)
	return string(raw), err
}

// Calls 返回调用次数。
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// MaxConcurrent 返回观察到的最大并发调用数。
func (f *Fake) MaxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

// Requests 返回收到的请求副本。
func (f *Fake) Requests() []*models.GenerateContentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.GenerateContentRequest, len(f.requests))
	copy(out, f.requests)
	return out
}
