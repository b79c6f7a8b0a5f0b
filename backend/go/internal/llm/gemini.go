package llm

import (
	"context"
	"fmt"

	"Trendline/backend/go/internal/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini 是一个实现了 LLM 接口的结构体，用于与 Gemini API 交互。
// 每次调用都创建新的 GenerativeModel，避免并发请求互相覆盖系统指令和输出结构。
type Gemini struct {
	client    *genai.Client
	modelName string
}

// NewGemini 创建一个新的 Gemini 客户端。
func NewGemini(ctx context.Context, model, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client, modelName: model}, nil
}

// SupportsSchema 实现 SchemaCapable。
func (g *Gemini) SupportsSchema() bool { return true }

// Close 释放底层连接。
func (g *Gemini) Close() error { return g.client.Close() }

// GenerateContent 向 Gemini API 发送单轮请求。
func (g *Gemini) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	model := g.client.GenerativeModel(g.modelName)
	if req.SystemInstruction != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemInstruction)}}
	}
	if req.Schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = toGenaiSchema(req.Schema)
	}

	// 远程图片 URL 不能直接作为 FileData 传给 Gemini，这里并入文本
	resp, err := model.GenerateContent(ctx, genai.Text(flattenText(req)))
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	return fromGenaiResponse(resp), nil
}

func toGenaiSchema(s *models.ResponseSchema) *genai.Schema {
	props := make(map[string]*genai.Schema, len(s.Properties))
	for name, typ := range s.Properties {
		t := genai.TypeString
		switch typ {
		case "number":
			t = genai.TypeNumber
		case "boolean":
			t = genai.TypeBoolean
		}
		props[name] = &genai.Schema{Type: t}
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: s.Required}
}

// fromGenaiResponse 只保留第一个候选中的文本片段。
func fromGenaiResponse(resp *genai.GenerateContentResponse) *models.GenerateContentResponse {
	out := &models.GenerateContentResponse{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	var parts []*models.Part
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			parts = append(parts, &models.Part{Text: string(t)})
		}
	}
	out.Content = []models.Content{{Parts: parts, Role: models.SpeakerModel}}
	return out
}
