package models

import "time"

// SpeakerRole 定义了消息发送者的角色。
type SpeakerRole string

const (
	SpeakerSystem SpeakerRole = "system" // 系统指令
	SpeakerUser   SpeakerRole = "user"   // 用户角色
	SpeakerModel  SpeakerRole = "model"  // 模型角色
)

// Content 包含了构成单个消息的多个部分。
type Content struct {
	Parts []*Part     `json:"parts,omitempty"`
	Role  SpeakerRole `json:"role,omitempty"`
}

// Part 是消息中的一段：文本或者按 URI 引用的图片。
type Part struct {
	Text     string    `json:"text,omitempty"`
	FileData *FileData `json:"fileData,omitempty"`
}

// FileData 是基于 URI 的数据，摘要合并时用来附带新闻配图。
type FileData struct {
	FileURI  string `json:"fileUri,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	// Detail 对应 OpenAI 的 image_url.detail，合并时固定为 "low"。
	Detail string `json:"detail,omitempty"`
}

// ResponseSchema 描述期望模型返回的 JSON 结构。
// 只支持扁平对象：字段名到 JSON 类型名（"string"/"number"/"boolean"）。
type ResponseSchema struct {
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties"`
	Required   []string          `json:"required,omitempty"`
}

// GenerateContentRequest 定义了一次模型调用。
type GenerateContentRequest struct {
	SystemInstruction string          `json:"systemInstruction,omitempty"`
	Content           []Content       `json:"content,omitempty"`
	Schema            *ResponseSchema `json:"schema,omitempty"` // 为空表示自由文本
}

// GenerateContentResponse 定义了生成内容的响应结构。
type GenerateContentResponse struct {
	Content      []Content `json:"content,omitempty"`
	CreateTime   time.Time `json:"createTime,omitempty"`
	ResponseID   string    `json:"responseId,omitempty"`
	ModelVersion string    `json:"modelVersion,omitempty"`
}

// Text 拼接响应中所有文本片段。
func (r *GenerateContentResponse) Text() string {
	if r == nil {
		return ""
	}
	var out string
	for _, c := range r.Content {
		for _, p := range c.Parts {
			if p != nil {
				out += p.Text
			}
		}
	}
	return out
}

// TextPart 是构造纯文本片段的便捷函数。
func TextPart(s string) *Part { return &Part{Text: s} }

// ImagePart 以低细节模式引用一张远程图片。
func ImagePart(uri string) *Part {
	return &Part{FileData: &FileData{FileURI: uri, MIMEType: "image/*", Detail: "low"}}
}
