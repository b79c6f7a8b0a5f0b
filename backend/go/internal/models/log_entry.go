package models

// LogEntry 定义了结构化日志的统一字段。
type LogEntry struct {
	// ServiceName 产生这条日志的组件名，例如 "trend-service", "tracker"。
	ServiceName string `json:"service_name"`

	// TraceID 串联一次摄取周期或一次 HTTP 请求内的所有日志。
	TraceID string `json:"trace_id,omitempty"`

	// UserID 相关用户实体的 id（如果适用）。
	UserID string `json:"user_id,omitempty"`

	Error *ErrorInfo `json:"error,omitempty"`

	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ErrorInfo 存储了关于错误的结构化信息。
type ErrorInfo struct {
	Message    string `json:"message"`
	Stack      string `json:"stack,omitempty"`
	Type       string `json:"type,omitempty"` // 例如 "oracle_error", "store_error", "fetch_error"
	StatusCode int    `json:"status_code,omitempty"`
}

// NewErrorInfo 从 error 构造 ErrorInfo。err 为 nil 时返回 nil。
func NewErrorInfo(errType string, err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	return &ErrorInfo{Message: err.Error(), Type: errType}
}
