package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// 统一的 LLM 错误码，用于对齐 HTTP 状态与可重试性。
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "LLM_INVALID_REQUEST"     // 参数/格式错误
	ErrUnauthorized       ErrorCode = "LLM_UNAUTHORIZED"        // 未授权或密钥失效
	ErrForbidden          ErrorCode = "LLM_FORBIDDEN"           // 权限或内容策略拒绝
	ErrRateLimited        ErrorCode = "LLM_RATE_LIMITED"        // 上游限流
	ErrQuotaExceeded      ErrorCode = "LLM_QUOTA_EXCEEDED"      // 额度用尽（OpenRouter 402）
	ErrModelNotFound      ErrorCode = "LLM_MODEL_NOT_FOUND"     // 模型 ID 不存在
	ErrModelOverloaded    ErrorCode = "LLM_MODEL_OVERLOADED"    // 模型过载
	ErrUpstreamTimeout    ErrorCode = "LLM_UPSTREAM_TIMEOUT"    // 上游超时
	ErrUpstreamError      ErrorCode = "LLM_UPSTREAM_ERROR"      // 上游 5xx/网络错误
	ErrEmptyResponse      ErrorCode = "LLM_EMPTY_RESPONSE"      // 响应中没有任何 choice
	ErrNotConfigured      ErrorCode = "LLM_NOT_CONFIGURED"      // 缺少 API Key 等配置
)

type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// IsRetryable 判断 err 链上是否存在可重试的 *Error。
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// AsError 从 err 链中提取 *Error。
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ReasoningDetails 为 OpenRouter 推理模型返回的原始推理块，不做解析。
	ReasoningDetails json.RawMessage `json:"reasoning_details,omitempty"`
}

// UserMessage 构造单条用户消息。
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"` // 单次请求超时，0 表示使用 Provider 默认值
}

type ChatUsage struct {
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	Cost             float64 `json:"cost,omitempty"` // 以 USD 计
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// HealthStatus 表示 Provider 健康检查结果。
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Model 是 /models 端点返回的模型条目。
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
	Created       int64  `json:"created,omitempty"`
}

// Completer 只负责同步补全，是议会流程与连通性检查依赖的最小接口。
type Completer interface {
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// Provider 定义了统一的 LLM 适配接口。
type Provider interface {
	Completer

	// HealthCheck 执行轻量级健康检查，返回延迟与可用性信息。
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}

// CallObserver 在每次上游调用结束后被回调，用于指标采集。
type CallObserver func(model string, duration time.Duration, usage ChatUsage, err error)
