package api

import (
	"time"

	"github.com/BaSui01/llmcouncil/types"
)

// =============================================================================
// 会话请求/响应类型
// =============================================================================

// CreateConversationRequest 创建会话请求。
// @Description 创建会话请求（当前无字段，前端发送 {}）
type CreateConversationRequest struct{}

// SendMessageRequest 发送消息请求。
// @Description 发送给议会的问题
type SendMessageRequest struct {
	// 用户问题
	Content string `json:"content" example:"What is the capital of France?"`
}

// SendMessageResponse 同步发送消息的结果：三个阶段的输出与汇总元数据。
type SendMessageResponse = types.CouncilResult

// ClearConversationsResponse 清空会话的结果。
// @Description 删除的会话数量
type ClearConversationsResponse struct {
	Status  string `json:"status" example:"ok"`
	Deleted int    `json:"deleted" example:"3"`
}

// TitleData 是 title_complete 事件的数据。
type TitleData struct {
	Title string `json:"title"`
}

// =============================================================================
// 用户资料
// =============================================================================

// UserProfileRequest 访客资料表单。
// @Description 姓名与电话（不含区号）必填
type UserProfileRequest struct {
	Name        string `json:"name" example:"Ana"`
	CountryCode string `json:"countryCode" example:"+57"`
	PhoneNumber string `json:"phoneNumber" example:"3112345678"`
}

// =============================================================================
// 根路径与错误
// =============================================================================

// StatusResponse 根路径响应。
// @Description 服务存活状态
type StatusResponse struct {
	Status  string `json:"status" example:"ok"`
	Service string `json:"service" example:"LLM Council API"`
}

// ErrorResponse 错误响应。
// @Description 统一错误响应结构
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorDetail 错误详情。
// @Description 错误详细结构
type ErrorDetail struct {
	// 错误代码
	Code string `json:"code" example:"NOT_FOUND"`
	// 人类可读的错误消息
	Message string `json:"message" example:"Conversation not found"`
	// 请求是否可以重试
	Retryable bool `json:"retryable,omitempty" example:"false"`
}
