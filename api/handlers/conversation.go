package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/llmcouncil/api"
	"github.com/BaSui01/llmcouncil/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 会话 Handler
// =============================================================================

// ConversationStore 是 handler 需要的会话存储能力，store.Store 实现了它
type ConversationStore interface {
	Create(ctx context.Context, id string) (*types.Conversation, error)
	Get(ctx context.Context, id string) (*types.Conversation, error)
	List(ctx context.Context) ([]types.ConversationSummary, error)
	AddUserMessage(ctx context.Context, id, content string) error
	AddAssistantMessage(ctx context.Context, id string, stage1 []types.StageOneResult, stage2 []types.StageTwoResult, stage3 types.StageThreeResult) error
	UpdateTitle(ctx context.Context, id, title string) error
	Clear(ctx context.Context) (int, error)
}

// ConversationHandler 会话增删查
type ConversationHandler struct {
	store  ConversationStore
	logger *zap.Logger
	newID  func() string
}

// NewConversationHandler 创建会话处理器
func NewConversationHandler(store ConversationStore, logger *zap.Logger) *ConversationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationHandler{
		store:  store,
		logger: logger.With(zap.String("handler", "conversation")),
		newID:  uuid.NewString,
	}
}

// HandleList 列出会话摘要
// @Summary 会话列表
// @Tags 会话
// @Produce json
// @Success 200 {array} types.ConversationSummary
// @Router /api/conversations [get]
func (h *ConversationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		writeStoreError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, list)
}

// HandleCreate 创建新会话。请求体可以为空或 {}。
// @Summary 创建会话
// @Tags 会话
// @Accept json
// @Produce json
// @Success 200 {object} types.Conversation
// @Router /api/conversations [post]
func (h *ConversationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > 0 {
		var req api.CreateConversationRequest
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	}

	conv, err := h.store.Create(r.Context(), h.newID())
	if err != nil {
		writeStoreError(w, r, err, h.logger)
		return
	}
	h.logger.Info("conversation created", zap.String("conversation_id", conv.ID))
	WriteSuccess(w, conv)
}

// HandleClear 删除全部会话
// @Summary 清空会话
// @Tags 会话
// @Produce json
// @Success 200 {object} api.ClearConversationsResponse
// @Router /api/conversations [delete]
func (h *ConversationHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Clear(r.Context())
	if err != nil {
		writeStoreError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, api.ClearConversationsResponse{Status: "ok", Deleted: n})
}

// HandleGet 读取单个会话
// @Summary 会话详情
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} types.Conversation
// @Failure 404 {object} api.ErrorResponse
// @Router /api/conversations/{id} [get]
func (h *ConversationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	conv, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, conv)
}
