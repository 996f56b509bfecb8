package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/BaSui01/llmcouncil/api"
	"github.com/BaSui01/llmcouncil/internal/council"
	"github.com/BaSui01/llmcouncil/internal/pool"
	"github.com/BaSui01/llmcouncil/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🏛️ 议会消息 Handler
// =============================================================================

// Deliberator 执行三阶段议会流程，council.Council 实现了它
type Deliberator interface {
	Run(ctx context.Context, query string, emit council.EmitFunc) types.CouncilResult
	GenerateTitle(ctx context.Context, query string) string
}

// RunRecorder 记录每次议会运行的结果
type RunRecorder interface {
	RecordCouncilRun(mode, status string)
}

// 运行模式，用作指标标签
const (
	modeSync   = "sync"
	modeStream = "stream"
	modeWS     = "websocket"
)

// MessageHandler 处理发送消息的三种传输方式
type MessageHandler struct {
	store          ConversationStore
	council        Deliberator
	recorder       RunRecorder
	logger         *zap.Logger
	originPatterns []string
}

// MessageOption 配置 MessageHandler
type MessageOption func(*MessageHandler)

// WithRunRecorder 设置运行指标记录器
func WithRunRecorder(r RunRecorder) MessageOption {
	return func(h *MessageHandler) { h.recorder = r }
}

// WithOriginPatterns 设置 WebSocket 允许的跨域来源
func WithOriginPatterns(patterns []string) MessageOption {
	return func(h *MessageHandler) { h.originPatterns = patterns }
}

// NewMessageHandler 创建消息处理器
func NewMessageHandler(store ConversationStore, c Deliberator, logger *zap.Logger, opts ...MessageOption) *MessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &MessageHandler{
		store:   store,
		council: c,
		logger:  logger.With(zap.String("handler", "message")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleSend 同步运行议会并返回全部阶段结果
// @Summary 发送消息
// @Tags 消息
// @Accept json
// @Produce json
// @Param id path string true "会话 ID"
// @Param request body api.SendMessageRequest true "问题"
// @Success 200 {object} api.SendMessageResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /api/conversations/{id}/message [post]
func (h *MessageHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	conv, content, ok := h.prepare(w, r)
	if !ok {
		return
	}

	result, err := h.deliberate(r.Context(), modeSync, conv, content, nil)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeStoreError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, api.SendMessageResponse(result))
}

// HandleStream 以 SSE 推送各阶段进度
// @Summary 流式发送消息
// @Tags 消息
// @Accept json
// @Produce text/event-stream
// @Param id path string true "会话 ID"
// @Param request body api.SendMessageRequest true "问题"
// @Success 200 {string} string "SSE 事件流"
// @Router /api/conversations/{id}/message/stream [post]
func (h *MessageHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conv, content, ok := h.prepare(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteRequestError(w, r, types.NewError(types.ErrInternalError, "streaming not supported"), h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.stream(r.Context(), modeStream, conv, content, &sseSink{w: w, flusher: flusher})
}

// prepare 校验请求体与会话存在性，失败时已写出错误响应
func (h *MessageHandler) prepare(w http.ResponseWriter, r *http.Request) (*types.Conversation, string, bool) {
	if !ValidateContentType(w, r, h.logger) {
		return nil, "", false
	}
	var req api.SendMessageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return nil, "", false
	}

	conv, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, err, h.logger)
		return nil, "", false
	}

	if strings.TrimSpace(req.Content) == "" {
		WriteRequestError(w, r, types.NewError(types.ErrInvalidRequest, "content must not be empty"), h.logger)
		return nil, "", false
	}
	return conv, req.Content, true
}

// =============================================================================
// 🔁 议会运行与事件转发
// =============================================================================

// deliberate 存储用户消息，运行议会，存储助手消息。
// 首条消息时标题生成与议会并发执行，title 回调在助手消息落盘后触发。
func (h *MessageHandler) deliberate(
	ctx context.Context,
	mode string,
	conv *types.Conversation,
	content string,
	emit council.EmitFunc,
) (types.CouncilResult, error) {
	log := h.logger.With(zap.String("conversation_id", conv.ID), zap.String("mode", mode))
	ctx = types.WithConversationID(ctx, conv.ID)

	first := len(conv.Messages) == 0
	if err := h.store.AddUserMessage(ctx, conv.ID, content); err != nil {
		h.record(mode, "error")
		return types.CouncilResult{}, err
	}

	var titleCh chan string
	if first {
		titleCh = make(chan string, 1)
		go func() { titleCh <- h.council.GenerateTitle(ctx, content) }()
	}

	result := h.council.Run(ctx, content, emit)

	if err := ctx.Err(); err != nil {
		log.Warn("client went away before the council finished", zap.Error(err))
		h.record(mode, "canceled")
		return result, err
	}

	if err := h.store.AddAssistantMessage(ctx, conv.ID, result.Stage1, result.Stage2, result.Stage3); err != nil {
		h.record(mode, "error")
		return result, err
	}

	if first {
		title := <-titleCh
		if err := h.store.UpdateTitle(ctx, conv.ID, title); err != nil {
			log.Warn("failed to update title", zap.Error(err))
		} else if emit != nil {
			emit(council.Event{Type: council.EventTitleComplete, Data: api.TitleData{Title: title}})
		}
	}

	status := "ok"
	if len(result.Stage1) == 0 {
		status = "all_failed"
	}
	h.record(mode, status)
	log.Info("council run finished",
		zap.Int("responses", len(result.Stage1)),
		zap.Int("rankings", len(result.Stage2)),
		zap.String("status", status),
	)
	return result, nil
}

// stream 把议会事件写到 sink，结束时发送 complete 或 error
func (h *MessageHandler) stream(ctx context.Context, mode string, conv *types.Conversation, content string, sink eventSink) {
	rl := &relay{ctx: ctx, sink: sink}

	if _, err := h.deliberate(ctx, mode, conv, content, rl.emit); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		h.logger.Error("council stream failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		rl.emit(council.Event{Type: council.EventError, Message: err.Error()})
		return
	}
	rl.emit(council.Event{Type: council.EventComplete})

	if rl.err != nil {
		h.logger.Debug("event delivery stopped", zap.Error(rl.err))
	}
}

func (h *MessageHandler) record(mode, status string) {
	if h.recorder != nil {
		h.recorder.RecordCouncilRun(mode, status)
	}
}

// eventSink 是一种事件传输
type eventSink interface {
	Send(ctx context.Context, ev council.Event) error
}

// relay 在第一次写失败后丢弃后续事件
type relay struct {
	ctx  context.Context
	sink eventSink
	err  error
}

func (r *relay) emit(ev council.Event) {
	if r.err != nil {
		return
	}
	r.err = r.sink.Send(r.ctx, ev)
}

// sseSink 写 `data: {json}\n\n` 帧并立即刷新
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(_ context.Context, ev council.Event) error {
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)

	buf.WriteString("data: ")
	// Encode 追加 '\n'，再补一个组成帧结束
	if err := json.NewEncoder(buf).Encode(ev); err != nil {
		return err
	}
	buf.WriteByte('\n')

	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
