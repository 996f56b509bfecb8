package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/llmcouncil/api"
	"github.com/BaSui01/llmcouncil/internal/council"
	"github.com/BaSui01/llmcouncil/internal/store"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// wsReadTimeout 连接建立后等待第一条消息的时间
const wsReadTimeout = 30 * time.Second

// HandleWebSocket 是 HandleStream 的 WebSocket 版本。
// 客户端连接后发送一条 {"content": "..."}，服务端逐条推送与 SSE 相同的事件 JSON。
// @Summary WebSocket 发送消息
// @Tags 消息
// @Param id path string true "会话 ID"
// @Router /api/conversations/{id}/message/ws [get]
func (h *MessageHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: OriginHosts(h.originPatterns),
	})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	sink := &wsSink{conn: conn}

	readCtx, cancel := context.WithTimeout(ctx, wsReadTimeout)
	var req api.SendMessageRequest
	err = wsjson.Read(readCtx, conn, &req)
	cancel()
	if err != nil {
		h.logger.Debug("websocket read failed", zap.Error(err))
		_ = conn.Close(websocket.StatusUnsupportedData, "expected {\"content\": string}")
		return
	}

	conv, err := h.store.Get(ctx, r.PathValue("id"))
	if err != nil {
		msg := "storage operation failed"
		if errors.Is(err, store.ErrNotFound) {
			msg = "Conversation not found"
		}
		_ = sink.Send(ctx, council.Event{Type: council.EventError, Message: msg})
		_ = conn.Close(websocket.StatusPolicyViolation, msg)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		_ = sink.Send(ctx, council.Event{Type: council.EventError, Message: "content must not be empty"})
		_ = conn.Close(websocket.StatusPolicyViolation, "empty content")
		return
	}

	// 之后客户端不再发送数据，CloseRead 在对端断开时取消 ctx
	ctx = conn.CloseRead(ctx)
	h.stream(ctx, modeWS, conv, req.Content, sink)
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Send(ctx context.Context, ev council.Event) error {
	return wsjson.Write(ctx, s.conn, ev)
}

// OriginHosts 把 CORS 来源（http://host:port）转成 websocket 的 host 模式
func OriginHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
