// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 LLM Council HTTP API 的请求处理器实现。

# 概述

handlers 包实现会话增删查、议会消息（同步 / SSE / WebSocket）、
访客资料登记、健康检查以及统一的错误响应。所有 Handler 均遵循
标准 net/http 接口，路径参数通过 Request.PathValue 读取。

# 核心类型

  - ConversationHandler — 会话列表、创建、清空与读取
  - MessageHandler      — 运行议会；HandleSend 返回完整结果，HandleStream 推送 SSE，HandleWebSocket 推送 WS 帧
  - ProfileHandler      — 校验访客资料并转发到 webhook
  - HealthHandler       — /health, /healthz, /ready, /version
  - Response            — 错误信封（success=false + error + timestamp）

# 事件顺序

stage1_start, stage1_complete, stage2_start, stage2_complete, stage3_start,
stage3_complete, title_complete（仅首条消息）, complete。
出错时发送 error 并结束。
*/
package handlers
