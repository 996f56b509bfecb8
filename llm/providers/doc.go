// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供 OpenAI 兼容协议的共享适配能力，openaicompat 与
openrouter 子包依赖本包完成请求/响应转换与错误映射。

# 核心类型

  - OpenAICompat* 系列 — 请求/响应/错误结构体，消息保留 reasoning_details
  - OpenAICompatUsage — token 用量，含 OpenRouter 的 cost 字段

# 核心函数

  - MapHTTPError — 将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - MapTransportError — 将网络错误与超时映射为 llm.Error
  - ReadErrorMessage — 从错误响应体中提取可读消息
  - ConvertMessagesToOpenAI / ToLLMChatResponse — 消息与响应格式转换
  - ChooseModel — 按优先级选择模型（请求 > 默认）
*/
package providers
