// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 LLM Council 服务的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 council、store、api
等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - StageOneResult / StageTwoResult / StageThreeResult — 议会三个阶段的输出
  - AggregateRanking / Metadata — 匿名互评的汇总排名与标签映射
  - Conversation / Message / ConversationSummary — 持久化的对话文档
  - UserProfile — 访客资料，转发至 webhook
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - Context 传播：WithRequestID / WithConversationID / WithUserID
*/
package types
