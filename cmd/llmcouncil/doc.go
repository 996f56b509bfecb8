// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 LLM Council 服务端程序入口。

# 概述

cmd/llmcouncil 是 LLM Council 的可执行入口，提供 HTTP API 服务、
OpenRouter 连通性测试、数据库迁移、健康检查和版本查询等子命令。
启动时先读取 .env，再按 默认值 → YAML → LLMCOUNCIL_ 环境变量 加载配置。

# 子命令

  - serve            — 启动 API 服务（默认 :8001）与可选的 metrics 服务（默认 :9091）
  - test-connection  — 用标题模型和第一个议会模型做一次最小请求，打印结果
  - migrate          — 版本化数据库迁移（postgres / mysql）
  - health           — 请求运行中服务的 /health
  - version          — 打印构建信息

# 优雅关闭

收到 SIGINT / SIGTERM 后依次关闭 HTTP 服务、会话存储和追踪导出器。
*/
package main
