// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、LLM、议会阶段、对话存储与 webhook 五大维度。

# 概述

Collector 持有独立的 prometheus.Registry，通过 promauto.With 注册指标，
因此同一进程中可以创建多个 Collector（测试、嵌入式部署）而不会重复注册。
Handler 返回基于该 Registry 的 /metrics 处理器。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - LLM 指标：按 provider/model 统计请求数、耗时、Token 用量与成本；
    LLMObserver 直接挂在 OpenRouter Provider 上。
  - 议会指标：各阶段耗时、成员成功/失败计数、完整流程计数（sync/sse/ws）。
  - 存储指标：按 backend/operation 统计操作数与耗时，缓存命中率，数据库连接池。
  - Webhook 指标：访客资料投递结果。
*/
package metrics
