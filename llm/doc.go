// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 定义议会服务访问大语言模型的统一抽象。

# 核心接口

  - [Completer]：同步补全，议会三个阶段与连通性检查只依赖它
  - [Provider]：在 Completer 之上增加 HealthCheck / Name，供就绪探针使用

# 核心类型

  - [ChatRequest] / [ChatResponse]：请求与响应模型，Timeout 字段控制单次调用超时
  - [Message]：对话消息，保留 OpenRouter 返回的 reasoning_details
  - [Error]：带错误码、HTTP 状态与可重试标记的结构化错误

具体的 HTTP 适配位于 llm/providers 子包。
*/
package llm
