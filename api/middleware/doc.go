// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 middleware 提供 HTTP 中间件：panic 恢复、请求 ID、安全响应头、
访问日志、Prometheus 指标、OpenTelemetry 追踪、CORS、按 IP 限流、
API Key 与 JWT 鉴权以及请求体大小限制。

Chain 的第一个参数在最外层。包装后的 ResponseWriter 透传 Flush 与 Hijack，
因此 SSE 与 WebSocket 端点可以放在整条链之后。
*/
package middleware
