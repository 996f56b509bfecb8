// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 HTTP 服务器的生命周期：非阻塞启动、优雅关闭与信号等待。

serve 命令为 API 与 /metrics 各创建一个 Manager，然后调用 Wait
等待 SIGINT/SIGTERM、上下文结束或任一服务异常退出，最后依次 Shutdown。
API 服务的写超时默认 10 分钟，足够覆盖一次完整的 SSE 议会流。
*/
package server
