// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 app 组装 LLM Council 的应用对象。

New 按配置创建 OpenRouter Provider、议会、会话存储、webhook 转发器与
Prometheus 收集器，注册全部路由并套上中间件链。测试可以通过
WithCompleter、WithStore 替换上游与存储。

App 实现 http.Handler，可直接交给任意 http.Server；
cmd/llmcouncil 的 serve 命令用 internal/server.Manager 托管它。
*/
package app
