// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 webhook 把访客提交的联系资料转发到外部 webhook（如 n8n）。
// NewProfile 负责清洗输入，Forwarder 负责带重试的投递。
package webhook
