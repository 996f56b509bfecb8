// Package config 提供 LLM Council 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → LLMCOUNCIL_ 前缀环境变量 的顺序叠加，
// 之后用 OPENROUTER_API_KEY 等兼容变量填充仍为空的字段。
// Validate 检查端口、议会成员和存储驱动。
package config
