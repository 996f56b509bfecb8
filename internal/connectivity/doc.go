// 包 connectivity 实现 test-connection 命令：打印 API Key 状态，
// 依次用 "Hello" 探测标题模型与第一个议会模型，逐条输出结果。
// 单个探测失败不会中断后续探测。
package connectivity
