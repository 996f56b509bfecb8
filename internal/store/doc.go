// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 store 负责会话的持久化。

Store 在 Backend 之上实现会话领域操作：创建、读取、列表（按创建时间倒序）、
追加用户/助手消息、修改标题与清空。同一会话上的修改在进程内串行化，
实现了 Updater 的驱动（redis、database）另外保证跨进程原子。

# 驱动

  - file：每个会话一个 JSON 文件，临时文件 + rename 原子替换。
  - database：gorm，支持 postgres、mysql 与 sqlite。
  - redis：每个会话一个 JSON 值，ZSET 按创建时间索引。

Open 按 config.StorageConfig.Driver 选择驱动。
*/
package store
