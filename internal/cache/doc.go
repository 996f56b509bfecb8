// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 封装 go-redis 客户端，为 redis 会话存储提供连接管理与原子操作。

# 核心类型

  - Manager：持有 Redis 客户端，负责连接探测、后台健康检查与关闭。
  - Config：地址、密码、连接池、默认 TTL（0 为永不过期）与健康检查间隔。
  - Observer：命中/未命中回调，由 metrics.Collector 实现。
  - Stats：本进程命中计数，加上 DBSIZE 与 INFO 中的内存和连接数。

# 主要能力

  - 键值读写：Get/Set/Delete/Exists/Expire，以及 GetJSON/SetJSON。
  - 有序索引：PutIndexed 在一个 MULTI 中写值并更新 ZSET，
    IndexMembers 按分数降序列出，DeleteIndexed 批量清理。
  - 读改写：Update 使用 WATCH 乐观事务，冲突时重试。
  - 错误语义：ErrCacheMiss、ErrClosed、ErrTxConflict。
*/
package cache
