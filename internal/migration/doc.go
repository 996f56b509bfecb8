// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 为 database 存储驱动提供版本化的 Schema 迁移，
基于 golang-migrate，支持 PostgreSQL 与 MySQL。

# 概述

本包通过 embed.FS 内嵌各方言的 SQL 迁移文件（conversations 表及其
created_at 索引），并使用 golang-migrate 的 iofs 源执行。SQLite 的表结构
由 gorm AutoMigrate 在存储初始化时创建，这里返回 ErrSQLiteAutoMigrate。

# 核心接口与类型

  - Migrator：迁移器接口，Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close。
  - DefaultMigrator：基于 golang-migrate 的实现，日志接到 zap。
  - AvailableMigrations：列出内嵌迁移文件。
  - CLI：`llmcouncil migrate <action>` 的终端输出层。
*/
package migration
