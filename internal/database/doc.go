// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接打开与连接池管理，
供工作区快照的 SQL 存储使用。

# 核心类型

  - [Dialector]：按驱动类型（postgres、mysql、sqlite）选择 GORM 方言，
    sqlite 使用纯 Go 的 glebarez/sqlite。
  - [Open]：打开连接并按配置调优连接池，sqlite 限制为单连接。
  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、Close()。
  - TransactionFunc：事务回调函数类型。

# 事务

WithTransaction 执行单次事务；WithTransactionRetry 对死锁、序列化失败、
sqlite 锁冲突与连接类错误按指数退避重试。
*/
package database
