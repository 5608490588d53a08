// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 封装 go-redis 客户端，为工作区快照的 Redis 存储提供
连接管理与原始字节读写。

# 核心类型

  - Manager：持有 Redis 客户端，提供 Get/Set/Ping/Close。
  - Config：地址、密码、库编号、连接池与默认过期时间。

# 错误语义

键不存在时返回 [ErrCacheMiss]，可用 [IsCacheMiss] 判断。
Close 之后的所有操作返回错误。
*/
package cache
