// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 renderflow 的 HTTP 服务器生命周期。

# 概述

Manager 封装 net/http.Server，负责监听、后台服务、优雅关闭与
异步错误传播。API 服务器与 Metrics 服务器各持有一个 Manager，
由 cmd/renderflow 通过 errgroup 并行运行。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与错误通道。
  - Config：名称、监听地址、读写与空闲超时、最大请求头、关闭超时。

# 主要能力

  - Start：非阻塞启动；Addr 在启动后返回实际绑定地址（支持 :0）。
  - Run：阻塞直到 ctx 结束或服务失败，随后优雅关闭。
  - Shutdown：幂等；在 ShutdownTimeout 内排空请求。
*/
package server
