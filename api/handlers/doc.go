// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package handlers 提供 renderflow HTTP API 的请求处理器实现。

# 概述

handlers 包实现图像生成、提示词优化、工作区快照与健康检查端点。
所有 Handler 均遵循标准 net/http 接口，业务逻辑委托给 generate、
refine 与 workspace 包，这里只做请求解析与错误映射。

# 核心类型

  - GenerateHandler  — POST /api/generate，multipart 上传源图并生成
  - RefineHandler    — POST /api/refine，宽松解析数值字段
  - WorkspaceHandler — GET/PUT /api/workspace，随机种子与重置
  - HealthHandler    — /health, /healthz, /ready, /version
  - ErrorBody        — 失败响应 {error, code, kind, upstream_status}

# 错误映射

types.StatusFor 决定状态码：校验类 400，上游与归一化 502，
取消 499，其余 500。未携带错误码的错误统一返回
"internal server error"，原始信息只写入日志。
*/
package handlers
