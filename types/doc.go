// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 renderflow 的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包，为 imaging、artifact、generate、
refine、job、api 等上层模块提供统一的错误契约。

# 核心类型

  - Error / ErrorCode — 结构化错误，含 HTTP 状态码、上游状态与响应体、原始负载
  - Kind              — 错误族：validation / upstream / normalization / persistence / cancelled

# 主要能力

  - 错误工具链：AsError / GetErrorCode / IsErrorCode / KindOf / StatusFor
  - 常用错误构造：NewInvalidRequestError / NewCancelledError
*/
package types
