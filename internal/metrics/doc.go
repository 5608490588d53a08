// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、图像生成、提示词优化与工作区存储四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 生成指标：按 model/outcome 统计尝试次数，图像服务调用耗时，
    按 label 统计落盘字节数。
  - 提示词优化指标：请求总数与 Token 用量。
  - 工作区存储指标：按 driver/operation 统计存取耗时。
*/
package metrics
