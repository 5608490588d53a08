// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 RenderFlow 服务端与命令行入口。

# 概述

cmd/renderflow 是 RenderFlow 的可执行入口，提供 HTTP API 服务、
单次生成与提示词优化、健康检查和版本查询等子命令。程序支持 YAML
配置文件加载、结构化日志（zap）、Prometheus 指标与 OpenTelemetry 追踪。

# 核心类型

  - Server      — 主服务器，管理 API、Metrics 双端口及优雅关闭
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - components  — serve 与本地命令共享的工作区、产物、图像服务与优化组件
  - backend     — generate/refine 命令使用的本地管线或远程客户端

# 主要能力

  - 子命令：serve、generate、refine、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    CORS、MetricsMiddleware、OTelTracing、RateLimiter（基于 IP）、
    APIKeyAuth（仅在配置了 api_keys 时启用）
  - generate/refine 通过 job 控制器运行，--addr 切换到远程服务，
    Ctrl-C 映射为控制器取消
  - 优雅关闭：信号 → errgroup 内各 Manager 关闭 → 遥测与工作区存储释放
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
