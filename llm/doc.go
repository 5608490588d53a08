// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供 OpenAI 兼容的 Chat Completions 客户端，供提示词精炼使用。

# 概述

[ChatClient] 发送单次非流式补全请求，支持多模态用户消息
（文本 part 在前，image_url part 在后）。鉴权使用 Bearer Token，
BaseURL 可配置，便于对接兼容网关或测试服务器。

# 错误语义

  - 未配置 API Key：CONFIG_MISSING，不发出任何请求
  - 上游 4xx/5xx：UPSTREAM_ERROR，携带上游状态码与原始响应体
  - 响应无法解析：UPSTREAM_ERROR，原始 payload 保存在 Raw 中
  - 上下文取消：CANCELLED
*/
package llm
