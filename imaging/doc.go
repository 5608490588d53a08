// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 imaging 把模型选择映射为 fal.ai 图像编辑请求，并把各模型形态不一的
响应归一化为单个图片地址。

# 核心类型

  - ModelID：受支持的模型标识（qwen、flux、gemini、seedream）。
  - ModelSettings：按模型封闭的参数变体，未设置的字段不会出现在请求体中。
  - Adapter：纯函数式的请求构建，不做任何 I/O。
  - FalClient：发送请求、下载结果，错误映射为 UPSTREAM_ERROR / DOWNLOAD_ERROR。

# 归一化

ExtractImageReference 依次尝试 images[0].url、image.url、output[0].url，
都不存在时返回 NO_IMAGE_RETURNED 并保留原始响应。
*/
package imaging
