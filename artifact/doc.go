// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package artifact 负责生成结果图片的命名与落盘.
//
// 文件名格式为 <label><index>__<timestamp>__<model>__seed-<value|auto>.<ext>，
// index 通过扫描输出目录得出，因此在进程重启后仍然单调递增。
// 该策略只在单写者前提下保证唯一性.
package artifact
