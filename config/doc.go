// Package config 提供 RenderFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 兼容环境变量 → RENDERFLOW_ 前缀环境变量
// 的顺序叠加，并在启动时统一校验。
package config
