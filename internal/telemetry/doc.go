// Package telemetry 初始化 OpenTelemetry SDK：OTLP gRPC 导出 trace 与指标，
// 资源属性携带服务名、版本、主机与进程信息，采样尊重上游 trace 决定。
// 遥测关闭时不注册任何 provider，也不连接外部服务。
package telemetry
