// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package tlsutil 提供出站 HTTP 连接的集中式 TLS 与客户端配置。

fal.ai 提交、结果图片下载、聊天补全、S3 镜像与远程客户端共用同一个
加固 Transport（TLS 1.2+，仅 AEAD 密码套件，代理取自环境变量）。
NewHTTPClient 在其上附加超时与重定向策略：最多跟随 MaxRedirects 次，
拒绝 https → http 降级（ErrInsecureRedirect）。
*/
package tlsutil
