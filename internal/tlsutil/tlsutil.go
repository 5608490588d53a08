package tlsutil

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxRedirects 结果下载时允许跟随的最大重定向次数
const MaxRedirects = 5

// ErrInsecureRedirect 表示 https 请求被重定向到明文地址
var ErrInsecureRedirect = errors.New("refusing redirect from https to http")

var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// TLSConfig 返回加固后的 TLS 配置副本（TLS 1.2+，仅 AEAD 套件）
func TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: append([]uint16(nil), aeadSuites...),
	}
}

// sharedTransport 由 fal.ai 调用、结果下载、聊天与 S3 共用，
// 同一主机上的提交与下载可以复用连接
var sharedTransport = sync.OnceValue(func() *http.Transport {
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: TLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
})

// Transport 返回进程内共享的加固 Transport
func Transport() *http.Transport {
	return sharedTransport()
}

// CheckRedirect 限制重定向次数，并拒绝 https → http 降级
func CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", MaxRedirects)
	}
	if len(via) > 0 && via[len(via)-1].URL.Scheme == "https" && req.URL.Scheme == "http" {
		return ErrInsecureRedirect
	}
	return nil
}

// NewHTTPClient 基于共享 Transport 创建客户端，timeout 为 0 表示不设整体超时
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:       timeout,
		Transport:     Transport(),
		CheckRedirect: CheckRedirect,
	}
}
