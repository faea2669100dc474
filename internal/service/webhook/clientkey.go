package webhook

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient 无法确定地址的调用方共用的限流桶
const UnknownClient = "unknown"

// ClientKey 计算请求的限流标识。代理头可被任意客户端伪造，
// 只有在信任时才读取。
func ClientKey(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}

	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "" {
			return host
		}
	}
	return UnknownClient
}
