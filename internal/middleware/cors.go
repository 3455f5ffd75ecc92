package middleware

import (
	"net/http"
	"strings"
)

// OriginPolicy 描述允许跨域访问的来源，CORS 与 websocket 握手共用。
type OriginPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

func NewOriginPolicy(allowedOrigins []string) OriginPolicy {
	p := OriginPolicy{allowed: map[string]struct{}{}}
	for _, origin := range allowedOrigins {
		value := strings.TrimSpace(origin)
		if value == "" {
			continue
		}
		if value == "*" {
			p.allowAll = true
			break
		}
		p.allowed[value] = struct{}{}
	}
	return p
}

// Resolve 返回应写入 Access-Control-Allow-Origin 的值，不允许时返回空串。
func (p OriginPolicy) Resolve(origin string) string {
	if origin == "" {
		return ""
	}
	if p.allowAll {
		return "*"
	}
	if _, ok := p.allowed[origin]; ok {
		return origin
	}
	return ""
}

// CheckOrigin 适配 websocket.Upgrader.CheckOrigin；没有 Origin 头的非浏览器客户端直接放行。
func (p OriginPolicy) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || p.Resolve(origin) != ""
}

// CORS 生成允许指定来源访问的跨域中间件。
func CORS(policy OriginPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowedOrigin := policy.Resolve(r.Header.Get("Origin"))

			if allowedOrigin != "" {
				writeCORSHeaders(w, allowedOrigin)
			}

			if r.Method == http.MethodOptions && allowedOrigin != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeCORSHeaders(w http.ResponseWriter, origin string) {
	headers := w.Header()
	headers.Set("Access-Control-Allow-Origin", origin)
	headers.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	headers.Set("Access-Control-Allow-Headers", "Content-Type, "+UserHeader+", X-Transfer-ID")
	headers.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Transfer-ID")
	headers.Set("Access-Control-Max-Age", "600")

	if origin != "*" {
		headers.Add("Vary", "Origin")
	}
}
