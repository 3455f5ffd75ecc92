package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// UserHeader 携带调用方自报的显示名。它只用于标注上传者，不是鉴权凭据。
const UserHeader = "X-User-Name"

// UserContextKey 是存储在 context 中的显示名的键。
type UserContextKey struct{}

// Identity 把请求头（或 websocket 无法设置请求头时的 user 查询参数）中的显示名存入 context。
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := strings.TrimSpace(r.Header.Get(UserHeader))
			if name == "" {
				name = strings.TrimSpace(r.URL.Query().Get("user"))
			}
			if name != "" {
				r = r.WithContext(WithUser(r.Context(), name))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireIdentity 拒绝没有显示名的请求，用于会写入目录的路由。
func RequireIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetUser(r.Context()) == "" {
				writeIdentityError(w, "missing "+UserHeader+" header")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithUser(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, UserContextKey{}, name)
}

// GetUser 从 context 中获取显示名，未设置时返回空串。
func GetUser(ctx context.Context) string {
	if v, ok := ctx.Value(UserContextKey{}).(string); ok {
		return v
	}
	return ""
}

func writeIdentityError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
