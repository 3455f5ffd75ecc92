package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// RateLimitOptions 配置固定窗口限流。
type RateLimitOptions struct {
	MaxRequests int
	Window      time.Duration
	// Exempt 中的路径不计数，例如健康检查与指标抓取。
	Exempt []string
	Clock  clock.Clock
}

// RateLimit 限制同一来源在指定窗口内的请求数量。
func RateLimit(opts RateLimitOptions) func(http.Handler) http.Handler {
	if opts.MaxRequests <= 0 || opts.Window <= 0 {
		return passthrough
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	limiter := &ipRateLimiter{
		maxRequests: opts.MaxRequests,
		window:      opts.Window,
		clock:       opts.Clock,
		clients:     make(map[string]*clientCounter),
	}
	exempt := make(map[string]struct{}, len(opts.Exempt))
	for _, path := range opts.Exempt {
		exempt[path] = struct{}{}
	}
	retryAfter := strconv.Itoa(int(opts.Window.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(clientKey(r)) {
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func passthrough(next http.Handler) http.Handler {
	return next
}

type ipRateLimiter struct {
	mu          sync.Mutex
	clients     map[string]*clientCounter
	maxRequests int
	window      time.Duration
	clock       clock.Clock
}

type clientCounter struct {
	count   int
	expires time.Time
}

func (l *ipRateLimiter) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.clients[key]
	if !ok || now.After(entry.expires) {
		l.clients[key] = &clientCounter{count: 1, expires: now.Add(l.window)}
		if len(l.clients) > 1024 {
			l.cleanupLocked(now)
		}
		return true
	}

	if entry.count >= l.maxRequests {
		return false
	}
	entry.count++
	return true
}

func (l *ipRateLimiter) cleanupLocked(now time.Time) {
	for key, entry := range l.clients {
		if now.After(entry.expires) {
			delete(l.clients, key)
		}
	}
}

// clientKey 依赖上游 RealIP 中间件改写 RemoteAddr。
func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
