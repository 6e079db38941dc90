package middleware

import (
	"net"
	"net/http"

	"go.uber.org/zap"

	"matchfeed.com/pkg/common"
	"matchfeed.com/pkg/logger"
	"matchfeed.com/pkg/ratelimit"
)

// RateLimit 按 客户端IP:路径 限流
func RateLimit(store *ratelimit.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !store.Allow(ip + ":" + r.URL.Path) {
				// 限流属于可控拒绝，不要打堆栈
				logger.Warn(r.Context(), "http rate limited",
					zap.String("request_id", common.RequestID(r)),
					zap.String("ip", ip),
					zap.String("route", r.URL.Path),
				)
				common.Fail(w, http.StatusTooManyRequests, http.StatusTooManyRequests, "请求过于频繁")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Chain wraps h so the first middleware runs outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
