package middleware

import (
	"net/http"

	"matchfeed.com/pkg/common"
	"matchfeed.com/pkg/logger"
)

// ReqID 透传或生成请求 id，写回响应头并作为 trace id 放进 ctx，
// 之后 logger.* 打的日志都会带上它。
func ReqID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(common.HeaderRequestID)
		if rid == "" {
			rid = common.New()
			r.Header.Set(common.HeaderRequestID, rid)
		}
		w.Header().Set(common.HeaderRequestID, rid)
		next.ServeHTTP(w, r.WithContext(logger.WithTrace(r.Context(), rid)))
	})
}
