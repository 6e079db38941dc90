package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"matchfeed.com/pkg/common"
	"matchfeed.com/pkg/logger"
	"matchfeed.com/pkg/xerr"
)

func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				logger.Error(r.Context(), "http panic",
					zap.String("request_id", common.RequestID(r)),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", err),
					zap.ByteString("stack", debug.Stack()),
				)
				common.Fail(w, http.StatusInternalServerError, xerr.Internal, xerr.MapErrMsg(xerr.Internal))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
