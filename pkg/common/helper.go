package common

import (
	"net/http"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"matchfeed.com/pkg/logger"
	"matchfeed.com/pkg/xerr"
)

// 定义http返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func writeJSON(w http.ResponseWriter, httpStatus int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(v)
}

func Success(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(w http.ResponseWriter, httpStatus int, code int, message string) {
	writeJSON(w, httpStatus, Response{Code: code, Message: message})
}

// FailErr 按 xerr 的错误码选 http 状态，未带码的错误一律 500
func FailErr(w http.ResponseWriter, r *http.Request, err error) {
	code := xerr.CodeOf(err)
	status := code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	logger.Warn(r.Context(), "http error",
		zap.String("request_id", RequestID(r)),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err))
	Fail(w, status, code, err.Error())
}
