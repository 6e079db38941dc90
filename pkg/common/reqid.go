package common

import (
	"net/http"

	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-Id"

func New() string { return uuid.NewString() }

// 获取id，middleware.ReqID 保证一定有值
func RequestID(r *http.Request) string { return r.Header.Get(HeaderRequestID) }
