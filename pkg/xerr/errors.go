package xerr

import (
	"errors"
	"fmt"
)

// 常用错误码定义
const (
	OK              = 200
	InvalidArgument = 400
	NotFound        = 404
	Internal        = 500
	Busy            = 503
)

type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// CodeOf returns the code carried by err, OK for nil and Internal for uncoded errors.
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return Internal
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code int) bool {
	return err != nil && CodeOf(err) == code
}

func MapErrMsg(code int) string {
	switch code {
	case InvalidArgument:
		return "invalid argument"
	case NotFound:
		return "not found"
	case Busy:
		return "busy"
	case Internal:
		return "internal error"
	default:
		return "unknown error"
	}
}
