package safe

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"matchfeed.com/pkg/logger"
)

// Go 安全启动协程，panic 被记录下来而不是带走整个进程
func Go(fn func()) {
	go func() {
		defer recoverPanic(context.Background())
		fn()
	}()
}

// GoCtx 同 Go，日志里保留 ctx 的 trace id
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer recoverPanic(ctx)
		fn(ctx)
	}()
}

// Run calls fn and converts a panic into an error. Used for work whose
// caller waits on the outcome, e.g. errgroup members.
func Run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(context.Background(), r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func recoverPanic(ctx context.Context) {
	if r := recover(); r != nil {
		logPanic(ctx, r)
	}
}

func logPanic(ctx context.Context, r any) {
	stack := string(debug.Stack())
	if logger.Log != nil {
		logger.Error(ctx, "GOROUTINE PANIC RECOVERED",
			zap.Any("panic", r),
			zap.String("stack", stack),
		)
		return
	}
	fmt.Printf("GOROUTINE PANIC: %v\nStack: %s\n", r, stack)
}
