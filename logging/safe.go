package logging

import (
	"go.uber.org/zap"
)

// Go runs fn in a new goroutine with panic recovery
// A recovered panic is logged with its stack and does not take the process down
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover is deferred at the top of long-lived goroutines
func Recover(logger *zap.Logger, name string) {
	if r := recover(); r != nil {
		logger.Error("goroutine panic",
			zap.String("goroutine", name),
			zap.Any("panic", r),
			zap.Stack("stack"),
		)
	}
}
