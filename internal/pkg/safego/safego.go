// Package safego launches goroutines that cannot take the process down.
package safego

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// Go runs fn in a new goroutine. A panic inside fn is recovered and logged
// with its stack under the given name.
func Go(log *zap.Logger, name string, fn func()) {
	go Run(log, name, fn)
}

// Run calls fn on the current goroutine with the same recovery as Go.
func Run(log *zap.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if log == nil {
				return
			}
			log.Error("goroutine panicked",
				zap.String("goroutine", name),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
}
