package util

import (
	"time"

	"go.uber.org/zap"
)

// Trace logs how long an operation took. Usage: defer util.Trace("op")()
func Trace(msg string) func() {
	start := time.Now()
	return func() {
		Logger.Debug("trace", zap.String("op", msg), zap.Duration("cost", time.Since(start)))
	}
}
