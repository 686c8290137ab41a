package permit

import "github.com/oarkflow/permit/logger"

// Logger is re-exported so hosts can implement it without importing the
// logger subpackage.
type Logger = logger.Logger

// NewDefaultLogger returns the phuslu-backed structured logger used when a
// host wants console output without wiring its own implementation.
func NewDefaultLogger() Logger {
	return logger.NewPhusluLogger()
}
