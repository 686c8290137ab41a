// Package logger defines the minimal structured-logging contract the engine
// emits through. Hosts plug in any backend; PhusluLogger and SLogLogger are
// provided, NullLogger is the default.
package logger

// Logger accepts a message plus alternating key/value pairs.
type Logger interface {
	Error(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}
