package logger

// Logger is the minimal structured logging interface used by the engine and
// sinks. Implementations accept alternating key/value pairs as variadic
// arguments; the interface is small on purpose so tests can mock it.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}
