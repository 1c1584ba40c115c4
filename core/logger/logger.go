package logger

// Logger exposes logging methods for common severity levels.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger discards everything. It is the default for library components
// constructed without a logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// Binder is implemented by loggers that can attach a field to every entry.
type Binder interface {
	With(key string, value any) Logger
}

// With binds key to l when it supports it and returns l unchanged otherwise.
func With(l Logger, key string, value any) Logger {
	if b, ok := l.(Binder); ok {
		return b.With(key, value)
	}
	return l
}
