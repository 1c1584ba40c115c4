package logger

import (
	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/bess-scheduler/core/logger"
)

// ZerologLogger writes JSON or console entries through rs/zerolog. Entries
// carry the component plus any fields bound with With, such as run_id.
type ZerologLogger struct {
	z zerolog.Logger
}

// NewZerologLogger builds a logger on the output chosen by Configure.
func NewZerologLogger(component string) Logger {
	z := zerolog.New(writer()).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{z: z}
}

// With binds key to every entry of the returned logger.
func (l *ZerologLogger) With(key string, value any) corelogger.Logger {
	return &ZerologLogger{z: l.z.With().Interface(key, value).Logger()}
}

func (l *ZerologLogger) Debugf(format string, args ...any) { l.printf(zerolog.DebugLevel, format, args) }
func (l *ZerologLogger) Infof(format string, args ...any)  { l.printf(zerolog.InfoLevel, format, args) }
func (l *ZerologLogger) Warnf(format string, args ...any)  { l.printf(zerolog.WarnLevel, format, args) }
func (l *ZerologLogger) Errorf(format string, args ...any) { l.printf(zerolog.ErrorLevel, format, args) }

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	l.z.Debug().Fields(fields).Msg(msg)
}

// printf copies the first error argument into the "error" field.
func (l *ZerologLogger) printf(lvl zerolog.Level, format string, args []any) {
	ev := l.z.WithLevel(lvl)
	for _, a := range args {
		if err, ok := a.(error); ok {
			ev = ev.Err(err)
			break
		}
	}
	ev.Msgf(format, args...)
}
