package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/bess-scheduler/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// Config selects the log level and output format.
type Config struct {
	Level string `json:"level"`
	// Format is "json" or "console". Empty picks console when APP_ENV=dev.
	Format string `json:"format"`
}

var (
	mu     sync.RWMutex
	out    io.Writer = os.Stdout
	format string
)

// Configure applies cfg process-wide. Loggers created afterwards use the new
// output; the level applies immediately.
func Configure(cfg Config) error {
	lvl := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return err
		}
		lvl = l
	}
	zerolog.SetGlobalLevel(lvl)
	mu.Lock()
	format = strings.ToLower(cfg.Format)
	mu.Unlock()
	return nil
}

// SetOutput redirects loggers created afterwards.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// New returns a Logger for the given component.
func New(component string) Logger {
	return NewZerologLogger(component)
}

func writer() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	f := format
	if f == "" && strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		f = "console"
	}
	if f == "console" {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return out
}
