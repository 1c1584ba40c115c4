// Package monitoring routes run failures to an error tracker. The active
// Monitor is process-wide and defaults to a no-op.
package monitoring

import (
	"sync"
	"time"
)

// Monitor reports errors and panics to a backend.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	CapturePanic(v any)
	Flush(timeout time.Duration)
}

// NopMonitor drops everything.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any)                         {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

func active() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Init installs m as the process monitor. A nil m is ignored.
func Init(m Monitor) {
	if m == nil {
		return
	}
	mu.Lock()
	current = m
	mu.Unlock()
}

// CaptureException records err with tags such as run_id and stage.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	active().CaptureException(err, tags)
}

// Recover reports a panic of the calling goroutine and re-panics. It must be
// deferred directly.
func Recover() {
	if r := recover(); r != nil {
		m := active()
		m.CapturePanic(r)
		m.Flush(2 * time.Second)
		panic(r)
	}
}

// Go runs fn in a goroutine whose panics are reported.
func Go(fn func()) {
	go func() {
		defer Recover()
		fn()
	}()
}

// Flush waits up to d for buffered events to be sent.
func Flush(d time.Duration) {
	active().Flush(d)
}
