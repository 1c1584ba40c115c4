package model

import (
	"fmt"
	"time"
)

// DispatchEvent marks the timesteps during which grid support takes priority
// over cost. TargetKW optionally mandates a minimum discharge on masked steps.
type DispatchEvent struct {
	Mask     []bool    `json:"mask" yaml:"mask"`
	TargetKW []float64 `json:"target_kw,omitempty" yaml:"target_kw,omitempty"`
}

// Active reports whether at least one timestep is masked.
func (e DispatchEvent) Active() bool {
	for _, m := range e.Mask {
		if m {
			return true
		}
	}
	return false
}

// Masked reports whether step t is part of the event.
func (e DispatchEvent) Masked(t int) bool { return t < len(e.Mask) && e.Mask[t] }

// Target returns the mandated discharge for step t, zero when none is set.
func (e DispatchEvent) Target(t int) float64 {
	if !e.Masked(t) || t >= len(e.TargetKW) {
		return 0
	}
	return e.TargetKW[t]
}

// Validate checks the event against a window of n steps. An empty event is
// always valid.
func (e DispatchEvent) Validate(n int) error {
	if len(e.Mask) == 0 {
		return nil
	}
	if len(e.Mask) != n {
		return &DataError{Source: "dispatch", Reason: fmt.Sprintf("mask length %d does not match window length %d", len(e.Mask), n)}
	}
	if len(e.TargetKW) != 0 && len(e.TargetKW) != n {
		return &DataError{Source: "dispatch", Reason: fmt.Sprintf("target length %d does not match window length %d", len(e.TargetKW), n)}
	}
	for i, v := range e.TargetKW {
		if !finite(v) || v < 0 {
			return configErr("dispatch.target_kw", "target[%d]=%v must be a non-negative number", i, v)
		}
	}
	return nil
}

// DispatchWindow is a calendar interval [Start, End) requesting grid support.
type DispatchWindow struct {
	Start    time.Time `json:"start" yaml:"start"`
	End      time.Time `json:"end" yaml:"end"`
	TargetKW float64   `json:"target_kw" yaml:"target_kw"`
}

// Covers reports whether ts lies in the window.
func (d DispatchWindow) Covers(ts time.Time) bool {
	return !ts.Before(d.Start) && ts.Before(d.End)
}

// EventFromWindows projects calendar windows onto the forecast axis. When
// windows overlap the larger target wins. No matching step yields an inactive
// event.
func EventFromWindows(w ForecastWindow, windows []DispatchWindow) DispatchEvent {
	if len(windows) == 0 {
		return DispatchEvent{}
	}
	ev := DispatchEvent{Mask: make([]bool, w.Len()), TargetKW: make([]float64, w.Len())}
	for t := 0; t < w.Len(); t++ {
		ts := w.Timestep(t)
		for _, d := range windows {
			if !d.Covers(ts) {
				continue
			}
			ev.Mask[t] = true
			if d.TargetKW > ev.TargetKW[t] {
				ev.TargetKW[t] = d.TargetKW
			}
		}
	}
	if !ev.Active() {
		return DispatchEvent{}
	}
	return ev
}
